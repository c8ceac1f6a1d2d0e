// Package frame defines the encoded frame that flows from capture to the bus
// and its on-the-wire representation.
package frame

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed length of the wire header preceding the JPEG payload.
const HeaderSize = 20

// ErrShortMessage is returned by Parse for messages shorter than HeaderSize.
var ErrShortMessage = errors.New("frame: message shorter than header")

// Frame is one timestamped, sequenced, compressed image.
type Frame struct {
	Data        []byte // JPEG bytes
	Width       uint32
	Height      uint32
	TimestampMS uint64 // monotonic ms at encode completion
	Seq         uint32 // starts at 0, +1 per encoded frame
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	out := f
	out.Data = append([]byte(nil), f.Data...)
	return out
}

// Size returns the length of f once marshaled.
func (f Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// AppendMarshal appends the wire form of f to dst and returns the result.
//
// Layout (little-endian):
//
//	0  u32 width
//	4  u32 height
//	8  u64 timestamp_ms
//	16 u32 sequence_number
//	20 ... jpeg
func AppendMarshal(dst []byte, f Frame) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, f.Width)
	dst = binary.LittleEndian.AppendUint32(dst, f.Height)
	dst = binary.LittleEndian.AppendUint64(dst, f.TimestampMS)
	dst = binary.LittleEndian.AppendUint32(dst, f.Seq)
	return append(dst, f.Data...)
}

// Marshal returns the wire form of f in a newly allocated buffer.
func Marshal(f Frame) []byte {
	return AppendMarshal(make([]byte, 0, f.Size()), f)
}

// Parse decodes a wire message. The returned Frame's Data aliases msg.
func Parse(msg []byte) (Frame, error) {
	if len(msg) < HeaderSize {
		return Frame{}, ErrShortMessage
	}
	return Frame{
		Width:       binary.LittleEndian.Uint32(msg[0:4]),
		Height:      binary.LittleEndian.Uint32(msg[4:8]),
		TimestampMS: binary.LittleEndian.Uint64(msg[8:16]),
		Seq:         binary.LittleEndian.Uint32(msg[16:20]),
		Data:        msg[HeaderSize:],
	}, nil
}
