package zmq

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// TestPubSub_RoundTrip validates that a bound publisher reaches a connected
// subscriber over IPC.
//
// PUB/SUB has a slow-joiner window, so the publisher keeps sending until the
// subscriber sees a message or the deadline passes.
func TestPubSub_RoundTrip(t *testing.T) {
	endpoint := "ipc://" + filepath.Join(t.TempDir(), "frames")

	pub, err := Bind(endpoint, 2)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer pub.Close()

	sub, err := Connect(endpoint, 2)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sub.Close()

	want := []byte("hello frame")
	deadline := time.Now().Add(3 * time.Second)

	for time.Now().Before(deadline) {
		if _, err := pub.TrySend(want); err != nil {
			t.Fatalf("TrySend: %v", err)
		}

		got, err := sub.Recv(20 * time.Millisecond)
		if errors.Is(err, ErrRecvTimeout) {
			continue
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		return
	}
	t.Fatal("subscriber never received a message")
}

func TestSub_TryRecvEmpty(t *testing.T) {
	endpoint := "ipc://" + filepath.Join(t.TempDir(), "empty")

	sub, err := Connect(endpoint, 2)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sub.Close()

	msg, ok, err := sub.TryRecv()
	if err != nil || ok || msg != nil {
		t.Errorf("TryRecv on idle socket = %v,%v,%v want nil,false,nil", msg, ok, err)
	}
}

func TestBind_InvalidEndpoint(t *testing.T) {
	if _, err := Bind("bogus://nowhere", 2); err == nil {
		t.Fatal("Bind accepted an invalid endpoint")
	}
}
