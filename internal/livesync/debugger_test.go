package livesync

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := `{"method":"Page.reload"}`
	frame := encodeFrame(payload)

	got, err := decodeFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if got != payload {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestDebuggerSocketSendDialsAndWrites(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	dialed := 0
	dial := func(ctx context.Context) (net.Conn, error) {
		dialed++
		return client, nil
	}
	sock := NewDebuggerSocket(dial, nil)

	recv := make(chan string, 1)
	go func() {
		msg, err := decodeFrame(server)
		if err != nil {
			recv <- ""
			return
		}
		recv <- msg
	}()

	if err := sock.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	select {
	case msg := <-recv:
		if msg == "" {
			t.Fatal("decodeFrame on server side failed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for framed message")
	}
	if dialed != 1 {
		t.Fatalf("expected exactly one dial, got %d", dialed)
	}
}

func TestDebuggerSocketEstablishFailureExhaustsRetries(t *testing.T) {
	dial := func(ctx context.Context) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	sock := NewDebuggerSocket(dial, nil)
	sock.retry = reconnectConfig{maxRetries: 2, initialBackoff: time.Millisecond, maxBackoff: 2 * time.Millisecond}

	err := sock.Reload(context.Background())
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
}
