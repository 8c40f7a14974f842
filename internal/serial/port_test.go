package serial

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testPort(respond ResponderFunc) *Port {
	return NewPort(PortOptions{
		Path:   "/dev/null",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, respond)
}

func TestPumpDispatchesAndResponds(t *testing.T) {
	host, device := net.Pipe()
	defer host.Close()

	port := testPort(func(line []byte) []byte {
		if string(line) == "ping" {
			return []byte(`{"result":"pong"}`)
		}
		return []byte(`{"error":"unknown"}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- port.Pump(ctx, device) }()

	if _, err := host.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	host.SetReadDeadline(time.Now().Add(2 * time.Second))
	response, err := bufio.NewReader(host).ReadString('\n')
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	if response != `{"result":"pong"}`+"\n" {
		t.Errorf("response = %q", response)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Pump returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not return after cancellation")
	}
}

func TestPumpSkipsEmptyResponses(t *testing.T) {
	host, device := net.Pipe()
	defer host.Close()

	var received []string
	port := testPort(func(line []byte) []byte {
		received = append(received, string(line))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- port.Pump(ctx, device) }()

	// Two commands in one chunk; neither produces a response, so the pump
	// must not write anything back.
	if _, err := host.Write([]byte("first\nsecond\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	host.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 16)
	if n, err := host.Read(buf); err == nil {
		t.Errorf("unexpected %d response bytes: %q", n, buf[:n])
	}

	cancel()
	<-done

	if len(received) != 2 || received[0] != "first" || received[1] != "second" {
		t.Errorf("received lines %v, want [first second]", received)
	}
}

func TestPumpReturnsOnPeerClose(t *testing.T) {
	host, device := net.Pipe()

	port := testPort(func([]byte) []byte { return nil })

	done := make(chan error, 1)
	go func() { done <- port.Pump(context.Background(), device) }()

	host.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Pump returned nil after peer close, want the read error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not return after peer close")
	}
}
