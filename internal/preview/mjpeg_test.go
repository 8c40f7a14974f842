package preview

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMJPEGHandlerStreamsParts(t *testing.T) {
	payload := []byte("jpegdata")
	src := &stillSource{payload: payload}
	pump := newTestPump(src)

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pump.Stop()

	srv := httptest.NewServer(MJPEGHandler(pump, discardLogger()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("Failed to parse content type: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		t.Errorf("Expected multipart/x-mixed-replace, got %q", mediaType)
	}
	if params["boundary"] != mjpegBoundary {
		t.Errorf("Expected boundary %q, got %q", mjpegBoundary, params["boundary"])
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 2; i++ {
		part, partErr := reader.NextPart()
		if partErr != nil {
			t.Fatalf("Part %d: %v", i, partErr)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Part %d content type = %q, want image/jpeg", i, ct)
		}
		data, readErr := io.ReadAll(part)
		if readErr != nil {
			t.Fatalf("Part %d read: %v", i, readErr)
		}
		if !bytes.Equal(data, payload) {
			t.Errorf("Part %d = %q, want %q", i, data, payload)
		}
	}
}

func TestMJPEGHandlerClientDisconnect(t *testing.T) {
	src := &stillSource{payload: []byte("x")}
	pump := newTestPump(src)

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pump.Stop()

	srv := httptest.NewServer(MJPEGHandler(pump, discardLogger()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	// Read a little, then walk away like a closed browser tab
	buf := make([]byte, 64)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("First read failed: %v", err)
	}
	cancel()
	resp.Body.Close()

	// The handler must detach its sink once the client is gone
	deadline := time.Now().Add(2 * time.Second)
	for {
		pump.mu.Lock()
		remaining := len(pump.sinks)
		pump.mu.Unlock()
		if remaining == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Sink still attached after disconnect, %d remaining", remaining)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
