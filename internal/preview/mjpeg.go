package preview

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/metrics"
)

const mjpegBoundary = "frame"

// MJPEGHandler streams pump frames as multipart/x-mixed-replace, the
// motion-JPEG-over-HTTP arrangement browsers render natively in an <img>
// tag. Slow clients skip frames instead of stalling the pump.
func MJPEGHandler(pump *Pump, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.GetLogger("preview")
	}
	var clients atomic.Int64

	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		frames := make(chan []byte, 2)
		detach := pump.Attach(func(frame []byte) {
			// The pump reuses its buffer after the sink returns
			buf := make([]byte, len(frame))
			copy(buf, frame)
			select {
			case frames <- buf:
			default:
			}
		})
		defer detach()

		metrics.SetPreviewClients("mjpeg", int(clients.Add(1)))
		defer func() {
			metrics.SetPreviewClients("mjpeg", int(clients.Add(-1)))
		}()
		logger.Debug("MJPEG client connected", "remote", r.RemoteAddr)

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		clientGone := r.Context().Done()
		for {
			select {
			case <-clientGone:
				return

			case frame := <-frames:
				_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
					mjpegBoundary, len(frame))
				if err != nil {
					return
				}
				if _, err = w.Write(frame); err != nil {
					return
				}
				if _, err = io.WriteString(w, "\r\n"); err != nil {
					return
				}
				flusher.Flush()
				metrics.AddPreviewFrame("mjpeg")
			}
		}
	}
}
