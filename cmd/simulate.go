package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/uvcbridge/internal/config"
	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/source"
	"github.com/smazurov/uvcbridge/internal/transport/loopback"
	"github.com/smazurov/uvcbridge/internal/uvc"
	"github.com/spf13/cobra"
)

// CreateSimulateCmd creates the simulate command. It runs the full pacing
// path against the loopback transport: configure streams from the profile
// file, play the host side of the negotiation, and report transfer counters
// at the end. No gadget hardware is touched.
func CreateSimulateCmd() *cobra.Command {
	var profilesFile string
	var duration time.Duration
	var frameIndex int
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the pacing path against a simulated host",
		Long: `Configures the device from the stream profile file, binds it to the in-process ` +
			`loopback transport, commits the chosen format on every stream and paces frames ` +
			`for the given duration. Useful for exercising sources and timing off-target.`,
		Run: func(_ *cobra.Command, _ []string) {
			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("simulate")

			if frameIndex < 1 {
				logger.Error("Format index is 1-based", "frame_index", frameIndex)
				os.Exit(1)
			}

			store := config.NewProfileStore(profilesFile)
			if err := store.Load(); err != nil {
				logger.Error("Failed to load stream profiles", "error", err, "profiles", profilesFile)
				os.Exit(1)
			}
			profiles := store.Streams()

			tr := loopback.New(loopback.Options{Logger: logging.GetLogger("loopback")})
			device, err := uvc.New(uvc.Options{
				Transport: tr,
				Logger:    logging.GetLogger("uvc"),
			})
			if err != nil {
				logger.Error("Failed to create device", "error", err)
				os.Exit(1)
			}
			tr.SetHandler(device)

			for i, sp := range profiles {
				var src source.FrameSource
				switch sp.Source {
				case config.SourceSpool:
					src = source.NewSpool(sp.SpoolDir, logging.GetLogger("source"))
				default:
					src = source.NewPattern(logging.GetLogger("source"))
				}

				cfg := uvc.StreamConfig{
					Source:    src,
					Buffer:    make([]byte, sp.BufferBytes()),
					Catalog:   sp.Catalog(),
					FrameRate: sp.Formats[0].FrameRate,
				}
				if err := device.Configure(i, cfg); err != nil {
					logger.Error("Failed to configure stream", "stream", i, "error", err)
					os.Exit(1)
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := device.Start(ctx); err != nil {
				logger.Error("Failed to start device", "error", err)
				os.Exit(1)
			}
			defer device.Stop()

			for i, sp := range profiles {
				if frameIndex > len(sp.Formats) {
					logger.Warn("Format index beyond catalog, skipping stream",
						"stream", i, "frame_index", frameIndex, "formats", len(sp.Formats))
					continue
				}
				f := sp.Formats[frameIndex-1]
				interval := uint32(10_000_000 / f.FrameRate)
				if err := tr.StartStreaming(i, frameIndex, interval); err != nil {
					logger.Error("Host negotiation failed", "stream", i, "error", err)
					os.Exit(1)
				}
				logger.Info("Streaming", "stream", i, "width", f.Width, "height", f.Height, "rate", f.FrameRate)
			}

			select {
			case <-ctx.Done():
				logger.Info("Interrupted")
			case <-time.After(duration):
			}

			for i := range profiles {
				tr.StopStreaming(i)
			}
			device.Stop()

			elapsed := duration.Seconds()
			fmt.Printf("transfers: %d (%.1f/s)\n", tr.Transfers(), float64(tr.Transfers())/elapsed)
			fmt.Printf("bytes:     %d\n", tr.Bytes())
			for i := range profiles {
				status, statusErr := device.Status(i)
				if statusErr != nil {
					continue
				}
				fmt.Printf("stream %d:  completed=%d dropped=%d interval=%dms\n",
					i, status.FramesCompleted, status.FramesDropped, status.IntervalMS)
			}
		},
	}

	cmd.Flags().StringVarP(&profilesFile, "profiles", "f", "profiles.toml", "Stream profile file")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "How long to stream")
	cmd.Flags().IntVar(&frameIndex, "format", 1, "1-based format index to commit on each stream")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")

	return cmd
}
