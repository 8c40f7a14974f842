// Package logging provides structured logging with per-module log level
// configuration.
//
// # Overview
//
// Built on Go's slog package with automatic output routing:
//   - systemd journal when available (journald systems)
//   - stdout when a terminal, pipe, or file is connected
//   - an in-memory ring buffer backing the /api/logs endpoints
//
// # Usage
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // debug, info, warn, error
//		Format: "text",      // text or json
//		Modules: map[string]string{
//			"uvc":    "debug", // per-module overrides
//			"serial": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("uvc")
//	logger.Info("stream configured", "stream", 0, "interval_ms", 33)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("uvc").With("stream", idx)
//	logger.Debug("transfer submitted") // includes stream in all records
//
// # Viewing logs
//
// On a journald system:
//
//	journalctl -t uvcbridge -f
//	journalctl -t uvcbridge MODULE=uvc
//	journalctl -t uvcbridge -p err
//
// # Configuration
//
// Module-specific levels override the global level for that module only.
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	uvc = "debug"
//	serial = "warn"
package logging
