package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// New picks a controller for the detected board, falling back to a no-op
// when the board has no controllable status LED.
func New(logger *slog.Logger) Controller {
	model := detectBoard()
	if logger != nil {
		logger.Info("detecting board for LED control", "board_model", model)
	}

	switch {
	case strings.Contains(model, "Raspberry Pi"):
		return newSysfs(map[string]string{
			"status": "ACT",
		})

	case strings.Contains(model, "Radxa Zero"):
		return newSysfs(map[string]string{
			"status": "radxa-zero:green",
		})

	case strings.Contains(model, "Orange Pi"):
		return newSysfs(map[string]string{
			"status": "green_led",
		})

	default:
		if logger != nil {
			logger.Info("no LED support detected, using no-op controller", "board_model", model)
		}
		return newNoop(logger)
	}
}

func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated.
	return strings.TrimRight(string(data), "\x00")
}
