package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smazurov/uvcbridge/internal/version"
)

// Pauser gates frame submission without tearing streams down.
type Pauser interface {
	SetPaused(paused bool)
	Paused() bool
}

// ModeSwitcher reads and changes the device mode.
type ModeSwitcher interface {
	Mode() string
	SwitchMode(mode string) error
}

// BuiltinOptions wires the built-in command set to the rest of the daemon.
// Nil fields leave the corresponding commands unregistered.
type BuiltinOptions struct {
	// Serial returns the persisted device serial.
	Serial func() string

	// Modes switches between uvc and wifi mode.
	Modes ModeSwitcher

	// Pauser pauses and resumes streaming.
	Pauser Pauser

	// Restart restarts the daemon. Called shortly after the response is
	// written so the serial peer hears the acknowledgement first.
	Restart func() error
}

type switchModeData struct {
	Mode string `json:"mode"`
}

// RegisterBuiltins installs the standard command set.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) {
	r.Register("ping", func(json.RawMessage) (any, error) {
		return "pong", nil
	})

	r.Register("get_version", func(json.RawMessage) (any, error) {
		return version.Get(), nil
	})

	if opts.Serial != nil {
		r.Register("get_serial", func(json.RawMessage) (any, error) {
			return map[string]string{"serial": opts.Serial()}, nil
		})
	}

	if opts.Modes != nil {
		r.Register("get_device_mode", func(json.RawMessage) (any, error) {
			return map[string]string{"mode": opts.Modes.Mode()}, nil
		})

		r.Register("switch_mode", func(data json.RawMessage) (any, error) {
			var payload switchModeData
			if len(data) == 0 {
				return nil, fmt.Errorf("switch_mode requires a mode")
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				return nil, fmt.Errorf("invalid switch_mode data: %w", err)
			}
			if err := opts.Modes.SwitchMode(payload.Mode); err != nil {
				return nil, err
			}
			return map[string]string{"mode": payload.Mode}, nil
		})
	}

	if opts.Pauser != nil {
		r.Register("pause", func(json.RawMessage) (any, error) {
			opts.Pauser.SetPaused(true)
			return map[string]bool{"paused": true}, nil
		})

		r.Register("resume", func(json.RawMessage) (any, error) {
			opts.Pauser.SetPaused(false)
			return map[string]bool{"paused": false}, nil
		})
	}

	if opts.Restart != nil {
		r.Register("restart_device", func(json.RawMessage) (any, error) {
			// Delay so the acknowledgement reaches the peer before the
			// process goes away.
			go func() {
				time.Sleep(200 * time.Millisecond)
				_ = opts.Restart()
			}()
			return map[string]bool{"restarting": true}, nil
		})
	}
}
