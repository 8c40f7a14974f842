package events

// Event type constants for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStopped
	TypeDeviceSuspended
	TypeDeviceResumed
	TypeModeChanged
	TypePausedChanged
	TypeCommandReceived
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStartedEvent fires when the host commits a format and the frame
// source accepts the start request.
type StreamStartedEvent struct {
	Stream     int    `json:"stream" example:"0" doc:"Stream index"`
	Width      int    `json:"width" example:"640" doc:"Negotiated frame width"`
	Height     int    `json:"height" example:"480" doc:"Negotiated frame height"`
	FrameRate  int    `json:"frame_rate" example:"30" doc:"Negotiated frame rate"`
	IntervalMS int    `json:"interval_ms" example:"33" doc:"Pacing interval in milliseconds"`
	Timestamp  string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent fires when the host stops streaming or the device
// suspends.
type StreamStoppedEvent struct {
	Stream    int    `json:"stream" example:"0" doc:"Stream index"`
	Reason    string `json:"reason" example:"host" doc:"Stop reason: host, suspend, shutdown"`
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// DeviceSuspendedEvent fires when the USB transport reports bus suspend.
type DeviceSuspendedEvent struct {
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceSuspendedEvent.
func (e DeviceSuspendedEvent) Type() uint32 { return TypeDeviceSuspended }

// DeviceResumedEvent fires when the USB transport reports bus resume.
type DeviceResumedEvent struct {
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceResumedEvent.
func (e DeviceResumedEvent) Type() uint32 { return TypeDeviceResumed }

// ModeChangedEvent fires when the device switches between uvc and wifi mode.
type ModeChangedEvent struct {
	Mode      string `json:"mode" example:"wifi" doc:"New device mode: uvc or wifi"`
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ModeChangedEvent.
func (e ModeChangedEvent) Type() uint32 { return TypeModeChanged }

// PausedChangedEvent fires when streaming is paused or resumed.
type PausedChangedEvent struct {
	Paused    bool   `json:"paused" example:"true" doc:"Whether streaming is paused"`
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PausedChangedEvent.
func (e PausedChangedEvent) Type() uint32 { return TypePausedChanged }

// CommandReceivedEvent fires for every command line dispatched from the
// serial interface or injected via the API.
type CommandReceivedEvent struct {
	Command   string `json:"command" example:"get_serial" doc:"Command name, empty if the line did not parse"`
	OK        bool   `json:"ok" example:"true" doc:"Whether the command handler succeeded"`
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CommandReceivedEvent.
func (e CommandReceivedEvent) Type() uint32 { return TypeCommandReceived }

// LogEntryEvent carries one log record for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"uvc" doc:"Module that produced the record"`
	Message    string         `json:"message" example:"stream configured" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
