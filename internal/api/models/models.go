// Package models holds the request and response bodies of the HTTP API,
// kept separate from the domain types so wire compatibility does not pin
// the internals.
package models

import "encoding/json"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2026-08-25 14:30" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// FormatData is one frame descriptor the gadget advertises to the host.
type FormatData struct {
	Width     int `json:"width" example:"1280" doc:"Frame width in pixels"`
	Height    int `json:"height" example:"720" doc:"Frame height in pixels"`
	FrameRate int `json:"frame_rate" example:"30" doc:"Frames per second"`
}

// StreamRuntimeData is the live pacing state of one stream.
type StreamRuntimeData struct {
	Configured      bool        `json:"configured" example:"true" doc:"Whether a frame source is bound"`
	Active          bool        `json:"active" example:"true" doc:"Whether the pacer loop is running"`
	Busy            bool        `json:"busy" example:"false" doc:"Whether a transfer is in flight"`
	IntervalMS      int64       `json:"interval_ms" example:"33" doc:"Committed pacing interval in milliseconds"`
	FramesCompleted uint64      `json:"frames_completed" example:"1024" doc:"Transfers completed since the last start"`
	FramesDropped   uint64      `json:"frames_dropped" example:"2" doc:"Frames skipped since the last start"`
	Committed       *FormatData `json:"committed,omitempty" doc:"Format committed by the host, if any"`
}

// StreamData pairs a stream's configured profile with its runtime state.
type StreamData struct {
	Index   int               `json:"index" example:"0" doc:"Stream index"`
	Name    string            `json:"name" example:"primary" doc:"Profile name"`
	Source  string            `json:"source" example:"pattern" doc:"Frame source kind"`
	Formats []FormatData      `json:"formats" doc:"Advertised frame descriptors"`
	Runtime StreamRuntimeData `json:"runtime" doc:"Live pacing state"`
}

type StreamListData struct {
	Streams []StreamData `json:"streams" doc:"All configured streams"`
	Count   int          `json:"count" example:"2" doc:"Number of configured streams"`
}

type StreamListResponse struct {
	Body StreamListData
}

type StreamResponse struct {
	Body StreamData
}

// Device status models
type StatusData struct {
	Mode    string       `json:"mode" example:"uvc" doc:"Device mode: uvc or wifi"`
	Paused  bool         `json:"paused" example:"false" doc:"Whether frame delivery is paused"`
	Serial  string       `json:"serial" example:"UVCB-3f9a2c" doc:"Device serial number"`
	Streams []StreamData `json:"streams" doc:"Per-stream state"`
}

type StatusResponse struct {
	Body StatusData
}

type ModeRequest struct {
	Body struct {
		Mode string `json:"mode" enum:"uvc,wifi" example:"wifi" doc:"Target device mode"`
	}
}

type ModeData struct {
	Mode    string `json:"mode" example:"wifi" doc:"Active device mode"`
	Message string `json:"message" example:"Switched to wifi mode" doc:"Status message"`
}

type ModeResponse struct {
	Body ModeData
}

type PauseRequest struct {
	Body struct {
		Paused bool `json:"paused" example:"true" doc:"Pause frame delivery when true"`
	}
}

type PauseData struct {
	Paused bool `json:"paused" example:"true" doc:"Whether frame delivery is paused"`
}

type PauseResponse struct {
	Body PauseData
}

type SerialData struct {
	Serial string `json:"serial" example:"UVCB-3f9a2c" doc:"Device serial number"`
}

type SerialResponse struct {
	Body SerialData
}

// Command models
type CommandEntryData struct {
	Command string          `json:"command" minLength:"1" example:"switch_mode" doc:"Command name"`
	Data    json.RawMessage `json:"data,omitempty" doc:"Command payload, handler specific"`
}

type CommandRequest struct {
	Body struct {
		Commands []CommandEntryData `json:"commands" minItems:"1" doc:"Commands to run in order"`
	}
}

type CommandResultData struct {
	Command string `json:"command" example:"switch_mode" doc:"Command name"`
	OK      bool   `json:"ok" example:"true" doc:"Whether the handler succeeded"`
	Result  any    `json:"result,omitempty" doc:"Handler return value"`
	Error   string `json:"error,omitempty" doc:"Handler error, if any"`
}

type CommandRunData struct {
	Results []CommandResultData `json:"results" doc:"One result per command, in request order"`
}

type CommandRunResponse struct {
	Body CommandRunData
}

type CommandListData struct {
	Commands []string `json:"commands" doc:"Registered command names"`
	Count    int      `json:"count" example:"7" doc:"Number of registered commands"`
}

type CommandListResponse struct {
	Body CommandListData
}

// Log models
type LogEntryData struct {
	Timestamp  string         `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"uvc" doc:"Module that produced the record"`
	Message    string         `json:"message" example:"stream configured" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Buffered log records, oldest first"`
	Count   int            `json:"count" example:"128" doc:"Number of buffered records"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Current level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" minLength:"1" example:"uvc" doc:"Module name"`
		Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}
