// Package command implements the JSON command protocol carried over the CDC
// serial link and the HTTP command endpoint. A request is a batch:
//
//	{"commands":[{"command":"ping"},{"command":"switch_mode","data":{"mode":"wifi"}}]}
//
// and the response carries one result per command in order.
package command

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/uvcbridge/internal/events"
	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/metrics"
)

// HandlerFunc executes one command. data is the raw JSON payload of the
// "data" field and may be nil.
type HandlerFunc func(data json.RawMessage) (any, error)

// Request is a batch of commands.
type Request struct {
	Commands []Entry `json:"commands"`
}

// Entry is one command within a batch.
type Entry struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Result is the outcome of one command.
type Result struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the reply to a batch.
type Response struct {
	Results []Result `json:"results,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Registry maps command names to handlers and dispatches batches.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	bus      *events.Bus
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, bus *events.Bus) *Registry {
	if logger == nil {
		logger = logging.GetLogger("command")
	}
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		bus:      bus,
	}
}

// Register binds a command name to a handler, replacing any previous one.
func (r *Registry) Register(name string, handler HandlerFunc) {
	r.mu.Lock()
	r.handlers[name] = handler
	r.mu.Unlock()
}

// Names returns the registered command names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch parses one request line and runs every command in it. The
// returned JSON is never nil; parse failures produce an error response
// rather than silence so the serial peer always hears back.
func (r *Registry) Dispatch(line []byte) []byte {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		r.logger.Warn("unparseable command line", "error", err, "bytes", len(line))
		metrics.AddCommand("invalid", "error")
		r.publish("", false)
		return marshalResponse(Response{Error: "invalid command payload"})
	}
	if len(req.Commands) == 0 {
		return marshalResponse(Response{Error: "no commands in request"})
	}

	results := make([]Result, 0, len(req.Commands))
	for _, entry := range req.Commands {
		results = append(results, r.run(entry))
	}
	return marshalResponse(Response{Results: results})
}

// Run executes a single parsed command entry, for callers that already have
// structured input (the HTTP command endpoint).
func (r *Registry) Run(entry Entry) Result {
	return r.run(entry)
}

func (r *Registry) run(entry Entry) Result {
	r.mu.RLock()
	handler, ok := r.handlers[entry.Command]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown command", "command", entry.Command)
		metrics.AddCommand(entry.Command, "unknown")
		r.publish(entry.Command, false)
		return Result{
			Command: entry.Command,
			Error:   fmt.Sprintf("unknown command %q", entry.Command),
		}
	}

	value, err := handler(entry.Data)
	if err != nil {
		r.logger.Warn("command failed", "command", entry.Command, "error", err)
		metrics.AddCommand(entry.Command, "error")
		r.publish(entry.Command, false)
		return Result{Command: entry.Command, Error: err.Error()}
	}

	r.logger.Debug("command handled", "command", entry.Command)
	metrics.AddCommand(entry.Command, "ok")
	r.publish(entry.Command, true)
	return Result{Command: entry.Command, OK: true, Result: value}
}

func (r *Registry) publish(name string, ok bool) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.CommandReceivedEvent{
		Command:   name,
		OK:        ok,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func marshalResponse(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Response bodies are built from marshalable values only.
		return []byte(`{"error":"internal encoding failure"}`)
	}
	return data
}
