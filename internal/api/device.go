package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/uvcbridge/internal/api/models"
)

// registerDeviceRoutes registers device status and control endpoints.
func (s *Server) registerDeviceRoutes() {
	// Whole-device snapshot
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Device Status",
		Description: "Get device mode, pause state, serial, and per-stream pacing counters",
		Tags:        []string{"device"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		status := s.bridge.Status()

		apiStreams := make([]models.StreamData, len(status.Streams))
		for i, detail := range status.Streams {
			apiStreams[i] = domainToAPIStream(detail)
		}

		return &models.StatusResponse{
			Body: models.StatusData{
				Mode:    status.Mode,
				Paused:  status.Paused,
				Serial:  status.Serial,
				Streams: apiStreams,
			},
		}, nil
	})

	// Switch device mode
	huma.Register(s.api, huma.Operation{
		OperationID: "set-device-mode",
		Method:      http.MethodPost,
		Path:        "/api/device/mode",
		Summary:     "Switch Mode",
		Description: "Switch between uvc mode (frames go to the USB host) and wifi mode (frames go to the network preview)",
		Tags:        []string{"device"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ModeRequest) (*models.ModeResponse, error) {
		if err := s.bridge.SwitchMode(input.Body.Mode); err != nil {
			return nil, huma.Error500InternalServerError("Mode switch failed", err)
		}
		return &models.ModeResponse{
			Body: models.ModeData{
				Mode:    s.bridge.Mode(),
				Message: "Switched to " + input.Body.Mode + " mode",
			},
		}, nil
	})

	// Pause or resume frame delivery
	huma.Register(s.api, huma.Operation{
		OperationID: "set-device-pause",
		Method:      http.MethodPost,
		Path:        "/api/device/pause",
		Summary:     "Pause Streaming",
		Description: "Pause or resume frame delivery. The host keeps its negotiated format; frames are simply withheld.",
		Tags:        []string{"device"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.PauseRequest) (*models.PauseResponse, error) {
		s.bridge.SetPaused(input.Body.Paused)
		return &models.PauseResponse{
			Body: models.PauseData{Paused: s.bridge.Paused()},
		}, nil
	})

	// Serial number
	huma.Register(s.api, huma.Operation{
		OperationID: "get-device-serial",
		Method:      http.MethodGet,
		Path:        "/api/device/serial",
		Summary:     "Device Serial",
		Description: "Get the persisted device serial number",
		Tags:        []string{"device"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.SerialResponse, error) {
		return &models.SerialResponse{
			Body: models.SerialData{Serial: s.bridge.Serial()},
		}, nil
	})
}
