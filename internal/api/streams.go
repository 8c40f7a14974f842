package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/uvcbridge/internal/api/models"
	"github.com/smazurov/uvcbridge/internal/bridge"
)

// registerStreamRoutes registers all stream-related endpoints
func (s *Server) registerStreamRoutes() {
	// List configured streams
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "Get all configured streams with their advertised formats and pacing counters",
		Tags:        []string{"streams"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.StreamListResponse, error) {
		status := s.bridge.Status()

		// Convert domain streams to API response
		apiStreams := make([]models.StreamData, len(status.Streams))
		for i, detail := range status.Streams {
			apiStreams[i] = domainToAPIStream(detail)
		}

		return &models.StreamListResponse{
			Body: models.StreamListData{
				Streams: apiStreams,
				Count:   len(apiStreams),
			},
		}, nil
	})

	// Get specific stream
	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{index}",
		Summary:     "Get Stream",
		Description: "Get one stream's configured profile and runtime state",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Index int `path:"index" minimum:"0" example:"0" doc:"Stream index"`
	}) (*models.StreamResponse, error) {
		detail, err := s.bridge.StreamDetail(input.Index)
		if err != nil {
			return nil, mapBridgeError(err)
		}

		return &models.StreamResponse{
			Body: domainToAPIStream(detail),
		}, nil
	})
}

// domainToAPIStream converts a bridge stream detail to API stream data
func domainToAPIStream(detail bridge.StreamDetail) models.StreamData {
	formats := make([]models.FormatData, len(detail.Formats))
	for i, f := range detail.Formats {
		formats[i] = models.FormatData{
			Width:     f.Width,
			Height:    f.Height,
			FrameRate: f.FrameRate,
		}
	}

	runtime := models.StreamRuntimeData{
		Configured:      detail.Runtime.Configured,
		Active:          detail.Runtime.Active,
		Busy:            detail.Runtime.Busy,
		IntervalMS:      detail.Runtime.IntervalMS,
		FramesCompleted: detail.Runtime.FramesCompleted,
		FramesDropped:   detail.Runtime.FramesDropped,
	}
	if c := detail.Runtime.Committed; c != nil {
		runtime.Committed = &models.FormatData{
			Width:     c.Width,
			Height:    c.Height,
			FrameRate: c.FrameRate,
		}
	}

	return models.StreamData{
		Index:   detail.Index,
		Name:    detail.Name,
		Source:  detail.Source,
		Formats: formats,
		Runtime: runtime,
	}
}

// mapBridgeError maps domain errors to HTTP errors
func mapBridgeError(err error) error {
	if errors.Is(err, bridge.ErrStreamNotFound) {
		return huma.Error404NotFound("stream not found", err)
	}
	return huma.Error500InternalServerError("internal server error", err)
}
