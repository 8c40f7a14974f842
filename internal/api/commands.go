package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/uvcbridge/internal/api/models"
	"github.com/smazurov/uvcbridge/internal/command"
)

// registerCommandRoutes registers the command injection endpoints. They run
// the same registry the CDC serial link dispatches into, so anything a
// serial peer can ask for works over HTTP too.
func (s *Server) registerCommandRoutes() {
	// List registered commands
	huma.Register(s.api, huma.Operation{
		OperationID: "list-commands",
		Method:      http.MethodGet,
		Path:        "/api/commands",
		Summary:     "List Commands",
		Description: "Get the names of all registered commands",
		Tags:        []string{"commands"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.CommandListResponse, error) {
		names := s.registry.Names()
		sort.Strings(names)
		return &models.CommandListResponse{
			Body: models.CommandListData{
				Commands: names,
				Count:    len(names),
			},
		}, nil
	})

	// Run a command batch
	huma.Register(s.api, huma.Operation{
		OperationID: "run-commands",
		Method:      http.MethodPost,
		Path:        "/api/commands",
		Summary:     "Run Commands",
		Description: "Run a batch of commands as if received over the CDC serial link. Commands run in order; a failed command does not stop the batch.",
		Tags:        []string{"commands"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CommandRequest) (*models.CommandRunResponse, error) {
		results := make([]models.CommandResultData, len(input.Body.Commands))
		for i, entry := range input.Body.Commands {
			result := s.registry.Run(command.Entry{
				Command: entry.Command,
				Data:    entry.Data,
			})
			results[i] = models.CommandResultData{
				Command: result.Command,
				OK:      result.OK,
				Result:  result.Result,
				Error:   result.Error,
			}
		}

		return &models.CommandRunResponse{
			Body: models.CommandRunData{Results: results},
		}, nil
	})
}
