package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/penlab/workpen/internal/session"
)

// SessionView is the API representation of a chat session.
type SessionView struct {
	ID         uuid.UUID `json:"id" doc:"Session ID"`
	CreatedAt  time.Time `json:"created_at" doc:"Creation time"`
	Busy       bool      `json:"busy" doc:"Whether a turn is currently running"`
	EntryCount int       `json:"entry_count" doc:"Current render log length"`
}

func viewOf(s *session.Session) SessionView {
	return SessionView{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Busy:       s.Busy(),
		EntryCount: s.EntryCount(),
	}
}

type CreateSessionOutput struct {
	Body SessionView
}

type GetSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body SessionView
}

type ListSessionsOutput struct {
	Body []SessionView
}

type ListLogInput struct {
	ID     uuid.UUID `path:"id" doc:"Session ID"`
	Offset int       `query:"offset" minimum:"0" default:"0" doc:"Render log offset"`
	Limit  int       `query:"limit" minimum:"1" maximum:"1000" default:"500" doc:"Max entries"`
}

type ListLogOutput struct {
	Body []session.Entry
}

type PostMessageInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Text string `json:"text" minLength:"1" doc:"User message text"`
	}
}

type PostMessageOutput struct {
	Status int
	Body   SessionView
}

// RegisterSessionRoutes wires the chat-session REST surface.
func RegisterSessionRoutes(api huma.API, sessions SessionManager) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Create a chat session",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, _ *struct{}) (*CreateSessionOutput, error) {
		s := sessions.Create()
		return &CreateSessionOutput{Body: viewOf(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session by ID",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		s, err := sessions.Get(input.ID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}
		return &GetSessionOutput{Body: viewOf(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, _ *struct{}) (*ListSessionsOutput, error) {
		all := sessions.List()
		views := make([]SessionView, 0, len(all))
		for _, s := range all {
			views = append(views, viewOf(s))
		}
		return &ListSessionsOutput{Body: views}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-session-log",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/log",
		Summary:     "List render log entries for a session",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *ListLogInput) (*ListLogOutput, error) {
		s, err := sessions.Get(input.ID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}
		entries := s.Entries(input.Offset, input.Limit)
		if entries == nil {
			entries = []session.Entry{}
		}
		return &ListLogOutput{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/sessions/{id}/messages",
		Summary:       "Submit a user message and start a turn",
		Description:   "The turn runs in the background; render entries stream over the session websocket. A turn failure (for example budget exhaustion) is delivered as an error render entry, not an HTTP failure.",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusAccepted,
	}, func(_ context.Context, input *PostMessageInput) (*PostMessageOutput, error) {
		err := sessions.StartTurn(input.ID, input.Body.Text)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			if errors.Is(err, session.ErrTurnInProgress) {
				return nil, huma.Error409Conflict("a turn is already in progress")
			}
			return nil, huma.Error500InternalServerError("failed to start turn", err)
		}

		s, err := sessions.Get(input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}
		return &PostMessageOutput{Status: http.StatusAccepted, Body: viewOf(s)}, nil
	})
}
