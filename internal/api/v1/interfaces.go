package v1

import (
	"github.com/google/uuid"

	"github.com/penlab/workpen/internal/session"
)

// SessionManager is the slice of the session layer the REST API depends on.
type SessionManager interface {
	Create() *session.Session
	Get(id uuid.UUID) (*session.Session, error)
	List() []*session.Session
	StartTurn(id uuid.UUID, userText string) error
}
