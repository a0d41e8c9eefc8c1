// Package ws streams render-log entries to chat clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/penlab/workpen/internal/session"
	redisstore "github.com/penlab/workpen/internal/store/redis"
)

// Subscriber is the slice of the event bus the hub depends on: a channel of
// payloads for one session plus a cleanup func.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by the pub/sub event bus.
type Hub struct {
	pubsub   Subscriber
	sessions *session.Manager
}

// NewHub creates a new WebSocket hub.
func NewHub(pubsub Subscriber, sessions *session.Manager) *Hub {
	return &Hub{pubsub: pubsub, sessions: sessions}
}

// ServeSession handles WebSocket connections for one chat session.
// It replays the current render log, then forwards live entries from the
// session channel. Entries carry a per-session sequence number, so a client
// that redraws from scratch never loses or duplicates a record: the replay
// covers everything up to the subscription point and live entries below that
// sequence are dropped.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := chi.URLParam(r, "sessionID")
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	channel := redisstore.SessionChannel(sessionID)

	// Subscribe before the snapshot so no entry falls between the two.
	messages, cleanup, err := h.pubsub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	lastSeq := 0
	for _, e := range sess.Entries(0, 0) {
		payload, marshalErr := json.Marshal(e)
		if marshalErr != nil {
			continue
		}
		if writeErr := conn.Write(ctx, websocket.MessageText, payload); writeErr != nil {
			log.Debug().Err(writeErr).Msg("websocket replay write")
			return
		}
		lastSeq = e.Seq
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if seq, seqErr := entrySeq(msg); seqErr == nil && seq <= lastSeq {
				continue
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

func entrySeq(payload []byte) (int, error) {
	var probe struct {
		Seq int `json:"seq"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return 0, fmt.Errorf("ws.entrySeq: %w", err)
	}
	return probe.Seq, nil
}
