package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/penlab/workpen/internal/api/v1"
	"github.com/penlab/workpen/internal/engine"
	"github.com/penlab/workpen/internal/session"
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, []byte) error { return nil }

// stubRunner replays a fixed item stream and passes the serialization
// through. A non-nil release channel blocks the turn until closed.
type stubRunner struct {
	items     []engine.Item
	started   chan struct{}
	startOnce sync.Once
	release   chan struct{}
}

func (r *stubRunner) Run(_ context.Context, h engine.History, _ string, onItem func(engine.Item)) (engine.History, error) {
	if r.started != nil {
		r.startOnce.Do(func() { close(r.started) })
	}
	if r.release != nil {
		<-r.release
	}
	for _, it := range r.items {
		onItem(it)
	}
	return h, nil
}

func newTestAPI(t *testing.T, runner session.TurnRunner) (humatest.TestAPI, *session.Manager) {
	t.Helper()

	_, api := humatest.New(t)
	mgr := session.NewManager(runner, noopPublisher{})
	t.Cleanup(mgr.Shutdown)
	v1.RegisterSessionRoutes(api, mgr)
	return api, mgr
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, &stubRunner{})

	resp := api.Post("/sessions")

	require.Equal(t, http.StatusOK, resp.Code)

	var body v1.SessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEqual(t, uuid.Nil, body.ID)
	assert.False(t, body.Busy)
	assert.Zero(t, body.EntryCount)
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		api, mgr := newTestAPI(t, &stubRunner{})
		s := mgr.Create()

		resp := api.Get("/sessions/" + s.ID.String())

		require.Equal(t, http.StatusOK, resp.Code)

		var body v1.SessionView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, s.ID, body.ID)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		api, _ := newTestAPI(t, &stubRunner{})

		resp := api.Get("/sessions/" + uuid.New().String())

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	api, mgr := newTestAPI(t, &stubRunner{})
	mgr.Create()
	mgr.Create()

	resp := api.Get("/sessions")

	require.Equal(t, http.StatusOK, resp.Code)

	var body []v1.SessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body, 2)
}

func TestListSessionLog(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{items: []engine.Item{
		{Kind: engine.ItemAssistantMessage, Text: "hello back"},
	}}

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		api, mgr := newTestAPI(t, runner)
		s := mgr.Create()
		require.NoError(t, mgr.RunTurn(context.Background(), s.ID, "hello"))

		resp := api.Get("/sessions/" + s.ID.String() + "/log")

		require.Equal(t, http.StatusOK, resp.Code)

		var body []session.Entry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, session.RoleUser, body[0].Role)
		assert.Equal(t, "hello", body[0].Content)
		assert.Equal(t, session.RoleAssistant, body[1].Role)
	})

	t.Run("offset_past_end_is_empty_list", func(t *testing.T) {
		t.Parallel()

		api, mgr := newTestAPI(t, runner)
		s := mgr.Create()

		resp := api.Get("/sessions/" + s.ID.String() + "/log?offset=50")

		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, "[]", resp.Body.String())
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		api, _ := newTestAPI(t, runner)

		resp := api.Get("/sessions/" + uuid.New().String() + "/log")

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestPostMessage(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		api, mgr := newTestAPI(t, &stubRunner{items: []engine.Item{
			{Kind: engine.ItemAssistantMessage, Text: "ok"},
		}})
		s := mgr.Create()

		resp := api.Post("/sessions/"+s.ID.String()+"/messages", map[string]any{
			"text": "list the files",
		})

		require.Equal(t, http.StatusAccepted, resp.Code)

		var body v1.SessionView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, s.ID, body.ID)

		// The turn runs in the background; wait for it to settle.
		require.Eventually(t, func() bool {
			return !s.Busy() && s.EntryCount() == 2
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		api, _ := newTestAPI(t, &stubRunner{})

		resp := api.Post("/sessions/"+uuid.New().String()+"/messages", map[string]any{
			"text": "hello",
		})

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("turn_in_progress", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{
			started: make(chan struct{}),
			release: make(chan struct{}),
		}
		api, mgr := newTestAPI(t, runner)
		s := mgr.Create()

		resp := api.Post("/sessions/"+s.ID.String()+"/messages", map[string]any{
			"text": "first",
		})
		require.Equal(t, http.StatusAccepted, resp.Code)

		select {
		case <-runner.started:
		case <-time.After(2 * time.Second):
			t.Fatal("turn never started")
		}

		resp = api.Post("/sessions/"+s.ID.String()+"/messages", map[string]any{
			"text": "second",
		})
		assert.Equal(t, http.StatusConflict, resp.Code)

		close(runner.release)
		require.Eventually(t, func() bool { return !s.Busy() }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("empty_text_rejected", func(t *testing.T) {
		t.Parallel()

		api, mgr := newTestAPI(t, &stubRunner{})
		s := mgr.Create()

		resp := api.Post("/sessions/"+s.ID.String()+"/messages", map[string]any{
			"text": "",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}
