package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/playback"
)

func TestSessionLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	doc := ts.seed(t, "camille", "Contes", "Un.\n\nDeux.\n\nTrois.")

	resp := ts.api.Post("/api/v1/sessions", map[string]any{"owner_id": "camille", "document_id": doc.ID})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	snap := decode[playback.Snapshot](t, resp)
	assert.Equal(t, playback.StateIdle, snap.State)
	assert.Equal(t, 3, snap.ChapterCount)

	path := "/api/v1/sessions/" + snap.SessionID

	resp = ts.api.Post(path + "/play")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, playback.StatePlaying, decode[playback.Snapshot](t, resp).State)

	resp = ts.api.Post(path + "/next")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, decode[playback.Snapshot](t, resp).Chapter)

	resp = ts.api.Post(path + "/pause")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, playback.StatePaused, decode[playback.Snapshot](t, resp).State)

	resp = ts.api.Get(path)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, decode[playback.Snapshot](t, resp).Chapter)

	resp = ts.api.Delete(path)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get(path)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSessionSeekPersistsProgress(t *testing.T) {
	ts := setupTestServer(t)
	doc := ts.seed(t, "camille", "Contes", "Un.\n\nDeux.\n\nTrois.")

	snap := decode[playback.Snapshot](t, ts.api.Post("/api/v1/sessions", map[string]any{"owner_id": "camille", "document_id": doc.ID}))

	resp := ts.api.Post("/api/v1/sessions/"+snap.SessionID+"/seek", map[string]any{"chapter": 2, "play": true})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 2, decode[playback.Snapshot](t, resp).Chapter)

	assert.Eventually(t, func() bool {
		got, err := ts.store.GetByID(context.Background(), doc.ID)
		return err == nil && got.ReadingProgress.LastChapterRead == 2
	}, timeout, tick)
}

func TestSessionErrors(t *testing.T) {
	ts := setupTestServer(t)
	doc := ts.seed(t, "camille", "Contes", "Un.\n\nDeux.")

	t.Run("other owner", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/sessions", map[string]any{"owner_id": "leo", "document_id": doc.ID})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("invalid owner", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/sessions", map[string]any{"owner_id": "a:b", "document_id": doc.ID})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/sessions/ses-missing/play")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("unknown action", func(t *testing.T) {
		snap := decode[playback.Snapshot](t, ts.api.Post("/api/v1/sessions", map[string]any{"owner_id": "camille", "document_id": doc.ID}))
		resp := ts.api.Post("/api/v1/sessions/" + snap.SessionID + "/rewind")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("play while offline", func(t *testing.T) {
		snap := decode[playback.Snapshot](t, ts.api.Post("/api/v1/sessions", map[string]any{"owner_id": "camille", "document_id": doc.ID}))
		ts.online.online.Store(false)
		defer ts.online.online.Store(true)

		resp := ts.api.Post("/api/v1/sessions/" + snap.SessionID + "/play")
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
		assert.Equal(t, "OFFLINE", decode[APIError](t, resp).Code)
	})
}
