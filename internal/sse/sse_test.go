package sse

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/domain"
)

var testLogger = slog.New(slog.DiscardHandler)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown(context.Background())
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt := <-c.EventChan:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestManager_OwnerScopedDelivery(t *testing.T) {
	m := startManager(t)

	camille, err := m.Connect("camille")
	require.NoError(t, err)
	louis, err := m.Connect("louis")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	doc := domain.NewDocument("camille", "Nana", []string{"Émile Zola"}, "Un.\n\nDeux.")
	doc.ID = 4
	m.Emit(NewDocumentCreatedEvent(doc))
	m.Emit(NewConnectivityEvent(false, time.Now()))

	evt := receive(t, camille)
	assert.Equal(t, EventDocumentCreated, evt.Type)
	data, ok := evt.Data.(DocumentEventData)
	require.True(t, ok)
	assert.Equal(t, int64(4), data.Document.ID)
	assert.Equal(t, 2, data.Document.ChapterCount)

	assert.Equal(t, EventConnectivityOffline, receive(t, camille).Type)
	// louis only sees the broadcast.
	assert.Equal(t, EventConnectivityOffline, receive(t, louis).Type)
}

func TestManager_DisconnectAndShutdown(t *testing.T) {
	m := NewManager(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("")
	require.NoError(t, err)
	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())

	_, err = m.Connect("")
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.ClientCount())

	// Emitting after shutdown is a no-op.
	m.Emit(NewHeartbeatEvent())
	m.Emit("not an event")
}

func TestHandler_StreamsOwnerEvents(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, func(r *http.Request) (string, error) {
		owner := r.URL.Query().Get("owner")
		if strings.Contains(owner, ":") {
			return "", errors.New("invalid owner")
		}
		return owner, nil
	}, testLogger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "?owner=bad:owner")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?owner=camille", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return event, data
			}
		}
	}

	event, data := readFrame()
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, `"owner_id":"camille"`)

	m.Emit(NewIngestFailedEvent("louis", "autre.epub", "ignored"))
	m.Emit(NewIngestFailedEvent("camille", "horla.epub", "no readable text"))

	event, data = readFrame()
	assert.Equal(t, string(EventIngestFailed), event)
	assert.Contains(t, data, `"file_name":"horla.epub"`)
	assert.NotContains(t, data, "owner_id", "the owner scope is not serialized")
}

func TestHandler_RejectsNonGet(t *testing.T) {
	h := NewHandler(NewManager(testLogger), nil, testLogger)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
