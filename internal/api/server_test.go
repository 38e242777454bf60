package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/audio"
	"github.com/lutrinapp/lutrin/internal/capture"
	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/media/images"
	"github.com/lutrinapp/lutrin/internal/monitor"
	"github.com/lutrinapp/lutrin/internal/search"
	"github.com/lutrinapp/lutrin/internal/service"
	"github.com/lutrinapp/lutrin/internal/sse"
	"github.com/lutrinapp/lutrin/internal/store"
)

var testLogger = slog.New(slog.DiscardHandler)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// onlineFlag is a switchable connectivity view shared by the services and
// the status endpoint.
type onlineFlag struct {
	online atomic.Bool
}

func (o *onlineFlag) Online() bool { return o.online.Load() }

func (o *onlineFlag) Report() monitor.Report {
	if o.online.Load() {
		return monitor.Report{State: monitor.StateOnline, Message: "gateway ready", Running: true}
	}
	return monitor.Report{State: monitor.StateOffline, LastError: "connection refused", Running: true}
}

type fakeEpubs struct {
	result *gateway.EpubResult
	err    error

	mu       sync.Mutex
	fileName string
	body     []byte
}

func (f *fakeEpubs) AddEpub(_ context.Context, fileName string, r io.Reader) (*gateway.EpubResult, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.fileName, f.body = fileName, body
	f.mu.Unlock()
	return f.result, f.err
}

// fakePipeline records the engines it was asked to use.
type fakePipeline struct {
	run *domain.PipelineRun
	err error

	mu      sync.Mutex
	ocr     string
	tts     string
	image   []byte
	stored  string
	fixture string
}

func (p *fakePipeline) Running() bool { return false }

func (p *fakePipeline) RunCycle(ctx context.Context, src capture.ImageSource, ocr, tts string) (*domain.PipelineRun, error) {
	data, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.image, p.ocr, p.tts = data, ocr, tts
	p.mu.Unlock()
	return p.run, p.err
}

func (p *fakePipeline) RunFromStoredImage(_ context.Context, name, ocr, tts string) (*domain.PipelineRun, error) {
	p.mu.Lock()
	p.stored, p.ocr, p.tts = name, ocr, tts
	p.mu.Unlock()
	return p.run, p.err
}

func (p *fakePipeline) RunFromStaticText(_ context.Context, name, tts string) (*domain.PipelineRun, error) {
	p.mu.Lock()
	p.fixture, p.tts = name, tts
	p.mu.Unlock()
	return p.run, p.err
}

type echoTTS struct{}

func (echoTTS) RunTTS(_ context.Context, text, _ string) (string, error) {
	return "/audio/" + text, nil
}

// longClips hands out hour-long clips so sessions stay playing.
type longClips struct {
	dir string
	n   atomic.Int32
}

func (l *longClips) Download(_ context.Context, _ string) (*audio.Clip, error) {
	path := filepath.Join(l.dir, fmt.Sprintf("clip-%d.wav", l.n.Add(1)))
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		return nil, err
	}
	return audio.NewClip(path, time.Hour, 4), nil
}

type testServer struct {
	*Server
	api      humatest.TestAPI
	store    *store.Store
	index    *search.SearchIndex
	online   *onlineFlag
	epubs    *fakeEpubs
	pipeline *fakePipeline
	events   *sse.Manager
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.New(t.TempDir(), testLogger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, _, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir(), Logger: testLogger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	st.SetSearchIndexer(index)

	online := &onlineFlag{}
	online.online.Store(true)

	epubs := &fakeEpubs{}
	library := service.NewLibraryService(st, epubs, online, index, testLogger)

	sessions := service.NewSessionService(service.SessionDeps{
		Documents: st,
		TTS:       echoTTS{},
		Clips:     &longClips{dir: t.TempDir()},
		Online:    online,
		Logger:    testLogger,
		TTSEngine: "piper",
	})
	t.Cleanup(func() { _ = sessions.Shutdown() })

	events := sse.NewManager(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go events.Start(ctx)

	pipeline := &fakePipeline{}

	s := NewServer(&Services{
		Library:  library,
		Sessions: sessions,
		Pipeline: pipeline,
		Status:   online,
		Index:    index,
		Events:   events,
	}, Options{OCREngine: "tesseract", TTSEngine: "piper"}, testLogger)

	return &testServer{
		Server:   s,
		api:      humatest.Wrap(t, s.API()),
		store:    st,
		index:    index,
		online:   online,
		epubs:    epubs,
		pipeline: pipeline,
		events:   events,
	}
}

// seed stores a document directly.
func (ts *testServer) seed(t *testing.T, owner, title, text string) *domain.Document {
	t.Helper()
	doc := domain.NewDocument(owner, title, []string{"Anonyme"}, text)
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now
	_, err := ts.store.Create(context.Background(), doc)
	require.NoError(t, err)
	return doc
}

// upload posts a single-file multipart form through the full router.
func (ts *testServer) upload(t *testing.T, path, field, fileName string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := range 60 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: 90, B: uint8(y * 4), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return images.DataURI("image/png", buf.Bytes())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestErrorMapping(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/documents/999")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	body := decode[APIError](t, resp)
	assert.Equal(t, string(domainerrors.CodeNotFound), body.Code)
}

func TestErrorMapping_SchemaViolationIsBadRequest(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/owners/camille/documents", map[string]any{"title": "Sans texte"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	body := decode[APIError](t, resp)
	assert.Equal(t, string(domainerrors.CodeValidation), body.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://reader.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadRateLimit(t *testing.T) {
	ts := setupTestServer(t)
	limiter := NewRateLimiter(1, time.Hour, 1)
	t.Cleanup(limiter.Stop)
	limited := NewServer(ts.services, Options{UploadLimiter: limiter}, testLogger)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/runs", nil)
		req.RemoteAddr = "192.0.2.7:5000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	// The first request passes the limiter and fails form parsing.
	assert.Equal(t, http.StatusBadRequest, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestEventsStream(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?owner=camille", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "connected")
}

func TestEventsStream_RequiresOwner(t *testing.T) {
	ts := setupTestServer(t)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
