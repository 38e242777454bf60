package watcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/sse"
)

type fakeIngester struct {
	mu     sync.Mutex
	err    error
	calls  []string
	nextID int64
}

func (f *fakeIngester) Ingest(_ context.Context, ownerID, fileName string, r io.Reader) (*domain.Document, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s:%s", ownerID, fileName, body))
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	doc := domain.NewDocument(ownerID, fileName, nil, string(body))
	doc.ID = f.nextID
	return doc, nil
}

func (f *fakeIngester) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeIngester) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	if evt, ok := event.(sse.Event); ok {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	}
}

func (r *recordingEmitter) all() []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sse.Event(nil), r.events...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeBook(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runInbox(t *testing.T, root string, ingester Ingester, emitter EventEmitter) *Inbox {
	t.Helper()
	inbox, err := NewInbox(root, ingester, emitter, testLogger, Options{SettleDelay: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return inbox
}

func TestNewInbox_RequiresRoot(t *testing.T) {
	_, err := NewInbox("", &fakeIngester{}, nil, testLogger, Options{})
	assert.Error(t, err)
}

func TestInbox_IngestsWaitingFilesOnStart(t *testing.T) {
	root := t.TempDir()
	writeBook(t, filepath.Join(root, "camille", "horla.epub"), "Le Horla")
	writeBook(t, filepath.Join(root, "camille", "notes.txt"), "ignored")
	writeBook(t, filepath.Join(root, "camille", "nested", "deep.epub"), "ignored")

	ingester := &fakeIngester{}
	runInbox(t, root, ingester, nil)

	done := filepath.Join(root, "camille", DoneDir, "horla.epub")
	assert.Eventually(t, func() bool { return exists(done) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, exists(filepath.Join(root, "camille", "horla.epub")))
	assert.True(t, exists(filepath.Join(root, "camille", "notes.txt")))
	assert.Equal(t, []string{"camille/horla.epub:Le Horla"}, ingester.seen())
}

func TestInbox_IngestsDroppedFiles(t *testing.T) {
	root := t.TempDir()
	ingester := &fakeIngester{}
	runInbox(t, root, ingester, nil)

	// An earlier file of the same name is already in .done.
	writeBook(t, filepath.Join(root, "louis", DoneDir, "candide.epub"), "old")
	time.Sleep(100 * time.Millisecond)
	writeBook(t, filepath.Join(root, "louis", "candide.epub"), "Candide")

	renamed := filepath.Join(root, "louis", DoneDir, "candide-1.epub")
	assert.Eventually(t, func() bool { return exists(renamed) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"louis/candide.epub:Candide"}, ingester.seen())
}

func TestInbox_RejectedFileMovesToFailed(t *testing.T) {
	root := t.TempDir()
	writeBook(t, filepath.Join(root, "camille", "broken.epub"), "???")

	ingester := &fakeIngester{err: domainerrors.Validation("\"broken.epub\" contains no readable text")}
	emitter := &recordingEmitter{}
	runInbox(t, root, ingester, emitter)

	failed := filepath.Join(root, "camille", FailedDir, "broken.epub")
	assert.Eventually(t, func() bool { return exists(failed) }, 2*time.Second, 10*time.Millisecond)

	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, sse.EventIngestFailed, events[0].Type)
	assert.Equal(t, "camille", events[0].OwnerID)
	assert.Equal(t, sse.IngestFailedEventData{
		FileName: "broken.epub",
		Reason:   "\"broken.epub\" contains no readable text",
	}, events[0].Data)
}

func TestInbox_OfflineLeavesFileUntilOnline(t *testing.T) {
	root := t.TempDir()
	book := filepath.Join(root, "camille", "horla.epub")
	writeBook(t, book, "Le Horla")

	ingester := &fakeIngester{err: domainerrors.ErrOffline}
	inbox := runInbox(t, root, ingester, nil)

	assert.Eventually(t, func() bool { return len(ingester.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, exists(book))

	ingester.setErr(nil)
	inbox.OnOnline()

	done := filepath.Join(root, "camille", DoneDir, "horla.epub")
	assert.Eventually(t, func() bool { return exists(done) }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, ingester.seen(), 2)
}
