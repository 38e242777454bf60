// Package storetest holds the behavioral contract every store.Library
// backend must satisfy. Backends run it from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/sse"
	"github.com/lutrinapp/lutrin/internal/store"
)

// Opener opens a backend rooted at dir. Opening the same dir twice must
// see the same data.
type Opener func(t *testing.T, dir string, emitter store.EventEmitter) store.Library

// RecordingEmitter captures emitted events.
type RecordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

// Emit implements store.EventEmitter.
func (r *RecordingEmitter) Emit(event any) {
	if evt, ok := event.(sse.Event); ok {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	}
}

// Types returns the emitted event types in order.
func (r *RecordingEmitter) Types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]sse.EventType, len(r.events))
	for i, evt := range r.events {
		types[i] = evt.Type
	}
	return types
}

func sampleDocument(owner, title string) *domain.Document {
	doc := domain.NewDocument(owner, title, []string{"Guy de Maupassant"}, "Premier.\n\nDeuxième.\n\nTroisième.")
	doc.Description = "Nouvelles"
	return doc
}

// Run executes the contract against open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then get round trips", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		doc := sampleDocument("user-1", "Le Horla")
		series := 1.0
		doc.SeriesName = "Contes"
		doc.SeriesIndex = &series

		id, err := lib.Create(ctx, doc)
		require.NoError(t, err)
		assert.Positive(t, id)
		assert.Equal(t, id, doc.ID)

		got, err := lib.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("ids are monotonic and never reused", func(t *testing.T) {
		dir := t.TempDir()
		lib := open(t, dir, nil)

		first, err := lib.Create(ctx, sampleDocument("user-1", "A"))
		require.NoError(t, err)
		second, err := lib.Create(ctx, sampleDocument("user-1", "B"))
		require.NoError(t, err)
		assert.Greater(t, second, first)

		require.NoError(t, lib.DeleteByID(ctx, second))
		require.NoError(t, lib.Close())

		reopened := open(t, dir, nil)
		third, err := reopened.Create(ctx, sampleDocument("user-1", "C"))
		require.NoError(t, err)
		assert.Greater(t, third, second)
	})

	t.Run("get missing id is not found", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		_, err := lib.GetByID(ctx, 42)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("list by owner returns only that owner", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		for _, title := range []string{"Bel-Ami", "Une vie"} {
			_, err := lib.Create(ctx, sampleDocument("alice", title))
			require.NoError(t, err)
		}
		_, err := lib.Create(ctx, sampleDocument("bob", "Pierre et Jean"))
		require.NoError(t, err)
		// An owner id that extends another must not leak into its listing.
		_, err = lib.Create(ctx, sampleDocument("alice:archive", "Fort comme la mort"))
		require.NoError(t, err)

		docs, err := lib.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		titles := make([]string, 0, len(docs))
		for _, d := range docs {
			titles = append(titles, d.Title)
		}
		assert.ElementsMatch(t, []string{"Bel-Ami", "Une vie"}, titles)

		empty, err := lib.ListByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)

		all, err := lib.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("update replaces the record", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		doc := sampleDocument("user-1", "Boule de suif")
		_, err := lib.Create(ctx, doc)
		require.NoError(t, err)

		doc.Style = "Naturalisme"
		doc.ReadingProgress.LastChapterRead = 2
		require.NoError(t, lib.Update(ctx, doc))

		got, err := lib.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Naturalisme", got.Style)
		assert.Equal(t, 2, got.ReadingProgress.LastChapterRead)
	})

	t.Run("update of missing id is not found", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		doc := sampleDocument("user-1", "Fantôme")
		doc.ID = 99
		err := lib.Update(ctx, doc)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)

		_, err = lib.GetByID(ctx, 99)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("owner change moves the document between listings", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		doc := sampleDocument("alice", "Mont-Oriol")
		_, err := lib.Create(ctx, doc)
		require.NoError(t, err)

		doc.OwnerID = "bob"
		require.NoError(t, lib.Update(ctx, doc))

		alice, err := lib.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, alice)
		bob, err := lib.ListByOwner(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, bob, 1)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		id, err := lib.Create(ctx, sampleDocument("user-1", "Yvette"))
		require.NoError(t, err)

		require.NoError(t, lib.DeleteByID(ctx, id))
		require.NoError(t, lib.DeleteByID(ctx, id))
		require.NoError(t, lib.DeleteByID(ctx, 12345))

		_, err = lib.GetByID(ctx, id)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)

		docs, err := lib.ListByOwner(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("set progress keeps other fields", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		doc := sampleDocument("user-1", "Contes de la bécasse")
		_, err := lib.Create(ctx, doc)
		require.NoError(t, err)

		// A metadata edit lands from another flow before the progress write.
		edited, err := lib.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		edited.Style = "Conte"
		require.NoError(t, lib.Update(ctx, edited))

		require.NoError(t, lib.SetProgress(ctx, doc.ID, 2))

		got, err := lib.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Conte", got.Style)
		assert.Equal(t, 2, got.ReadingProgress.LastChapterRead)
		assert.Equal(t, domain.CategoryInProgress, got.Category())
	})

	t.Run("set progress validates input", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		err := lib.SetProgress(ctx, 7, 1)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)

		id, err := lib.Create(ctx, sampleDocument("user-1", "Sur l'eau"))
		require.NoError(t, err)
		err = lib.SetProgress(ctx, id, -1)
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("concurrent progress writes all land", func(t *testing.T) {
		lib := open(t, t.TempDir(), nil)

		id, err := lib.Create(ctx, sampleDocument("user-1", "Clair de lune"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 1; i <= 8; i++ {
			wg.Go(func() {
				assert.NoError(t, lib.SetProgress(ctx, id, i))
			})
		}
		wg.Wait()

		got, err := lib.GetByID(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.ReadingProgress.LastChapterRead, 1)
		assert.LessOrEqual(t, got.ReadingProgress.LastChapterRead, 8)
		assert.Equal(t, "Clair de lune", got.Title)
	})

	t.Run("changes are announced", func(t *testing.T) {
		rec := &RecordingEmitter{}
		lib := open(t, t.TempDir(), rec)

		doc := sampleDocument("user-1", "Miss Harriet")
		_, err := lib.Create(ctx, doc)
		require.NoError(t, err)
		require.NoError(t, lib.SetProgress(ctx, doc.ID, 1))
		require.NoError(t, lib.DeleteByID(ctx, doc.ID))
		require.NoError(t, lib.DeleteByID(ctx, doc.ID))

		assert.Equal(t, []sse.EventType{
			sse.EventDocumentCreated,
			sse.EventDocumentUpdated,
			sse.EventDocumentDeleted,
		}, rec.Types())
	})
}
