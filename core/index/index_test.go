package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(sqlite.OpenMemory(t))
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *Store, entries ...Entry) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(w *Writer) error {
		for _, e := range entries {
			if err := w.Add(e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestLookup(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		Entry{Type: "verse", DocumentID: 1, Key: "115", Start: 10, End: 20},
		Entry{Type: "verse", DocumentID: 2, Key: "115", Start: 0, End: 5},
		Entry{Type: "verse", DocumentID: 2, Key: "116", Start: 5, End: 9},
		Entry{Type: "scene", DocumentID: 1, Key: "115", Start: 0, End: 100},
	)

	err := s.View(context.Background(), func(r *Reader) error {
		got, err := r.Lookup("verse", "115", 0)
		require.NoError(t, err)
		assert.Equal(t, []Entry{
			{Type: "verse", DocumentID: 1, Key: "115", Start: 10, End: 20},
			{Type: "verse", DocumentID: 2, Key: "115", Start: 0, End: 5},
		}, got)

		limited, err := r.Lookup("verse", "115", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		none, err := r.Lookup("verse", "999", 10)
		require.NoError(t, err)
		assert.Empty(t, none)

		n, err := r.Count("verse")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteIsScopedByType(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		Entry{Type: "verse", DocumentID: 1, Key: "1", Start: 0, End: 1},
		Entry{Type: "verse", DocumentID: 2, Key: "1", Start: 0, End: 1},
		Entry{Type: "scene", DocumentID: 1, Key: "1", Start: 0, End: 1},
	)

	var removed int64
	require.NoError(t, s.Update(context.Background(), func(w *Writer) error {
		var err error
		removed, err = w.Delete("verse", []int64{1, 3})
		return err
	}))
	assert.Equal(t, int64(1), removed)

	require.NoError(t, s.View(context.Background(), func(r *Reader) error {
		verses, err := r.ForDocument("verse", 1)
		require.NoError(t, err)
		assert.Empty(t, verses)

		scenes, err := r.ForDocument("scene", 1)
		require.NoError(t, err)
		assert.Len(t, scenes, 1)

		other, err := r.ForDocument("verse", 2)
		require.NoError(t, err)
		assert.Len(t, other, 1)
		return nil
	}))
}

func TestDeleteManyIDs(t *testing.T) {
	s := newTestStore(t)
	ids := make([]int64, 0, deleteChunk*2+3)
	var entries []Entry
	for i := int64(0); i < deleteChunk*2+3; i++ {
		ids = append(ids, i)
		if i%100 == 0 {
			entries = append(entries, Entry{Type: "verse", DocumentID: i, Key: "1"})
		}
	}
	seed(t, s, entries...)

	require.NoError(t, s.Update(context.Background(), func(w *Writer) error {
		n, err := w.Delete("verse", ids)
		assert.Equal(t, int64(len(entries)), n)
		return err
	}))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.Update(context.Background(), func(w *Writer) error {
		require.NoError(t, w.Add(Entry{Type: "verse", DocumentID: 1, Key: "1", Start: 0, End: 1}))
		n, err := w.Count("verse")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "writer sees its own writes")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.View(context.Background(), func(r *Reader) error {
		n, err := r.Count("verse")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	}))
}

func TestAddValidation(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), func(w *Writer) error {
		return w.Add(Entry{DocumentID: 1, Key: "1"})
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = s.Update(context.Background(), func(w *Writer) error {
		return w.Add(Entry{Type: "verse", DocumentID: 1, Key: "1", Start: 5, End: 4})
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOpenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	s, err := Open(path)
	require.NoError(t, err)
	seed(t, s, Entry{Type: "verse", DocumentID: 7, Key: "42", Start: 1, End: 2})
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(context.Background(), func(r *Reader) error {
		got, err := r.Lookup("verse", "42", 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		return nil
	}))
}
