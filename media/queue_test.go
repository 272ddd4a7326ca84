package media

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func img(n int) QueuedImage {
	return QueuedImage{MIMEType: MIMETypeJPEG, Base64Data: fmt.Sprintf("img-%d", n)}
}

func TestImageQueue_EvictsOldest(t *testing.T) {
	q := NewImageQueue(5)
	for i := 1; i <= 7; i++ {
		q.Push(img(i))
	}

	require.Equal(t, 5, q.Size())
	assert.Equal(t, 2, q.Evicted())

	got := q.TakeAll()
	require.Len(t, got, 5)
	for i, im := range got {
		assert.Equal(t, fmt.Sprintf("img-%d", i+3), im.Base64Data)
	}
	assert.Equal(t, 0, q.Size())
	assert.Empty(t, q.TakeAll())
}

func TestImageQueue_PushReturnsLength(t *testing.T) {
	q := NewImageQueue(2)
	assert.Equal(t, 1, q.Push(img(1)))
	assert.Equal(t, 2, q.Push(img(2)))
	assert.Equal(t, 2, q.Push(img(3)))
}

func TestImageQueue_StampsInsertion(t *testing.T) {
	q := NewImageQueue(3)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	q.Push(img(1))
	explicit := img(2)
	explicit.InsertedAt = fixed.Add(time.Hour)
	q.Push(explicit)

	got := q.TakeAll()
	assert.Equal(t, fixed, got[0].InsertedAt)
	assert.Equal(t, fixed.Add(time.Hour), got[1].InsertedAt)
}

func TestImageQueue_MinimumCap(t *testing.T) {
	q := NewImageQueue(0)
	assert.Equal(t, 1, q.MaxSize())
	q.Push(img(1))
	q.Push(img(2))
	assert.Equal(t, "img-2", q.TakeAll()[0].Base64Data)
}

func TestImageQueue_Clear(t *testing.T) {
	q := NewImageQueue(3)
	q.Push(img(1))
	q.Clear()
	assert.Equal(t, 0, q.Size())
}

func TestImageQueue_KeepsLastMaxSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxSize := rapid.IntRange(1, 10).Draw(t, "maxSize")
		k := rapid.IntRange(1, 20).Draw(t, "k")

		q := NewImageQueue(maxSize)
		for i := 0; i < maxSize+k; i++ {
			q.Push(img(i))
		}
		got := q.TakeAll()
		if len(got) != maxSize {
			t.Fatalf("len = %d, want %d", len(got), maxSize)
		}
		for i, im := range got {
			if want := fmt.Sprintf("img-%d", k+i); im.Base64Data != want {
				t.Fatalf("got[%d] = %s, want %s", i, im.Base64Data, want)
			}
		}
		if q.Size() != 0 {
			t.Fatalf("queue not empty after TakeAll")
		}
	})
}
