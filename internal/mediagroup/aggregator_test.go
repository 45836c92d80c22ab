package mediagroup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorFlushesAlbumOnce(t *testing.T) {
	flushed := make(chan Group, 4)
	a := New(Options{Debounce: 20 * time.Millisecond, OnFlush: func(g Group) { flushed <- g }})

	a.Add(Item{ChatID: 1, MediaGroupID: "album", FileID: "f1"})
	a.Add(Item{ChatID: 1, MediaGroupID: "album", FileID: "f2", Caption: "moody"})
	a.Add(Item{ChatID: 1, MediaGroupID: "album", FileID: "f3"})
	a.Add(Item{ChatID: 2, MediaGroupID: "album", FileID: "other"})
	a.Add(Item{ChatID: 1, FileID: "ignored"})

	got := map[int64]Group{}
	for i := 0; i < 2; i++ {
		select {
		case g := <-flushed:
			got[g.ChatID] = g
		case <-time.After(time.Second):
			t.Fatal("album not flushed")
		}
	}

	require.Contains(t, got, int64(1))
	assert.Equal(t, []string{"f1", "f2", "f3"}, got[1].FileIDs)
	assert.Equal(t, "f3", got[1].Last())
	assert.Equal(t, "moody", got[1].Caption)
	assert.Equal(t, "other", got[2].Last())
	assert.Equal(t, 0, a.Pending())

	select {
	case g := <-flushed:
		t.Fatalf("unexpected extra flush: %+v", g)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAggregatorStopDropsPending(t *testing.T) {
	flushed := make(chan Group, 1)
	a := New(Options{Debounce: 20 * time.Millisecond, OnFlush: func(g Group) { flushed <- g }})

	a.Add(Item{ChatID: 1, MediaGroupID: "album", FileID: "f1"})
	assert.Equal(t, 1, a.Pending())
	a.Stop()
	a.Add(Item{ChatID: 1, MediaGroupID: "album", FileID: "f2"})
	assert.Equal(t, 0, a.Pending())

	select {
	case <-flushed:
		t.Fatal("stopped aggregator flushed")
	case <-time.After(60 * time.Millisecond):
	}
	assert.Equal(t, "", Group{}.Last())
}
