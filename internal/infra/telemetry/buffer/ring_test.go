package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRingSnapshotOrder(t *testing.T) {
	ring := NewRing[int](3)
	ring.Add(1)
	ring.Add(2)
	ring.Add(3)
	ring.Add(4)

	snapshot := ring.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 items, got %d", len(snapshot))
	}
	if snapshot[0] != 2 || snapshot[1] != 3 || snapshot[2] != 4 {
		t.Fatalf("unexpected snapshot order: %+v", snapshot)
	}
	require.Equal(t, uint64(1), ring.Evicted())
	require.Equal(t, 3, ring.Cap())
	require.Equal(t, 3, ring.Len())
}

func TestRingOverflowKeepsNewest(t *testing.T) {
	ring := NewRing[int](1000)
	for i := 1; i <= 1100; i++ {
		ring.Add(i)
	}
	snapshot := ring.Snapshot()
	require.Len(t, snapshot, 1000)
	require.Equal(t, 101, snapshot[0])
	require.Equal(t, 1100, snapshot[len(snapshot)-1])
}

func TestRingTailAndFilter(t *testing.T) {
	ring := NewRing[int](10)
	for i := 1; i <= 6; i++ {
		ring.Add(i)
	}
	require.Equal(t, []int{5, 6}, ring.Tail(2))
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, ring.Tail(0))

	even := ring.Filter(func(v int) bool { return v%2 == 0 }, 2)
	require.Equal(t, []int{4, 6}, even)
	require.Len(t, ring.Filter(nil, 0), 6)
}

func TestRingReset(t *testing.T) {
	ring := NewRing[string](2)
	ring.Add("a")
	ring.Add("b")
	ring.Add("c")
	ring.Reset()
	require.Zero(t, ring.Len())
	require.Zero(t, ring.Evicted())
	require.Nil(t, ring.Snapshot())

	ring.Add("d")
	require.Equal(t, []string{"d"}, ring.Snapshot())
}

func TestRingNilSafe(t *testing.T) {
	var ring *Ring[int]
	ring.Add(1)
	require.Zero(t, ring.Len())
	require.Nil(t, ring.Snapshot())
}

func TestRingConcurrentAdd(t *testing.T) {
	ring := NewRing[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ring.Add(i)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 64, ring.Len())
	require.Equal(t, uint64(800-64), ring.Evicted())
}

func TestRingBoundProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		count := rapid.IntRange(0, 256).Draw(rt, "count")

		ring := NewRing[int](capacity)
		for i := 0; i < count; i++ {
			ring.Add(i)
		}

		want := count
		if want > capacity {
			want = capacity
		}
		snapshot := ring.Snapshot()
		if len(snapshot) != want {
			rt.Fatalf("len = %d, want %d", len(snapshot), want)
		}
		for i, value := range snapshot {
			if expected := count - want + i; value != expected {
				rt.Fatalf("snapshot[%d] = %d, want %d", i, value, expected)
			}
		}
	})
}
