package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Next(t *testing.T) {
	t.Run("first id follows start", func(t *testing.T) {
		assert.Equal(t, uint32(1), New[uint32](0).Next())
		assert.Equal(t, uint32(101), New[uint32](100).Next())
	})

	t.Run("sequential", func(t *testing.T) {
		g := New[uint32](0)
		for want := uint32(1); want <= 10; want++ {
			assert.Equal(t, want, g.Next())
		}
	})

	t.Run("wraps at type maximum", func(t *testing.T) {
		g := New[uint16](0xFFFE)
		assert.Equal(t, uint16(0xFFFF), g.Next())
		assert.Equal(t, uint16(0), g.Next())
	})

	t.Run("skips reserved values", func(t *testing.T) {
		g := New[uint16](0xFFFD, 0xFFFF, 0)
		assert.Equal(t, uint16(0xFFFE), g.Next())
		assert.Equal(t, uint16(1), g.Next())
	})

	t.Run("bounded wraps after limit", func(t *testing.T) {
		g := NewBounded[uint16](0x0EFE, 0x0EFF, 0)
		assert.Equal(t, uint16(0x0EFF), g.Next())
		assert.Equal(t, uint16(1), g.Next())
	})

	t.Run("named types", func(t *testing.T) {
		type handle uint16
		g := New[handle](0x10)
		assert.Equal(t, handle(0x11), g.Next())
	})
}

func TestGenerator_Concurrent(t *testing.T) {
	g := New[uint32](0)
	const n = 500

	ids := make([]uint32, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			ids[i] = g.Next()
		}()
	}
	wg.Wait()

	seen := make(map[uint32]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.GreaterOrEqual(t, id, uint32(1))
		assert.LessOrEqual(t, id, uint32(n))
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestGenerator_Independent(t *testing.T) {
	a, b := New[uint32](0), New[uint32](0)

	assert.Equal(t, uint32(1), a.Next())
	assert.Equal(t, uint32(1), b.Next())
	assert.Equal(t, uint32(2), a.Next())
}
