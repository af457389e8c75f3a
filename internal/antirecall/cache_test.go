package antirecall

import (
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

func entry(id int64) *CachedMessage {
	return &CachedMessage{
		MessageID: id,
		Original:  onebot.Message{onebot.Text(fmt.Sprintf("msg %d", id))},
	}
}

func TestCacheBound(t *testing.T) {
	c := NewCache(100)
	for id := int64(1); id <= 101; id++ {
		c.Put(entry(id))
	}
	if got := c.Len(); got != 100 {
		t.Fatalf("Len = %d, want 100", got)
	}
	if _, ok := c.Get(1); ok {
		t.Fatal("oldest entry survived past capacity")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("second entry evicted too early")
	}
	if _, ok := c.Get(101); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestCachePutDeduplicates(t *testing.T) {
	c := NewCache(3)
	c.Put(entry(1))
	c.Put(entry(2))
	c.Put(entry(3))

	// Re-putting 1 moves it to the tail, so 2 is now the oldest.
	c.Put(entry(1))
	if got := c.Len(); got != 3 {
		t.Fatalf("Len after re-put = %d, want 3", got)
	}
	c.Put(entry(4))
	if _, ok := c.Get(2); ok {
		t.Fatal("expected 2 to be evicted after 1 moved to tail")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("re-put entry evicted")
	}
}

func TestCacheOffsetUp(t *testing.T) {
	c := NewCache(10)
	for _, id := range []int64{11, 12, 13, 14} {
		c.Put(entry(id))
	}

	tests := []struct {
		name    string
		current int64
		target  int64
		wantOff int
		wantOK  bool
	}{
		{name: "two up", current: 14, target: 12, wantOff: 2, wantOK: true},
		{name: "adjacent", current: 14, target: 13, wantOff: 1, wantOK: true},
		{name: "self", current: 14, target: 14, wantOK: false},
		{name: "target newer than current", current: 12, target: 14, wantOK: false},
		{name: "target absent", current: 14, target: 99, wantOK: false},
		{name: "current absent counts from tail", current: 15, target: 12, wantOff: 3, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, ok := c.OffsetUp(tt.current, tt.target)
			if ok != tt.wantOK || off != tt.wantOff {
				t.Fatalf("OffsetUp(%d, %d) = (%d, %v), want (%d, %v)",
					tt.current, tt.target, off, ok, tt.wantOff, tt.wantOK)
			}
		})
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewCache(10)
	c.Put(entry(1))
	c.Put(entry(2))

	c.Remove(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("entry still present after Remove")
	}
	if got := c.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}

	// Unknown ids are tolerated.
	c.Remove(99)
	if got := c.Len(); got != 1 {
		t.Fatalf("Len after removing unknown id = %d, want 1", got)
	}

	// Offsets skip removed entries.
	c.Put(entry(3))
	if off, ok := c.OffsetUp(3, 2); !ok || off != 1 {
		t.Fatalf("OffsetUp after removal = (%d, %v), want (1, true)", off, ok)
	}
}

func TestCacheZeroCapacityFallsBack(t *testing.T) {
	c := NewCache(0)
	for id := int64(1); id <= DefaultCapacity+1; id++ {
		c.Put(entry(id))
	}
	if got := c.Len(); got != DefaultCapacity {
		t.Fatalf("Len = %d, want %d", got, DefaultCapacity)
	}
}
