// Package antirecall watches monitored groups, keeps a bounded window of
// recent messages and reconstructs recalled ones for out-of-band delivery
// to the configured recipients.
package antirecall

import (
	"sync"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

// DefaultCapacity bounds the recall window. Recalls almost always target
// something said moments ago, so a small window covers the real cases.
const DefaultCapacity = 100

// CachedMessage is one ingested group message held for possible recall.
type CachedMessage struct {
	MessageID  int64
	GroupID    int64
	SenderID   int64
	SenderName string

	// Original holds the author's own segments, quote metadata stripped.
	// It feeds the summary when a later message quotes this one.
	Original onebot.Message

	// Expanded is the display form with reply prefixes already rendered,
	// ready to forward when the message is recalled.
	Expanded onebot.Message

	// ForwardIDs is non-empty when the message carried opaque combined
	// forwards; such content is only recoverable via ArchivedID.
	ForwardIDs []string

	// ArchivedID is the id of the copy cloned into the archive group,
	// 0 when archival was not possible.
	ArchivedID int64
}

// Cache is a bounded FIFO of recent messages with by-id lookup. Insertion
// order is kept so relative positions ("N messages up") stay answerable.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ids      []int64
	byID     map[int64]*CachedMessage
}

// NewCache returns a cache bounded to capacity entries; non-positive
// capacities fall back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		byID:     make(map[int64]*CachedMessage, capacity),
	}
}

// Put inserts m at the tail. Re-putting an id moves it to the tail instead
// of duplicating it; the oldest entries are evicted past capacity.
func (c *Cache) Put(m *CachedMessage) {
	if m == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[m.MessageID]; ok {
		c.ids = removeID(c.ids, m.MessageID)
	}
	c.ids = append(c.ids, m.MessageID)
	c.byID[m.MessageID] = m

	for len(c.ids) > c.capacity {
		oldest := c.ids[0]
		c.ids = c.ids[1:]
		delete(c.byID, oldest)
	}
}

// Get returns the cached message for id.
func (c *Cache) Get(id int64) (*CachedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byID[id]
	return m, ok
}

// Remove drops id from the cache; unknown ids are a no-op.
func (c *Cache) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return
	}
	c.ids = removeID(c.ids, id)
	delete(c.byID, id)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// OffsetUp answers "how many messages above currentID does targetID sit".
// A currentID not yet cached counts as sitting just past the newest entry.
// Returns false when targetID is absent or not strictly older.
func (c *Cache) OffsetUp(currentID, targetID int64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ti := indexOf(c.ids, targetID)
	if ti < 0 {
		return 0, false
	}
	ci := indexOf(c.ids, currentID)
	if ci < 0 {
		ci = len(c.ids)
	}
	off := ci - ti
	if off <= 0 {
		return 0, false
	}
	return off, true
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeID(ids []int64, id int64) []int64 {
	i := indexOf(ids, id)
	if i < 0 {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}
