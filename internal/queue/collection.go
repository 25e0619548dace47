package queue

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"starling/internal/stats"
)

// Collection owns every named PersistentQueue rooted at one directory. It
// guarantees at-most-one PersistentQueue is ever constructed per name even
// under concurrent first references, and refuses all further creation and
// mutation once closed.
type Collection struct {
	root  string
	stats *stats.Statistics

	mu     sync.RWMutex
	queues map[string]*PersistentQueue

	// group de-duplicates concurrent creation of the same not-yet-existing
	// queue name, per the single-flight creation primitive the design
	// explicitly recommends over a hand-rolled per-key lock table.
	group singleflight.Group

	closed int32 // atomic; 0 = open, 1 = shut down
}

// NewCollection creates the root directory if necessary and returns an
// empty Collection backed by it. A root that cannot be created or written
// is a fatal startup condition (CollectionError).
func NewCollection(root string, st *stats.Statistics) (*Collection, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &CollectionError{Path: root, Err: err}
	}
	probe, err := os.CreateTemp(root, ".starling-probe-*")
	if err != nil {
		return nil, &CollectionError{Path: root, Err: err}
	}
	probe.Close()
	os.Remove(probe.Name())
	return &Collection{
		root:   root,
		stats:  st,
		queues: make(map[string]*PersistentQueue),
	}, nil
}

// Put enqueues value onto the named queue, creating it lazily if it does
// not yet exist. It returns false if the collection is shut down or the
// queue could not be created/logged.
func (c *Collection) Put(key string, value []byte) bool {
	q, err := c.getOrCreate(key)
	if err != nil || q == nil {
		return false
	}
	if err := q.Put(value, true); err != nil {
		return false
	}
	c.stats.AddCurrentBytes(int64(len(value)))
	c.stats.IncrTotalItems()
	return true
}

// Get dequeues the head of the named queue. It never creates a queue: an
// unknown or empty name is a miss.
func (c *Collection) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	q := c.queues[key]
	c.mu.RUnlock()

	if q == nil {
		c.stats.IncrGetMisses()
		return nil, false
	}

	value, ok, err := q.Get(true)
	if err != nil || !ok {
		c.stats.IncrGetMisses()
		return nil, false
	}
	c.stats.IncrGetHits()
	c.stats.AddCurrentBytes(-int64(len(value)))
	return value, true
}

// Delete purges and removes the named queue if present.
func (c *Collection) Delete(key string) bool {
	c.mu.Lock()
	q, ok := c.queues[key]
	if ok {
		delete(c.queues, key)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	_ = q.Purge()
	return true
}

// Queues returns a snapshot of every live queue, keyed by name.
func (c *Collection) Queues() map[string]*PersistentQueue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*PersistentQueue, len(c.queues))
	for k, v := range c.queues {
		out[k] = v
	}
	return out
}

// Queue returns the named queue, creating it lazily if necessary, or nil
// if the collection has been shut down.
func (c *Collection) Queue(key string) *PersistentQueue {
	q, err := c.getOrCreate(key)
	if err != nil {
		return nil
	}
	return q
}

// CurrentSize returns the synthetic current_size statistic: the sum of
// in-memory item counts across every live queue.
func (c *Collection) CurrentSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, q := range c.queues {
		total += q.Len()
	}
	return total
}

// CurrentBytes returns the aggregate current_bytes counter.
func (c *Collection) CurrentBytes() int64 { return c.stats.Get(stats.CurrentBytes) }

// TotalItems returns the aggregate total_items counter.
func (c *Collection) TotalItems() int64 { return c.stats.Get(stats.TotalItems) }

// GetHits returns the aggregate get_hits counter.
func (c *Collection) GetHits() int64 { return c.stats.Get(stats.GetHits) }

// GetMisses returns the aggregate get_misses counter.
func (c *Collection) GetMisses() int64 { return c.stats.Get(stats.GetMisses) }

// Close transitions the collection into shutdown (refusing all further
// creation and mutation) and closes every queue's log.
func (c *Collection) Close() {
	atomic.StoreInt32(&c.closed, 1)

	c.mu.Lock()
	queues := c.queues
	c.queues = make(map[string]*PersistentQueue)
	c.mu.Unlock()

	for _, q := range queues {
		_ = q.Close()
	}
}

func (c *Collection) isClosed() bool { return atomic.LoadInt32(&c.closed) != 0 }

// getOrCreate returns the named queue, opening it lazily exactly once
// even under concurrent callers racing on the same unknown name.
func (c *Collection) getOrCreate(key string) (*PersistentQueue, error) {
	if c.isClosed() {
		return nil, fmt.Errorf("queue %s: %w", key, ErrCollectionClosed)
	}

	c.mu.RLock()
	q := c.queues[key]
	c.mu.RUnlock()
	if q != nil {
		return q, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the group: another goroutine may have finished
		// creating it while we waited to enter Do for this key.
		c.mu.RLock()
		existing := c.queues[key]
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		if c.isClosed() {
			return nil, ErrCollectionClosed
		}

		opened, err := Open(c.root, key)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.queues[key] = opened
		c.mu.Unlock()
		c.stats.AddCurrentBytes(opened.InitialBytes())

		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PersistentQueue), nil
}
