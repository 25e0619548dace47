package queue

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starling/internal/stats"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	c, err := NewCollection(t.TempDir(), stats.New())
	require.NoError(t, err)
	return c
}

func TestPutCreatesQueueLazily(t *testing.T) {
	c := newTestCollection(t)
	assert.True(t, c.Put("jobs", []byte("payload")))
	assert.NotNil(t, c.Queues()["jobs"])
}

func TestGetNeverCreatesQueue(t *testing.T) {
	c := newTestCollection(t)
	_, ok := c.Get("unknown")
	assert.False(t, ok)
	assert.Empty(t, c.Queues())
}

func TestPutGetUpdatesCounters(t *testing.T) {
	c := newTestCollection(t)
	c.Put("jobs", []byte("hello"))

	assert.EqualValues(t, 1, c.TotalItems())
	assert.EqualValues(t, 5, c.CurrentBytes())

	v, ok := c.Get("jobs")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
	assert.EqualValues(t, 1, c.GetHits())
	assert.EqualValues(t, 0, c.CurrentBytes())

	_, ok = c.Get("jobs")
	assert.False(t, ok)
	assert.EqualValues(t, 1, c.GetMisses())
}

func TestDeletePurgesQueue(t *testing.T) {
	c := newTestCollection(t)
	c.Put("jobs", []byte("x"))
	assert.True(t, c.Delete("jobs"))
	assert.False(t, c.Delete("jobs"), "deleting twice reports the queue is no longer present")
	assert.Empty(t, c.Queues())
}

func TestConcurrentFirstReferenceCreatesExactlyOneQueue(t *testing.T) {
	c := newTestCollection(t)

	const n = 50
	var wg sync.WaitGroup
	results := make([]*PersistentQueue, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Queue("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.NotNil(t, results[i])
		assert.Same(t, results[0], results[i], "every concurrent first reference must observe the same instance")
	}
}

func TestCloseRejectsFurtherReferences(t *testing.T) {
	c := newTestCollection(t)
	c.Put("jobs", []byte("x"))
	c.Close()

	assert.False(t, c.Put("jobs", []byte("y")))
	assert.Nil(t, c.Queue("anything"))
}

func TestNewCollectionCreatesRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "queues")
	c, err := NewCollection(root, stats.New())
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestCollectionReconcilesCurrentBytesOnReopen(t *testing.T) {
	root := t.TempDir()
	c := func() *Collection {
		c, err := NewCollection(root, stats.New())
		require.NoError(t, err)
		return c
	}()
	c.Put("jobs", []byte("hello"))
	c.Put("jobs", []byte("world!"))
	c.Get("jobs") // drains "hello"
	c.Close()

	reopened, err := NewCollection(root, stats.New())
	require.NoError(t, err)
	// Queues are only rediscovered lazily, on first reference — exactly as
	// at first creation.
	require.NotNil(t, reopened.Queue("jobs"))
	assert.EqualValues(t, len("world!"), reopened.CurrentBytes())
}
