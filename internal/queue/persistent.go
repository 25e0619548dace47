package queue

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxLogSize is the rotation threshold: once the active log exceeds this
// size and the in-memory queue has drained, the log is rotated.
const maxLogSize = 16 * 1024 * 1024 // 16 MiB

// PersistentQueue is a single named, durable FIFO. Every mutating
// operation is serialized by mu so enqueue order equals dequeue order and
// the log records effects in the exact order they become observable in
// memory, per the per-queue ordering contract.
type PersistentQueue struct {
	name    string
	logPath string

	mu         sync.Mutex
	items      [][]byte
	totalItems uint64
	log        *transactionLog

	// initialBytes is the net byte delta reconstructed by replaying the
	// log at Open: each push credits the record's length and each pop
	// debits it, mirroring the live current_bytes bookkeeping in
	// Collection.Put/Get so the final value is exactly what current_bytes
	// would be had it been tracked continuously since the first write.
	initialBytes int64
}

// Open opens (creating if absent) the transaction log at
// <root>/<name>, replays it to reconstruct in-memory state, and returns
// the queue ready for use.
func Open(root, name string) (*PersistentQueue, error) {
	path := filepath.Join(root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open queue log %s: %w", path, err)
	}

	q := &PersistentQueue{name: name, logPath: path}

	err = replayLog(f, func(ev logEvent) error {
		if ev.push {
			q.items = append(q.items, ev.payload)
			q.totalItems++
			q.initialBytes += int64(len(ev.payload))
			return nil
		}
		if len(q.items) > 0 {
			popped := q.items[0]
			q.items = q.items[1:]
			q.initialBytes -= int64(len(popped))
		}
		return nil
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("replay queue log %s: %w", path, err)
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("seek queue log %s: %w", path, err)
	}

	q.log = &transactionLog{file: f, w: bufio.NewWriter(f), size: size}
	return q, nil
}

// Name returns the queue's name.
func (q *PersistentQueue) Name() string { return q.name }

// Put appends value to the tail of the queue. When doLog is true the
// value is first durably recorded as a PUSH transaction; a log write
// failure (or an already-closed log) aborts the operation and returns
// ErrLogClosed/the underlying I/O error without mutating memory.
func (q *PersistentQueue) Put(value []byte, doLog bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if doLog {
		if q.log == nil {
			return ErrLogClosed
		}
		if err := q.log.writePush(value); err != nil {
			return err
		}
	}

	q.items = append(q.items, value)
	q.totalItems++

	if doLog {
		q.maybeRotateLocked()
	}
	return nil
}

// Get removes and returns the head of the queue. ok is false when the
// queue is empty; Get never blocks. When doLog is true the pop is first
// durably recorded; a closed log aborts the operation before anything is
// dequeued.
func (q *PersistentQueue) Get(doLog bool) (value []byte, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if doLog && q.log == nil {
		return nil, false, ErrLogClosed
	}
	if len(q.items) == 0 {
		return nil, false, nil
	}

	if doLog {
		if err := q.log.writePop(); err != nil {
			return nil, false, err
		}
	}

	value = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	if doLog {
		q.maybeRotateLocked()
	}
	return value, true, nil
}

// Len returns the number of items currently resident in memory.
func (q *PersistentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TotalItems returns the monotonically non-decreasing count of items ever
// enqueued to this queue.
func (q *PersistentQueue) TotalItems() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalItems
}

// LogSize returns the current byte size of the active log file.
func (q *PersistentQueue) LogSize() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.log == nil {
		return 0
	}
	return q.log.Size()
}

// InitialBytes returns the net body-byte delta reconstructed at Open, for
// the collection to reconcile current_bytes.
func (q *PersistentQueue) InitialBytes() int64 { return q.initialBytes }

// Close flushes and closes the transaction log. Subsequent logged
// Put/Get calls fail with ErrLogClosed.
func (q *PersistentQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.log == nil {
		return nil
	}
	err := q.log.Close()
	q.log = nil
	return err
}

// Purge closes the log (if open) and unlinks its file. Idempotent.
func (q *PersistentQueue) Purge() error {
	q.mu.Lock()
	logPath := q.logPath
	l := q.log
	q.log = nil
	q.mu.Unlock()

	if l != nil {
		if err := l.Close(); err != nil {
			return fmt.Errorf("close log before purge: %w", err)
		}
	}
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log %s: %w", logPath, err)
	}
	return nil
}

// maybeRotateLocked rotates the active log file if it has grown past
// maxLogSize while the in-memory queue has fully drained. Rotation is
// best-effort: a failure is logged but does not fail the triggering
// operation, which already completed durably against the old file.
func (q *PersistentQueue) maybeRotateLocked() {
	if q.log == nil || q.log.Size() <= maxLogSize || len(q.items) != 0 {
		return
	}

	if err := q.log.Close(); err != nil {
		log.Printf("queue %s: rotate: close active log: %v", q.name, err)
		return
	}

	rotated := fmt.Sprintf("%s.%d", q.logPath, time.Now().Unix())
	if err := os.Rename(q.logPath, rotated); err != nil {
		log.Printf("queue %s: rotate: rename to %s: %v", q.name, rotated, err)
	}

	fresh, err := openTransactionLog(q.logPath)
	if err != nil {
		log.Printf("queue %s: rotate: reopen log: %v", q.name, err)
		return
	}
	q.log = fresh
}
