package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundtrip(t *testing.T) {
	record := PackRecord(42, 1234, []byte("hello"))
	flags, expiry, body, ok := UnpackRecord(record)
	require.True(t, ok)
	assert.Equal(t, uint32(42), flags)
	assert.Equal(t, uint32(1234), expiry)
	assert.Equal(t, []byte("hello"), body)
}

func TestPackEmptyBody(t *testing.T) {
	record := PackRecord(0, 0, nil)
	assert.Len(t, record, RecordHeaderSize)
	_, _, body, ok := UnpackRecord(record)
	require.True(t, ok)
	assert.Empty(t, body)
}

func TestUnpackTruncatedRecord(t *testing.T) {
	_, _, _, ok := UnpackRecord([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestPackRecordAllocatesFreshBackingArray(t *testing.T) {
	body := []byte("payload")
	a := PackRecord(1, 0, body)
	b := PackRecord(1, 0, body)
	// Mutating one packed record must never affect another: queue items
	// are retained long after the caller's body buffer is reused.
	a[RecordHeaderSize] = 'X'
	assert.NotEqual(t, a[RecordHeaderSize], b[RecordHeaderSize])
}
