package queue

import "encoding/binary"

// RecordHeaderSize is the fixed 8-byte header (flags + expiry) that
// precedes every item body in the queue and in its transaction log.
const RecordHeaderSize = 8

// PackRecord lays out the internal record spec: flags (4 bytes,
// big-endian), expiry (4 bytes, big-endian, absolute unix seconds, 0
// meaning never), followed by the raw body bytes. The returned slice is
// freshly allocated: queue items are retained for the life of the queue,
// so they cannot be drawn from a buffer pool that might recycle the
// backing array out from under them.
func PackRecord(flags, expiry uint32, body []byte) []byte {
	record := make([]byte, RecordHeaderSize+len(body))
	binary.BigEndian.PutUint32(record[0:4], flags)
	binary.BigEndian.PutUint32(record[4:8], expiry)
	copy(record[RecordHeaderSize:], body)
	return record
}

// UnpackRecord splits a stored record back into its header fields and a
// view of the body. The returned body aliases record; callers that retain
// it beyond the life of the buffer must copy.
func UnpackRecord(record []byte) (flags uint32, expiry uint32, body []byte, ok bool) {
	if len(record) < RecordHeaderSize {
		return 0, 0, nil, false
	}
	flags = binary.BigEndian.Uint32(record[0:4])
	expiry = binary.BigEndian.Uint32(record[4:8])
	body = record[RecordHeaderSize:]
	return flags, expiry, body, true
}
