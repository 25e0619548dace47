package queue

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Log record opcodes. A PUSH is followed by a little-endian uint32 length
// and that many bytes of payload; a POP carries no payload. Any other
// leading byte is a corruption marker and halts replay at that point.
const (
	opPush byte = 0x00
	opPop  byte = 0x01
)

// transactionLog is the append-only file backing one PersistentQueue.
// Each record is one opcode byte, then (for PUSH) a length-prefixed
// payload; the length is little-endian on both the write and read side
// so replay never depends on host byte order.
type transactionLog struct {
	file *os.File
	w    *bufio.Writer
	size int64
}

func openTransactionLog(path string) (*transactionLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transaction log %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat transaction log %s: %w", path, err)
	}
	return &transactionLog{file: f, w: bufio.NewWriter(f), size: info.Size()}, nil
}

// writePush appends a PUSH record for payload and flushes it to disk.
func (l *transactionLog) writePush(payload []byte) error {
	if l == nil || l.file == nil {
		return ErrLogClosed
	}
	hdr := [5]byte{opPush}
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := l.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write push header: %w", err)
	}
	if _, err := l.w.Write(payload); err != nil {
		return fmt.Errorf("write push payload: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush push record: %w", err)
	}
	l.size += int64(len(hdr)) + int64(len(payload))
	return nil
}

// writePop appends a POP record and flushes it to disk.
func (l *transactionLog) writePop() error {
	if l == nil || l.file == nil {
		return ErrLogClosed
	}
	if _, err := l.w.Write([]byte{opPop}); err != nil {
		return fmt.Errorf("write pop: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush pop record: %w", err)
	}
	l.size++
	return nil
}

func (l *transactionLog) Size() int64 { return l.size }

func (l *transactionLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		l.file = nil
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// logEvent is one successfully decoded record from a replay pass.
type logEvent struct {
	push    bool
	payload []byte // set when push is true
}

// replayLog reads every well-formed record from r, from its current
// position onward, invoking fn for each. It stops (without error) at the first
// truncated or unrecognized record, preserving everything read so far, per
// the "partial trailing record" and "corrupt mid-file record" failure
// semantics in the design.
func replayLog(r io.Reader, fn func(logEvent) error) error {
	br := bufio.NewReader(r)
	for {
		opByte, err := br.ReadByte()
		if err != nil {
			return nil // clean EOF or nothing to replay
		}
		switch opByte {
		case opPop:
			if err := fn(logEvent{push: false}); err != nil {
				return err
			}
		case opPush:
			var lenBuf [4]byte
			if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
				return nil // truncated length: treat as absent
			}
			n := binary.LittleEndian.Uint32(lenBuf[:])
			payload := make([]byte, n)
			if _, err := io.ReadFull(br, payload); err != nil {
				return nil // short body: treat as absent
			}
			if err := fn(logEvent{push: true, payload: payload}); err != nil {
				return err
			}
		default:
			// Unknown opcode: corruption marker, stop advancing.
			return nil
		}
	}
}
