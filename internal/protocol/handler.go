// Package protocol implements the per-connection memcache-dialect state
// machine: parsing GET/SET/DELETE/STATS/QUIT/SHUTDOWN command lines and
// the two-phase SET body, entirely independent of any transport. A
// Handler is driven by whatever feeds it lines and raw bytes; it never
// touches a net.Conn directly, so it is exercised in tests the same way
// it is exercised in production — by calling HandleLine/HandleBody and
// inspecting what gets sent to a fake Callbacks.
package protocol

import (
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/valyala/bytebufferpool"

	"starling/internal/queue"
	"starling/internal/stats"
)

// Callbacks are the two continuations the handler invokes in response to
// a processed command: send a reply, or ask the connection (and, for
// SHUTDOWN, the server) to close.
type Callbacks interface {
	Send(data []byte)
	Exit()
}

// state is the handler's two-state machine.
type state int

const (
	stateIdle state = iota
	stateAwaitingBody
)

type pendingSet struct {
	key    string
	flags  uint32
	expiry uint32
	length int
}

// Handler is a single connection's protocol state. It is not safe for
// concurrent use: the transport must serialize calls to HandleLine and
// HandleBody for a given connection, exactly as the design requires.
type Handler struct {
	collection *queue.Collection
	stats      *stats.Statistics
	startTime  time.Time
	version    string

	state       state
	pending     pendingSet
	body        *bytebufferpool.ByteBuffer
	expirations map[string]int64
}

// NewHandler returns a fresh IDLE handler bound to collection and the
// server-level statistics instance (distinct from the collection's own
// internal counters).
func NewHandler(collection *queue.Collection, st *stats.Statistics, startTime time.Time, version string) *Handler {
	return &Handler{
		collection:  collection,
		stats:       st,
		startTime:   startTime,
		version:     version,
		expirations: make(map[string]int64),
	}
}

// Awaiting reports whether the handler currently expects raw body bytes
// rather than a command line.
func (h *Handler) Awaiting() bool { return h.state == stateAwaitingBody }

// Remaining reports how many more body bytes are needed to complete the
// pending SET. Meaningless unless Awaiting is true.
func (h *Handler) Remaining() int {
	if h.body == nil {
		return h.pending.length
	}
	return h.pending.length - h.body.Len()
}

// HandleLine processes one complete command line (terminator already
// stripped by the transport). It must not be called while Awaiting is
// true.
func (h *Handler) HandleLine(line string, cb Callbacks) {
	switch {
	case quitCommand.MatchString(line):
		h.stats.Incr(stats.CleanExits)
		cb.Send([]byte(replyEnd))

	case shutdownCommand.MatchString(line):
		cb.Send([]byte(replyEnd))
		cb.Exit()

	case statsCommand.MatchString(line):
		cb.Send([]byte(h.renderStats()))

	case getCommand.MatchString(line):
		h.handleGet(getCommand.FindStringSubmatch(line), cb)

	case setCommand.MatchString(line):
		h.handleSetHeader(setCommand.FindStringSubmatch(line), cb)

	case deleteCommand.MatchString(line):
		h.handleDelete(deleteCommand.FindStringSubmatch(line), cb)

	default:
		cb.Send([]byte(replyUnknownCommand))
	}
}

// HandleBody feeds raw body bytes for a pending SET. The transport may
// call this multiple times with partial chunks; once the accumulated
// length reaches the announced length, the SET is finalized and the
// handler returns to IDLE. Per the design, any body-trailing \r\n is the
// transport's responsibility to strip before the next HandleLine call —
// this method only ever consumes exactly the announced byte count.
func (h *Handler) HandleBody(data []byte, cb Callbacks) {
	if h.state != stateAwaitingBody {
		return
	}
	if h.body == nil {
		h.body = bytebufferpool.Get()
	}

	need := h.pending.length - h.body.Len()
	if need < len(data) {
		data = data[:need]
	}
	h.body.Write(data)
	h.stats.Add(stats.BytesRead, int64(len(data)))

	if h.body.Len() < h.pending.length {
		return
	}

	record := queue.PackRecord(h.pending.flags, h.pending.expiry, h.body.Bytes())
	bytebufferpool.Put(h.body)
	h.body = nil

	key := h.pending.key
	h.state = stateIdle
	h.pending = pendingSet{}

	if h.collection.Put(key, record) {
		cb.Send([]byte(replyStored))
	} else {
		cb.Send([]byte(replyNotStored))
	}
}

func (h *Handler) handleGet(match []string, cb Callbacks) {
	h.stats.Incr(stats.GetRequests)
	key := match[1]

	now := time.Now().Unix()
	for {
		raw, ok := h.collection.Get(key)
		if !ok {
			cb.Send([]byte(replyGetEmpty))
			return
		}
		flags, expiry, body, valid := queue.UnpackRecord(raw)
		if !valid {
			cb.Send([]byte(replyGetEmpty))
			return
		}
		if expiry == 0 || int64(expiry) >= now {
			cb.Send([]byte(formatGet(key, flags, body)))
			return
		}
		h.expirations[key]++
	}
}

func (h *Handler) handleSetHeader(match []string, cb Callbacks) {
	h.stats.Incr(stats.SetRequests)

	flags, err1 := strconv.ParseUint(match[2], 10, 32)
	expiry, err2 := strconv.ParseUint(match[3], 10, 32)
	length, err3 := strconv.ParseUint(match[4], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		cb.Send([]byte(replyUnknownCommand))
		return
	}

	h.state = stateAwaitingBody
	h.pending = pendingSet{
		key:    match[1],
		flags:  uint32(flags),
		expiry: uint32(expiry),
		length: int(length),
	}
	h.body = bytebufferpool.Get()

	// Zero-length SET completes immediately: there is no body to wait for.
	if h.pending.length == 0 {
		h.HandleBody(nil, cb)
	}
}

func (h *Handler) handleDelete(match []string, cb Callbacks) {
	h.stats.Incr(stats.DeleteRequests)
	h.collection.Delete(match[1])
	cb.Send([]byte(replyEnd))
}

// renderStats assembles the full STATS reply: the fixed server block
// followed by one four-line group per live queue, terminated by END.
func (h *Handler) renderStats() string {
	var ru syscall.Rusage
	_ = syscall.Getrusage(syscall.RUSAGE_SELF, &ru)

	fields := statsFields{
		PID:              os.Getpid(),
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
		Time:             time.Now().Unix(),
		Version:          h.version,
		RusageUser:       float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6,
		RusageSystem:     float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6,
		CurrItems:        h.collection.CurrentSize(),
		TotalItems:       h.collection.TotalItems(),
		Bytes:            h.collection.CurrentBytes(),
		CurrConnections:  h.stats.Get(stats.Connections),
		TotalConnections: h.stats.Get(stats.TotalConnections),
		CmdGet:           h.stats.Get(stats.GetRequests),
		CmdSet:           h.stats.Get(stats.SetRequests),
		GetHits:          h.collection.GetHits(),
		GetMisses:        h.collection.GetMisses(),
		BytesRead:        h.stats.Get(stats.BytesRead),
		BytesWritten:     h.stats.Get(stats.BytesWritten),
		LimitMaxBytes:    0,
	}

	out := fields.render()
	for name, q := range h.collection.Queues() {
		out += queueStatsFields{
			Name:       name,
			Items:      q.Len(),
			TotalItems: q.TotalItems(),
			LogSize:    q.LogSize(),
			Expired:    h.expirations[name],
		}.render()
	}
	out += replyEnd
	return out
}
