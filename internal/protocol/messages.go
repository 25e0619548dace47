package protocol

import (
	"fmt"
	"regexp"
)

// Fixed reply strings. Every reply is a complete, ready-to-write byte
// string; the handler never assembles a reply piecemeal across writes.
const (
	replyUnknownCommand  = "CLIENT_ERROR bad command line format\r\n"
	replyStored          = "STORED\r\n"
	replyNotStored       = "NOT STORED\r\n"
	replyBadDataChunk    = "CLIENT_ERROR bad data chunk\r\nERROR\r\n"
	replyEnd             = "END\r\n"
	replyGetEmpty        = "END\r\n"
)

// Command grammars, anchored and case-sensitive. A key is 1..250
// characters with no whitespace; the limit counts UTF-8 characters, not
// bytes, so a key with multi-byte characters may exceed 250 bytes. The
// numeric fields are ASCII non-negative integers.
var (
	getCommand    = regexp.MustCompile(`^get ([^\s]{1,250})$`)
	setCommand    = regexp.MustCompile(`^set ([^\s]{1,250}) ([0-9]+) ([0-9]+) ([0-9]+)$`)
	deleteCommand = regexp.MustCompile(`^delete ([^\s]{1,250}) ([0-9]+)$`)
	statsCommand  = regexp.MustCompile(`^stats$`)
	quitCommand   = regexp.MustCompile(`^quit$`)
	shutdownCommand = regexp.MustCompile(`^shutdown$`)
)

// formatGet renders a successful GET reply.
func formatGet(key string, flags uint32, body []byte) string {
	return fmt.Sprintf("VALUE %s %d %d\r\n%s\r\nEND\r\n", key, flags, len(body), body)
}

// statsOrder documents the fixed field order of the server-level STATS
// block, matching the 18 documented fields exactly; statsFields.render
// below is the single place that must stay consistent with it.
var statsOrder = []string{
	"pid", "uptime", "time", "version", "rusage_user", "rusage_system",
	"curr_items", "total_items", "bytes", "curr_connections",
	"total_connections", "cmd_get", "cmd_set", "get_hits", "get_misses",
	"bytes_read", "bytes_written", "limit_maxbytes",
}

// statsFields carries the values for one STATS reply in statsOrder's
// order, formatted the way memcache clients expect (integers as plain
// decimals, the two rusage fields with 6 decimal places).
type statsFields struct {
	PID               int
	UptimeSeconds     int64
	Time              int64
	Version           string
	RusageUser        float64
	RusageSystem      float64
	CurrItems         int
	TotalItems        int64
	Bytes             int64
	CurrConnections   int64
	TotalConnections  int64
	CmdGet            int64
	CmdSet            int64
	GetHits           int64
	GetMisses         int64
	BytesRead         int64
	BytesWritten      int64
	LimitMaxBytes     int64
}

// render formats the fixed-order server STATS block, one STAT line per
// field, each terminated by \r\n (END is appended separately by the
// caller after any per-queue lines).
func (f statsFields) render() string {
	return fmt.Sprintf(
		"STAT pid %d\r\n"+
			"STAT uptime %d\r\n"+
			"STAT time %d\r\n"+
			"STAT version %s\r\n"+
			"STAT rusage_user %.6f\r\n"+
			"STAT rusage_system %.6f\r\n"+
			"STAT curr_items %d\r\n"+
			"STAT total_items %d\r\n"+
			"STAT bytes %d\r\n"+
			"STAT curr_connections %d\r\n"+
			"STAT total_connections %d\r\n"+
			"STAT cmd_get %d\r\n"+
			"STAT cmd_set %d\r\n"+
			"STAT get_hits %d\r\n"+
			"STAT get_misses %d\r\n"+
			"STAT bytes_read %d\r\n"+
			"STAT bytes_written %d\r\n"+
			"STAT limit_maxbytes %d\r\n",
		f.PID, f.UptimeSeconds, f.Time, f.Version, f.RusageUser, f.RusageSystem,
		f.CurrItems, f.TotalItems, f.Bytes, f.CurrConnections, f.TotalConnections,
		f.CmdGet, f.CmdSet, f.GetHits, f.GetMisses, f.BytesRead, f.BytesWritten,
		f.LimitMaxBytes)
}

// queueStatsFields renders the four STAT lines reported per live queue.
type queueStatsFields struct {
	Name       string
	Items      int
	TotalItems uint64
	LogSize    int64
	Expired    int64
}

func (q queueStatsFields) render() string {
	return fmt.Sprintf(
		"STAT queue_%s_items %d\r\n"+
			"STAT queue_%s_total_items %d\r\n"+
			"STAT queue_%s_logsize %d\r\n"+
			"STAT queue_%s_expired_items %d\r\n",
		q.Name, q.Items, q.Name, q.TotalItems, q.Name, q.LogSize, q.Name, q.Expired)
}
