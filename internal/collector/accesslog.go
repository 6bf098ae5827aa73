package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/model"
)

// logPattern matches the extended common log format with response time:
//
//	127.0.0.1 - - [01/Jan/2026:12:00:00 +0000] "GET /api/users HTTP/1.1" 200 1234 5000 "Mozilla/5.0"
//
// where the field after bytes is the request duration in milliseconds.
var logPattern = regexp.MustCompile(
	`^(?P<ip>[\d.:a-fA-F]+)\s+` +
		`(?P<ident>\S+)\s+` +
		`(?P<user>\S+)\s+` +
		`\[(?P<ts>[^\]]+)\]\s+` +
		`"(?P<method>\w+)\s+(?P<path>\S+)\s+(?P<proto>[^"]+)"\s+` +
		`(?P<status>\d{3})\s+` +
		`(?P<bytes>\d+|-)\s+` +
		`(?P<duration>\d+|-)` +
		`(?:\s+"(?P<agent>[^"]*)")?`)

// logTimeLayout parses the bracketed access-log timestamp.
const logTimeLayout = "02/Jan/2006:15:04:05 -0700"

// slowRingCap bounds the retained slow-request ring.
const slowRingCap = 1000

// topPathCount limits the per-stats top path listing.
const topPathCount = 10

// RequestEntry is one parsed access-log line.
type RequestEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	ClientIP   string    `json:"client_ip"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	DurationMs int       `json:"duration_ms"`
	BytesSent  int       `json:"bytes_sent"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// PathCount is one entry of the most-requested path listing.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// RequestStats summarizes the retained window of requests.
type RequestStats struct {
	TotalRequests int         `json:"total_requests"`
	SlowRequests  int         `json:"slow_requests"`
	AvgResponseMs float64     `json:"avg_response_ms"`
	MaxResponseMs int         `json:"max_response_ms"`
	StatusCodes   map[int]int `json:"status_codes"`
	TopPaths      []PathCount `json:"top_paths"`
}

// AccessLogCollector tails an application-server access log incrementally
// and keeps bounded in-memory windows of recent and slow requests.
//
// Safe for concurrent use: ticks append while API readers pull slow entries.
type AccessLogCollector struct {
	path       string
	slowMs     int
	maxEntries int
	tailLines  int

	mu     sync.Mutex
	offset int64
	recent []RequestEntry
	slow   []RequestEntry
}

// NewAccessLog builds the tail collector from validated config.
func NewAccessLog(cfg config.AccessLogConfig) *AccessLogCollector {
	return &AccessLogCollector{
		path:       cfg.Path,
		slowMs:     cfg.SlowThresholdMs,
		maxEntries: cfg.MaxEntries,
		tailLines:  cfg.TailLines,
	}
}

func (a *AccessLogCollector) Name() string { return "access_log" }

// Collect reads new log lines since the previous tick, folds them into the
// retained windows, and reports the window's request statistics.
func (a *AccessLogCollector) Collect(ctx context.Context) (Fields, error) {
	var f Fields

	if err := a.ingest(ctx); err != nil {
		return f, err
	}

	stats := a.Stats()
	f.RequestCount = model.Sampled(float64(stats.TotalRequests))
	f.SlowRequestCount = model.Sampled(float64(stats.SlowRequests))
	f.AvgResponseMs = model.Sampled(stats.AvgResponseMs)
	f.MaxResponseMs = model.Sampled(float64(stats.MaxResponseMs))
	return f, nil
}

// ingest reads from the remembered file offset, handling truncation
// (rotation) by restarting from the beginning.
func (a *AccessLogCollector) ingest(ctx context.Context) error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("access_log: open %s: %w", a.path, ErrUnavailable)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("access_log: stat %s: %w", a.path, ErrUnavailable)
	}

	a.mu.Lock()
	offset := a.offset
	a.mu.Unlock()

	if info.Size() < offset {
		// File shrank — rotated or truncated. Start over.
		offset = 0
	}
	if _, err := file.Seek(offset, 0); err != nil {
		return fmt.Errorf("access_log: seek %s: %w", a.path, ErrUnavailable)
	}

	// The offset must land exactly after the last ingested line, so consumed
	// bytes are counted per line rather than taken from the file position —
	// a buffered reader sits well past what has actually been parsed.
	reader := bufio.NewReader(file)
	consumed := offset

	lines := 0
	for {
		if ctx.Err() != nil {
			break
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			// A trailing fragment without its newline is a line still being
			// written; leave it unconsumed and pick it up next tick.
			break
		}
		consumed += int64(len(line))
		if entry, ok := ParseLine(strings.TrimRight(line, "\r\n")); ok {
			a.append(entry)
		}
		lines++
		if a.tailLines > 0 && lines >= a.tailLines {
			break
		}
	}

	a.mu.Lock()
	a.offset = consumed
	a.mu.Unlock()

	if ctx.Err() != nil {
		return fmt.Errorf("access_log: %w", ErrTimeout)
	}
	return nil
}

// ParseLine parses one access-log line. ok is false for lines that do not
// match the pattern (continuation lines, garbage) — those are skipped, not
// errors.
func ParseLine(line string) (RequestEntry, bool) {
	m := logPattern.FindStringSubmatch(line)
	if m == nil {
		return RequestEntry{}, false
	}
	idx := func(name string) string { return m[logPattern.SubexpIndex(name)] }

	ts, err := time.Parse(logTimeLayout, idx("ts"))
	if err != nil {
		return RequestEntry{}, false
	}

	status, _ := strconv.Atoi(idx("status"))
	bytes := dashInt(idx("bytes"))
	duration := dashInt(idx("duration"))

	return RequestEntry{
		Timestamp:  ts,
		ClientIP:   idx("ip"),
		Method:     idx("method"),
		Path:       idx("path"),
		StatusCode: status,
		DurationMs: duration,
		BytesSent:  bytes,
		UserAgent:  idx("agent"),
	}, true
}

func (a *AccessLogCollector) append(e RequestEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.recent) >= a.maxEntries {
		a.recent = a.recent[1:]
	}
	a.recent = append(a.recent, e)

	if e.DurationMs >= a.slowMs {
		if len(a.slow) >= slowRingCap {
			a.slow = a.slow[1:]
		}
		a.slow = append(a.slow, e)
	}
}

// Stats computes request statistics over the retained window.
func (a *AccessLogCollector) Stats() RequestStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := RequestStats{StatusCodes: make(map[int]int)}
	stats.TotalRequests = len(a.recent)

	var durSum, durCount int
	pathCounts := make(map[string]int)
	for _, e := range a.recent {
		stats.StatusCodes[e.StatusCode]++
		pathCounts[e.Path]++
		if e.DurationMs > 0 {
			durSum += e.DurationMs
			durCount++
		}
		if e.DurationMs > stats.MaxResponseMs {
			stats.MaxResponseMs = e.DurationMs
		}
		if e.DurationMs >= a.slowMs {
			stats.SlowRequests++
		}
	}
	if durCount > 0 {
		stats.AvgResponseMs = float64(durSum) / float64(durCount)
	}

	stats.TopPaths = topPaths(pathCounts, topPathCount)
	return stats
}

// SlowRequests returns up to limit recent slow entries, newest last.
// limit <= 0 returns the full retained ring.
func (a *AccessLogCollector) SlowRequests(limit int) []RequestEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.slow)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RequestEntry, n)
	copy(out, a.slow[len(a.slow)-n:])
	return out
}

func topPaths(counts map[string]int, limit int) []PathCount {
	out := make([]PathCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, PathCount{Path: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func dashInt(s string) int {
	if s == "-" || s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}
