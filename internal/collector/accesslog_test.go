package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/serverpulse/serverpulse/internal/config"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want RequestEntry
	}{
		{
			name: "full line with agent",
			line: `192.168.1.10 - admin [01/Jan/2026:12:00:00 +0000] "GET /api/users HTTP/1.1" 200 1234 150 "Mozilla/5.0"`,
			ok:   true,
			want: RequestEntry{
				ClientIP:   "192.168.1.10",
				Method:     "GET",
				Path:       "/api/users",
				StatusCode: 200,
				BytesSent:  1234,
				DurationMs: 150,
				UserAgent:  "Mozilla/5.0",
			},
		},
		{
			name: "no agent field",
			line: `10.0.0.1 - - [01/Jan/2026:12:00:00 +0000] "POST /login HTTP/1.1" 302 - 6200`,
			ok:   true,
			want: RequestEntry{
				ClientIP:   "10.0.0.1",
				Method:     "POST",
				Path:       "/login",
				StatusCode: 302,
				BytesSent:  0,
				DurationMs: 6200,
			},
		},
		{
			name: "dash bytes and duration",
			line: `10.0.0.1 - - [01/Jan/2026:12:00:00 +0000] "HEAD /ping HTTP/1.1" 204 - -`,
			ok:   true,
			want: RequestEntry{
				ClientIP:   "10.0.0.1",
				Method:     "HEAD",
				Path:       "/ping",
				StatusCode: 204,
			},
		},
		{name: "garbage line", line: "##### not a log line #####", ok: false},
		{name: "empty line", line: "", ok: false},
		{
			name: "bad timestamp",
			line: `10.0.0.1 - - [not-a-date] "GET / HTTP/1.1" 200 10 5`,
			ok:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.line)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if got.ClientIP != tc.want.ClientIP ||
				got.Method != tc.want.Method ||
				got.Path != tc.want.Path ||
				got.StatusCode != tc.want.StatusCode ||
				got.BytesSent != tc.want.BytesSent ||
				got.DurationMs != tc.want.DurationMs ||
				got.UserAgent != tc.want.UserAgent {
				t.Errorf("ParseLine = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func logCollector(t *testing.T, path string) *AccessLogCollector {
	t.Helper()
	return NewAccessLog(config.AccessLogConfig{
		Enabled:         true,
		Path:            path,
		SlowThresholdMs: 5000,
		MaxEntries:      100,
		TailLines:       1000,
	})
}

const sampleLog = `192.168.1.10 - - [01/Jan/2026:12:00:00 +0000] "GET /api/users HTTP/1.1" 200 1234 150 "curl/8.0"
192.168.1.11 - - [01/Jan/2026:12:00:01 +0000] "GET /api/users HTTP/1.1" 200 1234 90 "curl/8.0"
192.168.1.12 - - [01/Jan/2026:12:00:02 +0000] "GET /api/orders HTTP/1.1" 500 88 7200 "curl/8.0"
not a parseable line
192.168.1.13 - - [01/Jan/2026:12:00:03 +0000] "POST /api/orders HTTP/1.1" 201 15 360 "curl/8.0"
`

func TestCollect_Stats(t *testing.T) {
	a := logCollector(t, writeLog(t, sampleLog))

	f, err := a.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if f.RequestCount.Value != 4 {
		t.Errorf("RequestCount = %.0f, want 4 (garbage line skipped)", f.RequestCount.Value)
	}
	if f.SlowRequestCount.Value != 1 {
		t.Errorf("SlowRequestCount = %.0f, want 1", f.SlowRequestCount.Value)
	}
	if f.MaxResponseMs.Value != 7200 {
		t.Errorf("MaxResponseMs = %.0f, want 7200", f.MaxResponseMs.Value)
	}
	wantAvg := float64(150+90+7200+360) / 4
	if f.AvgResponseMs.Value != wantAvg {
		t.Errorf("AvgResponseMs = %.2f, want %.2f", f.AvgResponseMs.Value, wantAvg)
	}

	stats := a.Stats()
	if stats.StatusCodes[200] != 2 || stats.StatusCodes[500] != 1 || stats.StatusCodes[201] != 1 {
		t.Errorf("StatusCodes = %v, want 200:2 500:1 201:1", stats.StatusCodes)
	}
	if len(stats.TopPaths) != 2 {
		t.Fatalf("len(TopPaths) = %d, want 2", len(stats.TopPaths))
	}
	// /api/users and /api/orders both appear twice; ties break by path.
	if stats.TopPaths[0].Path != "/api/orders" || stats.TopPaths[0].Count != 2 {
		t.Errorf("TopPaths[0] = %+v, want /api/orders x2", stats.TopPaths[0])
	}
}

func TestCollect_Incremental(t *testing.T) {
	path := writeLog(t, sampleLog)
	a := logCollector(t, path)

	if _, err := a.Collect(context.Background()); err != nil {
		t.Fatalf("first Collect failed: %v", err)
	}

	// Append one more line; only it should be ingested on the next tick.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`192.168.1.14 - - [01/Jan/2026:12:00:04 +0000] "GET /health HTTP/1.1" 200 2 5 "kube-probe"` + "\n")
	f.Close()

	fields, err := a.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if fields.RequestCount.Value != 5 {
		t.Errorf("RequestCount = %.0f, want 5 after appended line", fields.RequestCount.Value)
	}
}

func TestCollect_LineCapCarriesOver(t *testing.T) {
	path := writeLog(t, sampleLog)
	a := NewAccessLog(config.AccessLogConfig{
		Enabled:         true,
		Path:            path,
		SlowThresholdMs: 5000,
		MaxEntries:      100,
		TailLines:       2,
	})

	// The per-tick cap must not skip lines: the saved offset has to stop at
	// the last ingested line so the remainder is picked up on later ticks.
	var f Fields
	for i := 0; i < 3; i++ {
		var err error
		f, err = a.Collect(context.Background())
		if err != nil {
			t.Fatalf("Collect %d failed: %v", i, err)
		}
	}
	if f.RequestCount.Value != 4 {
		t.Errorf("RequestCount = %.0f, want all 4 valid lines after capped ticks", f.RequestCount.Value)
	}
}

func TestCollect_PartialLineHeldForNextTick(t *testing.T) {
	partial := `192.168.1.10 - - [01/Jan/2026:12:00:00 +0000] "GET /done HTTP/1.1" 200 10 30 "curl/8.0"` + "\n" +
		`192.168.1.11 - - [01/Jan/2026:12:00:01 +0000] "GET /in-fl`
	path := writeLog(t, partial)
	a := logCollector(t, path)

	f, err := a.Collect(context.Background())
	if err != nil {
		t.Fatalf("first Collect failed: %v", err)
	}
	if f.RequestCount.Value != 1 {
		t.Fatalf("RequestCount = %.0f, want 1 (unterminated line not ingested)", f.RequestCount.Value)
	}

	// The writer finishes the line; the whole line must parse next tick.
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	fh.WriteString(`ight HTTP/1.1" 200 10 40 "curl/8.0"` + "\n")
	fh.Close()

	f, err = a.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if f.RequestCount.Value != 2 {
		t.Errorf("RequestCount = %.0f, want 2 after the line is completed", f.RequestCount.Value)
	}
}

func TestCollect_Rotation(t *testing.T) {
	path := writeLog(t, sampleLog)
	a := logCollector(t, path)

	if _, err := a.Collect(context.Background()); err != nil {
		t.Fatalf("first Collect failed: %v", err)
	}

	// Truncate to simulate logrotate; the collector restarts from offset 0.
	short := `192.168.1.20 - - [01/Jan/2026:13:00:00 +0000] "GET /after-rotate HTTP/1.1" 200 10 30 "curl/8.0"` + "\n"
	if err := os.WriteFile(path, []byte(short), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := a.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect after rotation failed: %v", err)
	}
	// 4 from before rotation + 1 after.
	if f.RequestCount.Value != 5 {
		t.Errorf("RequestCount = %.0f, want 5 after rotation", f.RequestCount.Value)
	}
}

func TestCollect_MissingFile(t *testing.T) {
	a := logCollector(t, filepath.Join(t.TempDir(), "absent.log"))
	if _, err := a.Collect(context.Background()); err == nil {
		t.Error("Collect should fail when the log file is missing")
	}
}

func TestSlowRequests(t *testing.T) {
	a := logCollector(t, writeLog(t, sampleLog))
	if _, err := a.Collect(context.Background()); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	slow := a.SlowRequests(0)
	if len(slow) != 1 {
		t.Fatalf("len(SlowRequests) = %d, want 1", len(slow))
	}
	if slow[0].Path != "/api/orders" || slow[0].DurationMs != 7200 {
		t.Errorf("slow entry = %+v, want the 7200ms /api/orders request", slow[0])
	}

	if got := a.SlowRequests(5); len(got) != 1 {
		t.Errorf("SlowRequests(5) = %d entries, want 1", len(got))
	}
}
