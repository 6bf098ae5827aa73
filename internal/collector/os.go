package collector

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/model"
)

// cpuTimes holds the aggregate jiffy counters from the "cpu" line of
// /proc/stat. CPU percent is derived from the delta between two reads.
type cpuTimes struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (c cpuTimes) total() uint64 {
	return c.user + c.nice + c.system + c.idle + c.iowait + c.irq + c.softirq + c.steal
}

func (c cpuTimes) busy() uint64 {
	return c.total() - c.idle - c.iowait
}

// OSCollector reads host-level metrics from /proc and statfs:
// cpu_pct, mem_pct, disk_pct, and the running process count.
type OSCollector struct {
	diskPath string
	procRoot string // overridable for tests

	mu      sync.Mutex
	prev    cpuTimes
	hasPrev bool
}

// NewOS builds the /proc-based OS collector.
func NewOS(cfg config.OSCollectorConfig) *OSCollector {
	return &OSCollector{diskPath: cfg.DiskPath, procRoot: "/proc"}
}

func (o *OSCollector) Name() string { return "os" }

// Collect reads all OS fields. The first call cannot produce cpu_pct (no
// delta baseline yet); every other field is independent, so a single failed
// reading degrades only itself.
func (o *OSCollector) Collect(ctx context.Context) (Fields, error) {
	var f Fields
	var firstErr error

	if err := ctx.Err(); err != nil {
		return f, fmt.Errorf("os: %w", ErrTimeout)
	}

	if pct, ok, err := o.cpuPct(); err != nil {
		firstErr = err
	} else if ok {
		f.CPUPct = model.Sampled(pct)
	}

	if pct, err := o.memPct(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		f.MemPct = model.Sampled(pct)
	}

	if pct, err := o.diskPct(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		f.DiskPct = model.Sampled(pct)
	}

	if n, err := o.processCount(); err == nil {
		f.ProcessCount = model.Sampled(float64(n))
	}

	return f, firstErr
}

// cpuPct derives CPU utilization from the /proc/stat delta since the last
// call. ok is false on the baseline-establishing first read.
func (o *OSCollector) cpuPct() (float64, bool, error) {
	cur, err := o.readCPUTimes()
	if err != nil {
		return 0, false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	prev, had := o.prev, o.hasPrev
	o.prev, o.hasPrev = cur, true
	if !had {
		return 0, false, nil
	}

	totalDelta := cur.total() - prev.total()
	if totalDelta == 0 || cur.total() < prev.total() {
		return 0, false, nil
	}
	busyDelta := cur.busy() - prev.busy()
	return float64(busyDelta) / float64(totalDelta) * 100, true, nil
}

func (o *OSCollector) readCPUTimes() (cpuTimes, error) {
	data, err := os.ReadFile(o.procRoot + "/stat")
	if err != nil {
		return cpuTimes{}, fmt.Errorf("os: read /proc/stat: %w", ErrUnavailable)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		// fields[1..] = user nice system idle iowait irq softirq steal
		if len(fields) < 8 {
			break
		}
		var c cpuTimes
		c.user = parseUint(fields[1])
		c.nice = parseUint(fields[2])
		c.system = parseUint(fields[3])
		c.idle = parseUint(fields[4])
		c.iowait = parseUint(fields[5])
		c.irq = parseUint(fields[6])
		c.softirq = parseUint(fields[7])
		if len(fields) > 8 {
			c.steal = parseUint(fields[8])
		}
		return c, nil
	}
	return cpuTimes{}, fmt.Errorf("os: unexpected /proc/stat format: %w", ErrUnavailable)
}

// memPct computes used memory percent from /proc/meminfo, preferring
// MemAvailable over the naive free count.
func (o *OSCollector) memPct() (float64, error) {
	data, err := os.ReadFile(o.procRoot + "/meminfo")
	if err != nil {
		return 0, fmt.Errorf("os: read /proc/meminfo: %w", ErrUnavailable)
	}

	var totalKB, availKB uint64
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availKB = parseMeminfoKB(line)
		}
	}
	if totalKB == 0 {
		return 0, fmt.Errorf("os: MemTotal missing from /proc/meminfo: %w", ErrUnavailable)
	}
	return float64(totalKB-availKB) / float64(totalKB) * 100, nil
}

// diskPct reads usage of the configured mount via statfs.
func (o *OSCollector) diskPct() (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(o.diskPath, &stat); err != nil {
		return 0, fmt.Errorf("os: statfs %s: %w", o.diskPath, ErrUnavailable)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("os: statfs %s reported zero size: %w", o.diskPath, ErrUnavailable)
	}
	free := stat.Bavail * uint64(stat.Bsize)
	return float64(total-free) / float64(total) * 100, nil
}

// processCount counts numeric entries under /proc.
func (o *OSCollector) processCount() (int, error) {
	entries, err := os.ReadDir(o.procRoot)
	if err != nil {
		return 0, fmt.Errorf("os: read %s: %w", o.procRoot, ErrUnavailable)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err == nil {
			n++
		}
	}
	return n, nil
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

// parseMeminfoKB parses a meminfo line like "MemTotal:  16314244 kB".
func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	return parseUint(fields[1])
}
