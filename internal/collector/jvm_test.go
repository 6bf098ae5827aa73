package collector

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/serverpulse/serverpulse/internal/config"
)

const exporterText = `# TYPE jvm_memory_bytes_used gauge
jvm_memory_bytes_used{area="heap"} 750000000
jvm_memory_bytes_used{area="nonheap"} 120000000
# TYPE jvm_memory_bytes_max gauge
jvm_memory_bytes_max{area="heap"} 1000000000
jvm_memory_bytes_max{area="nonheap"} -1
# TYPE jvm_memory_pool_bytes_used gauge
jvm_memory_pool_bytes_used{pool="PS Old Gen"} 400000000
jvm_memory_pool_bytes_used{pool="PS Eden Space"} 150000000
# TYPE jvm_memory_pool_bytes_max gauge
jvm_memory_pool_bytes_max{pool="PS Old Gen"} 500000000
jvm_memory_pool_bytes_max{pool="PS Eden Space"} 300000000
# TYPE jvm_threads_state gauge
jvm_threads_state{state="RUNNABLE"} 42
jvm_threads_state{state="BLOCKED"} 3
jvm_threads_state{state="WAITING"} 17
# TYPE tomcat_threads_busy gauge
tomcat_threads_busy{name="http-nio-8080"} 45
tomcat_threads_busy{name="ajp-nio-8009"} 5
# TYPE tomcat_threads_max gauge
tomcat_threads_max{name="http-nio-8080"} 200
tomcat_threads_max{name="ajp-nio-8009"} 50
`

func exporterServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJVMCollect(t *testing.T) {
	srv := exporterServer(t, exporterText)
	j := NewJVM(config.JVMCollectorConfig{Enabled: true, Endpoint: srv.URL})

	f, err := j.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if !f.HeapUsedPct.Valid || math.Abs(f.HeapUsedPct.Value-75) > 0.001 {
		t.Errorf("HeapUsedPct = %+v, want 75", f.HeapUsedPct)
	}
	if !f.OldGenUsedPct.Valid || math.Abs(f.OldGenUsedPct.Value-80) > 0.001 {
		t.Errorf("OldGenUsedPct = %+v, want 80", f.OldGenUsedPct)
	}
	if !f.StuckThreads.Valid || f.StuckThreads.Value != 3 {
		t.Errorf("StuckThreads = %+v, want 3", f.StuckThreads)
	}
	// All pools summed: (45+5)/(200+50) = 20%.
	if !f.ThreadPoolUtilPct.Valid || math.Abs(f.ThreadPoolUtilPct.Value-20) > 0.001 {
		t.Errorf("ThreadPoolUtilPct = %+v, want 20", f.ThreadPoolUtilPct)
	}
}

func TestJVMCollect_NamedPool(t *testing.T) {
	srv := exporterServer(t, exporterText)
	j := NewJVM(config.JVMCollectorConfig{
		Enabled:        true,
		Endpoint:       srv.URL,
		ThreadPoolName: "http-nio-8080",
	})

	f, err := j.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	// 45/200 = 22.5% for the selected pool only.
	if !f.ThreadPoolUtilPct.Valid || math.Abs(f.ThreadPoolUtilPct.Value-22.5) > 0.001 {
		t.Errorf("ThreadPoolUtilPct = %+v, want 22.5", f.ThreadPoolUtilPct)
	}
}

func TestJVMCollect_PartialExposition(t *testing.T) {
	// Exporter without the Tomcat module: pool metrics absent, the rest of
	// the group still collects.
	partial := `# TYPE jvm_memory_bytes_used gauge
jvm_memory_bytes_used{area="heap"} 500000000
# TYPE jvm_memory_bytes_max gauge
jvm_memory_bytes_max{area="heap"} 1000000000
`
	srv := exporterServer(t, partial)
	j := NewJVM(config.JVMCollectorConfig{Enabled: true, Endpoint: srv.URL})

	f, err := j.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !f.HeapUsedPct.Valid || math.Abs(f.HeapUsedPct.Value-50) > 0.001 {
		t.Errorf("HeapUsedPct = %+v, want 50", f.HeapUsedPct)
	}
	if f.ThreadPoolUtilPct.Valid {
		t.Errorf("ThreadPoolUtilPct = %+v, want unavailable", f.ThreadPoolUtilPct)
	}
	if f.StuckThreads.Valid {
		t.Errorf("StuckThreads = %+v, want unavailable", f.StuckThreads)
	}
}

func TestJVMCollect_Unavailable(t *testing.T) {
	// Nothing listens here.
	j := NewJVM(config.JVMCollectorConfig{Enabled: true, Endpoint: "http://127.0.0.1:1/metrics"})

	_, err := j.Collect(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestJVMCollect_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	j := NewJVM(config.JVMCollectorConfig{Enabled: true, Endpoint: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := j.Collect(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestJVMCollect_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	j := NewJVM(config.JVMCollectorConfig{Enabled: true, Endpoint: srv.URL})
	if _, err := j.Collect(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
