package trend

import (
	"math"
	"sync"
	"time"

	"github.com/serverpulse/serverpulse/internal/model"
)

// minSlope is the smallest positive slope (pct/sec) considered growth.
// Below this the heap is treated as flat and no OOM is projected.
const minSlope = 1e-9

// Predictor retains a fixed-capacity window of heap-usage samples and fits
// a linear trend over them.
//
// All exported methods are safe for concurrent use: the coordinator records
// on each tick while API readers pull the retained points.
type Predictor struct {
	mu        sync.Mutex
	points    []model.HeapTrendPoint
	window    int
	smoothing int
	horizon   time.Duration
}

// New returns a Predictor retaining up to window samples, smoothing over the
// given span before fitting (0 or 1 disables smoothing), and discarding
// projections beyond horizon.
func New(window, smoothing int, horizon time.Duration) *Predictor {
	if window < 2 {
		window = 2
	}
	return &Predictor{
		points:    make([]model.HeapTrendPoint, 0, window),
		window:    window,
		smoothing: smoothing,
		horizon:   horizon,
	}
}

// SetTuning swaps in new window, smoothing, and horizon values, used when
// the configuration is hot-reloaded. Shrinking the window evicts the oldest
// retained samples.
func (p *Predictor) SetTuning(window, smoothing int, horizon time.Duration) {
	if window < 2 {
		window = 2
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = window
	p.smoothing = smoothing
	p.horizon = horizon
	if excess := len(p.points) - window; excess > 0 {
		p.points = p.points[excess:]
	}
}

// Record appends a heap-usage sample, evicting the oldest when at capacity.
// Samples that would break the non-decreasing timestamp invariant (clock
// skew, replayed ticks) are dropped.
func (p *Predictor) Record(ts time.Time, heapUsedPct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.points); n > 0 && ts.Before(p.points[n-1].Timestamp) {
		return
	}
	if len(p.points) >= p.window {
		p.points = p.points[1:]
	}
	p.points = append(p.points, model.HeapTrendPoint{Timestamp: ts, HeapUsedPct: heapUsedPct})
}

// Points returns a copy of the retained samples, oldest first.
func (p *Predictor) Points() []model.HeapTrendPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.HeapTrendPoint, len(p.points))
	copy(out, p.points)
	return out
}

// Reset drops all retained samples. Used when the JVM under observation
// restarts and old samples would poison the fit.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = p.points[:0]
}

// Predict fits a line over the (smoothed) retained window and projects the
// time at which heap usage reaches 100%.
//
// Returns nil — no prediction — when fewer than 2 points are retained, the
// fitted slope is flat or negative, the projection is non-positive or not
// finite, or the ETA exceeds the horizon.
func (p *Predictor) Predict() *model.OOMPrediction {
	p.mu.Lock()
	pts := make([]model.HeapTrendPoint, len(p.points))
	copy(pts, p.points)
	smoothing, horizon := p.smoothing, p.horizon
	p.mu.Unlock()

	if len(pts) < 2 {
		return nil
	}

	pts = smooth(pts, smoothing)

	slope, ok := fitSlope(pts)
	if !ok || slope <= minSlope {
		return nil
	}

	current := pts[len(pts)-1].HeapUsedPct
	etaSec := (100 - current) / slope
	if etaSec <= 0 || math.IsInf(etaSec, 0) || math.IsNaN(etaSec) {
		return nil
	}

	eta := time.Duration(etaSec * float64(time.Second))
	if eta > horizon {
		return nil
	}

	return &model.OOMPrediction{
		ETA:             eta,
		GrowthPctPerMin: slope * 60,
		CurrentPct:      current,
	}
}

// smooth applies a trailing simple moving average over span samples.
// Timestamps are kept; only the usage values are averaged.
func smooth(pts []model.HeapTrendPoint, span int) []model.HeapTrendPoint {
	if span <= 1 || len(pts) < 2 {
		return pts
	}
	out := make([]model.HeapTrendPoint, len(pts))
	for i := range pts {
		start := i - span + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += pts[j].HeapUsedPct
		}
		out[i] = model.HeapTrendPoint{
			Timestamp:   pts[i].Timestamp,
			HeapUsedPct: sum / float64(i-start+1),
		}
	}
	return out
}

// fitSlope computes the least-squares slope in pct per second over pts.
// Returns ok=false when all samples share one timestamp (zero variance).
func fitSlope(pts []model.HeapTrendPoint) (float64, bool) {
	t0 := pts[0].Timestamp
	n := float64(len(pts))

	var sumX, sumY, sumXY, sumXX float64
	for _, pt := range pts {
		x := pt.Timestamp.Sub(t0).Seconds()
		y := pt.HeapUsedPct
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}
