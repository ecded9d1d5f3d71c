package estimator

import "math"

// VolWindow tracks the standard deviation of simple returns over a bounded
// window of observed mids. The dynamic-spread policy scales its quoted
// spread by this.
type VolWindow struct {
	window int
	mids   []float64
}

func NewVolWindow(window int) *VolWindow {
	if window < 2 {
		window = 2
	}
	return &VolWindow{window: window}
}

func (v *VolWindow) Observe(mid float64) {
	if mid <= 0 {
		return
	}
	v.mids = append(v.mids, mid)
	if len(v.mids) > v.window {
		v.mids = v.mids[len(v.mids)-v.window:]
	}
}

// Std returns the return volatility of the window, zero until two mids are
// present.
func (v *VolWindow) Std() float64 {
	if len(v.mids) < 2 {
		return 0
	}
	var sum, sumSq, count float64
	for i := 1; i < len(v.mids); i++ {
		prev := v.mids[i-1]
		if prev == 0 {
			continue
		}
		r := (v.mids[i] - prev) / prev
		sum += r
		sumSq += r * r
		count++
	}
	if count == 0 {
		return 0
	}
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (v *VolWindow) Samples() int {
	return len(v.mids)
}
