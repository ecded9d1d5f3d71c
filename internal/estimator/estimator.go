package estimator

import "math"

// varianceFloor guards the regression against a degenerate Future leg: when
// the price variance of the window is below this, the refit is skipped and
// the last valid coefficients are retained.
const varianceFloor = 1e-9

// Estimator maintains a rolling-window ordinary least squares fit of the ETF
// mid on the Future mid:
//
//	fairValue(ETF) = alpha + beta * mid(FUTURE)
//
// Sums are kept incrementally over a ring buffer, so the cost of an
// observation is independent of window length; the residual variance is
// recomputed over the (small) window on each refit.
type Estimator struct {
	window     int
	minSamples int

	xs, ys []float64
	head   int
	count  int

	sumX, sumY   float64
	sumXX, sumXY float64

	alpha, beta float64
	residVar    float64
	hasFit      bool
}

func New(window, minSamples int) *Estimator {
	if window < 2 {
		window = 2
	}
	if minSamples < 2 {
		minSamples = 2
	}
	if minSamples > window {
		minSamples = window
	}
	return &Estimator{
		window:     window,
		minSamples: minSamples,
		xs:         make([]float64, window),
		ys:         make([]float64, window),
	}
}

// Observe adds one (Future mid, ETF mid) pair, evicting the oldest pair when
// the window is full, and refits.
func (e *Estimator) Observe(futureMid, etfMid float64) {
	if e.count == e.window {
		oldX := e.xs[e.head]
		oldY := e.ys[e.head]
		e.sumX -= oldX
		e.sumY -= oldY
		e.sumXX -= oldX * oldX
		e.sumXY -= oldX * oldY
		e.count--
	}
	e.xs[e.head] = futureMid
	e.ys[e.head] = etfMid
	e.head = (e.head + 1) % e.window
	e.count++
	e.sumX += futureMid
	e.sumY += etfMid
	e.sumXX += futureMid * futureMid
	e.sumXY += futureMid * etfMid
	e.refit()
}

func (e *Estimator) refit() {
	if e.count < 2 {
		return
	}
	n := float64(e.count)
	meanX := e.sumX / n
	meanY := e.sumY / n
	varX := e.sumXX/n - meanX*meanX
	if varX < varianceFloor {
		// Degenerate Future variance: keep the last valid fit.
		return
	}
	cov := e.sumXY/n - meanX*meanY
	e.beta = cov / varX
	e.alpha = meanY - e.beta*meanX
	e.hasFit = true

	var ss float64
	for i := 0; i < e.count; i++ {
		idx := (e.head - e.count + i + e.window) % e.window
		r := e.ys[idx] - (e.alpha + e.beta*e.xs[idx])
		ss += r * r
	}
	e.residVar = ss / n
}

// Ready reports whether the window carries enough samples for the fit to be
// trusted. Below this the engine quotes in degraded-confidence mode.
func (e *Estimator) Ready() bool {
	return e.hasFit && e.count >= e.minSamples
}

// FairValue returns alpha + beta*futureMid, with ok=false until Ready.
func (e *Estimator) FairValue(futureMid float64) (float64, bool) {
	if !e.Ready() {
		return 0, false
	}
	return e.alpha + e.beta*futureMid, true
}

// Residual is the deviation of an observed ETF mid from the fair value; the
// quoting policy uses its z-score against ResidualStd.
func (e *Estimator) Residual(futureMid, etfMid float64) (float64, bool) {
	fv, ok := e.FairValue(futureMid)
	if !ok {
		return 0, false
	}
	return etfMid - fv, true
}

func (e *Estimator) Beta() float64 {
	return e.beta
}

func (e *Estimator) Alpha() float64 {
	return e.alpha
}

func (e *Estimator) ResidualStd() float64 {
	if e.residVar <= 0 {
		return 0
	}
	return math.Sqrt(e.residVar)
}

func (e *Estimator) Samples() int {
	return e.count
}
