package prosody

import "math"

// PointProcess is an ordered list of estimated glottal pulse times.
type PointProcess struct {
	XMin, XMax float64
	T          []float64
}

// ToPointProcess places one pulse per local period inside every voiced stretch
// of the contour, following the interpolated frequency. The first pulse of a
// stretch sits half a period after its start.
func (p *Pitch) ToPointProcess() *PointProcess {
	pp := &PointProcess{XMin: p.XMin, XMax: p.XMax}
	for _, run := range p.voicedRuns() {
		left := math.Max(p.Frames[run.first].Time-0.5*p.Step, p.XMin)
		right := math.Min(p.Frames[run.last].Time+0.5*p.Step, p.XMax)

		f := p.frequencyInRun(left, run)
		if f <= 0 {
			continue
		}
		for t := left + 0.5/f; t < right; {
			pp.T = append(pp.T, t)
			f = p.frequencyInRun(t, run)
			if f <= 0 {
				break
			}
			t += 1 / f
		}
	}
	return pp
}

func (pp *PointProcess) Len() int { return len(pp.T) }

// windowPoints returns the inclusive index range of points within [tmin, tmax].
// imax < imin when there are none.
func (pp *PointProcess) windowPoints(tmin, tmax float64) (int, int) {
	imin := 0
	for imin < len(pp.T) && pp.T[imin] < tmin {
		imin++
	}
	imax := len(pp.T) - 1
	for imax >= 0 && pp.T[imax] > tmax {
		imax--
	}
	return imin, imax
}

func (pp *PointProcess) timeRange(tmin, tmax float64) (float64, float64) {
	if tmax <= tmin {
		return pp.XMin, pp.XMax
	}
	return tmin, tmax
}

// isPeriod reports whether the interval between points i and i+1 counts as a
// glottal period: within bounds and in proportion with at least one defined
// neighbour. An isolated interval with no neighbours is accepted.
func (pp *PointProcess) isPeriod(i int, pmin, pmax, maxFactor float64) bool {
	n := len(pp.T)
	if i < 0 || i >= n-1 {
		return false
	}
	interval := pp.T[i+1] - pp.T[i]
	if interval <= 0 || interval < pmin || interval > pmax {
		return false
	}
	if math.IsNaN(maxFactor) || maxFactor < 1 {
		return true
	}

	prevFactor, nextFactor := math.NaN(), math.NaN()
	if i > 0 {
		if prev := pp.T[i] - pp.T[i-1]; prev > 0 {
			prevFactor = ratioAboveOne(interval / prev)
		}
	}
	if i < n-2 {
		if next := pp.T[i+2] - pp.T[i+1]; next > 0 {
			nextFactor = ratioAboveOne(interval / next)
		}
	}
	if math.IsNaN(prevFactor) && math.IsNaN(nextFactor) {
		return true
	}
	// One neighbour within maxFactor is enough; an undefined one never is.
	return prevFactor <= maxFactor || nextFactor <= maxFactor
}

// MeanPeriod averages the accepted periods in [tmin, tmax]. It returns NaN
// when there are none.
func (pp *PointProcess) MeanPeriod(tmin, tmax, pmin, pmax, maxFactor float64) float64 {
	tmin, tmax = pp.timeRange(tmin, tmax)
	imin, imax := pp.windowPoints(tmin, tmax)
	periods := imax - imin
	if periods < 1 {
		return math.NaN()
	}
	var sum float64
	for i := imin; i < imax; i++ {
		if pp.isPeriod(i, pmin, pmax, maxFactor) {
			sum += pp.T[i+1] - pp.T[i]
		} else {
			periods--
		}
	}
	if periods < 1 {
		return math.NaN()
	}
	return sum / float64(periods)
}

func ratioAboveOne(r float64) float64 {
	if r > 0 && r < 1 {
		return 1 / r
	}
	return r
}
