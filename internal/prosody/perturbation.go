package prosody

import (
	"math"

	"github.com/kyuchan/presentation-grader/internal/audio"
)

// JitterLocal is the mean absolute difference between consecutive periods
// divided by the mean period, as a fraction. Pairs of periods that fall outside
// [pmin, pmax] or differ by more than maxFactor are skipped. NaN means there
// were too few periods.
func (pp *PointProcess) JitterLocal(tmin, tmax, pmin, pmax, maxFactor float64) float64 {
	tmin, tmax = pp.timeRange(tmin, tmax)
	imin, imax := pp.windowPoints(tmin, tmax)
	periods := imax - imin
	if periods < 2 {
		return math.NaN()
	}

	var sum float64
	for i := imin + 1; i < imax; i++ {
		p1 := pp.T[i] - pp.T[i-1]
		p2 := pp.T[i+1] - pp.T[i]
		if acceptPeriods(p1, p2, pmin, pmax, maxFactor) {
			sum += math.Abs(p1 - p2)
		} else {
			periods--
		}
	}
	if periods < 2 {
		return math.NaN()
	}
	return sum / float64(periods-1) / pp.MeanPeriod(tmin, tmax, pmin, pmax, maxFactor)
}

func acceptPeriods(p1, p2, pmin, pmax, maxFactor float64) bool {
	if pmin == pmax {
		return true
	}
	if p1 < pmin || p1 > pmax || p2 < pmin || p2 > pmax {
		return false
	}
	return math.Max(p1, p2)/math.Min(p1, p2) <= maxFactor
}

// AmplitudePoint is the windowed RMS amplitude around one pulse.
type AmplitudePoint struct {
	Time  float64
	Value float64
}

// AmplitudeTier measures the amplitude of every pulse whose surrounding
// periods are acceptable. The RMS is taken over a Hann window reaching 0.2 of
// the period on either side. Fewer than three pulses yield an empty tier.
func (pp *PointProcess) AmplitudeTier(snd *audio.Sound, tmin, tmax, pmin, pmax, maxFactor float64) []AmplitudePoint {
	tmin, tmax = pp.timeRange(tmin, tmax)
	imin, imax := pp.windowPoints(tmin, tmax)
	if imax-imin+1 < 3 {
		return nil
	}

	var tier []AmplitudePoint
	for i := imin + 1; i < imax; i++ {
		p1 := pp.T[i] - pp.T[i-1]
		p2 := pp.T[i+1] - pp.T[i]
		if !acceptPeriods(p1, p2, pmin, pmax, maxFactor) {
			continue
		}
		peak := hannWindowedRMS(snd, pp.T[i], 0.2*p1, 0.2*p2)
		if !math.IsNaN(peak) && peak > 0 {
			tier = append(tier, AmplitudePoint{Time: pp.T[i], Value: peak})
		}
	}
	return tier
}

func hannWindowedRMS(snd *audio.Sound, mid, widthLeft, widthRight float64) float64 {
	lo, hi := snd.IndexRange(mid-widthLeft, mid+widthRight)
	if hi <= lo {
		return math.NaN()
	}
	var sumSq, windowSq float64
	for i := lo; i < hi; i++ {
		t := snd.TimeOf(i)
		width := widthRight
		if t < mid {
			width = widthLeft
		}
		w := 0.5 + 0.5*math.Cos(math.Pi*(t-mid)/width)
		v := snd.Samples[i] * w
		sumSq += v * v
		windowSq += w * w
	}
	if windowSq == 0 {
		return math.NaN()
	}
	return math.Sqrt(sumSq / windowSq)
}

// ShimmerLocal is the mean absolute difference between consecutive amplitudes
// divided by the mean amplitude, as a fraction. NaN means nothing could be
// measured.
func ShimmerLocal(tier []AmplitudePoint, pmin, pmax, maxAmplitudeFactor float64) float64 {
	var sum float64
	var pairs int
	for i := 1; i < len(tier); i++ {
		period := tier[i].Time - tier[i-1].Time
		if pmin != pmax && (period < pmin || period > pmax) {
			continue
		}
		a1, a2 := tier[i-1].Value, tier[i].Value
		if math.Max(a1, a2)/math.Min(a1, a2) > maxAmplitudeFactor {
			continue
		}
		sum += math.Abs(a1 - a2)
		pairs++
	}
	if pairs < 1 {
		return math.NaN()
	}

	var total float64
	for _, pt := range tier {
		total += pt.Value
	}
	mean := total / float64(len(tier))
	if mean == 0 {
		return math.NaN()
	}
	return sum / float64(pairs) / mean
}

// ShimmerLocal measures shimmer of snd at the pulses in pp.
func (pp *PointProcess) ShimmerLocal(snd *audio.Sound, tmin, tmax, pmin, pmax, maxFactor, maxAmplitudeFactor float64) float64 {
	tmin, tmax = pp.timeRange(tmin, tmax)
	imin, imax := pp.windowPoints(tmin, tmax)
	if imax-imin < 2 {
		return math.NaN()
	}
	tier := pp.AmplitudeTier(snd, tmin, tmax, pmin, pmax, maxFactor)
	return ShimmerLocal(tier, pmin, pmax, maxAmplitudeFactor)
}
