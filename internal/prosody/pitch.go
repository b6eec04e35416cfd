package prosody

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/kyuchan/presentation-grader/internal/audio"
)

var ErrSegmentTooShort = errors.New("segment shorter than the pitch analysis window")

// PitchFrame is the chosen candidate for one analysis frame.
type PitchFrame struct {
	Time      float64
	Frequency float64 // 0 when unvoiced
	Strength  float64
}

func (f PitchFrame) Voiced() bool { return f.Frequency > 0 }

// Pitch is a pitch contour sampled every Step seconds starting at Frames[0].Time.
type Pitch struct {
	XMin, XMax float64
	Step       float64
	Ceiling    float64
	Frames     []PitchFrame
}

type pitchCandidate struct {
	frequency float64
	strength  float64
}

// ToPitch tracks the fundamental frequency of snd with the autocorrelation
// method: Hann-windowed frames, autocorrelation normalised by the window's own
// autocorrelation, parabolic peak interpolation and a Viterbi search over the
// per-frame candidates.
func ToPitch(snd *audio.Sound, p Params) (*Pitch, error) {
	dt := p.timeStep()
	dx := snd.DX
	windowDur := p.windowDuration()
	span := float64(snd.Len()) * dx

	nWindow := int(math.Floor(windowDur / dx))
	if span < windowDur || nWindow < 3 {
		return nil, fmt.Errorf("%w: %.3fs < %.3fs", ErrSegmentTooShort, span, windowDur)
	}

	nFrames := int(math.Floor((span-windowDur)/dt)) + 1
	midTime := snd.X1 - 0.5*dx + 0.5*span
	t1 := midTime - 0.5*float64(nFrames-1)*dt

	minLag := max(2, int(math.Floor(1/(dx*p.PitchCeiling))))
	maxLag := min(int(math.Floor(float64(nWindow)/p.PeriodsPerWindow))+2, nWindow-1)

	nFFT := 1
	for nFFT < 2*nWindow {
		nFFT <<= 1
	}
	fft := fourier.NewFFT(nFFT)

	window := make([]float64, nWindow)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i+1)/float64(nWindow+1))
	}
	windowAC := autocorrelate(fft, window, nFFT)
	if windowAC[0] <= 0 {
		return nil, errors.New("degenerate analysis window")
	}
	norm := windowAC[0]
	for i := range windowAC {
		windowAC[i] /= norm
	}

	globalMean := snd.Mean()
	var globalPeak float64
	for _, x := range snd.Samples {
		globalPeak = math.Max(globalPeak, math.Abs(x-globalMean))
	}

	candidates := make([][]pitchCandidate, nFrames)
	frame := make([]float64, nWindow)
	for f := 0; f < nFrames; f++ {
		t := t1 + float64(f)*dt
		start := int(math.Round((t - 0.5*windowDur - snd.X1) / dx))

		var mean float64
		for i := range frame {
			j := start + i
			if j >= 0 && j < snd.Len() {
				frame[i] = snd.Samples[j]
			} else {
				frame[i] = 0
			}
			mean += frame[i]
		}
		mean /= float64(nWindow)

		var localPeak float64
		for i := range frame {
			frame[i] -= mean
			localPeak = math.Max(localPeak, math.Abs(frame[i]))
			frame[i] *= window[i]
		}

		unvoiced := pitchCandidate{strength: p.VoicingThreshold}
		if globalPeak > 0 {
			unvoiced.strength += math.Max(0, 2-(localPeak/globalPeak)/(p.SilenceThreshold/(1+p.VoicingThreshold)))
		} else {
			unvoiced.strength += 2
		}
		candidates[f] = []pitchCandidate{unvoiced}

		if localPeak == 0 || globalPeak == 0 {
			continue
		}

		ac := autocorrelate(fft, frame, nFFT)
		if ac[0] <= 0 {
			continue
		}
		r := make([]float64, maxLag+2)
		for k := range r {
			if windowAC[k] < 1e-9 {
				break
			}
			r[k] = ac[k] / ac[0] / windowAC[k]
		}
		candidates[f] = append(candidates[f], framePeaks(r, minLag, maxLag, dx, p)...)
	}

	frames := viterbi(candidates, dt, p)
	for f := range frames {
		frames[f].Time = t1 + float64(f)*dt
	}

	return &Pitch{
		XMin:    snd.XMin,
		XMax:    snd.XMax,
		Step:    dt,
		Ceiling: p.PitchCeiling,
		Frames:  frames,
	}, nil
}

// autocorrelate returns the unnormalised autocorrelation of x zero-padded to n.
func autocorrelate(fft *fourier.FFT, x []float64, n int) []float64 {
	padded := make([]float64, n)
	copy(padded, x)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		re, im := real(c), imag(c)
		coeff[i] = complex(re*re+im*im, 0)
	}
	return fft.Sequence(nil, coeff)
}

// framePeaks returns the strongest local maxima of the normalised
// autocorrelation r between minLag and maxLag.
func framePeaks(r []float64, minLag, maxLag int, dx float64, p Params) []pitchCandidate {
	var peaks []pitchCandidate
	var rank []float64
	for k := minLag; k <= maxLag && k+1 < len(r); k++ {
		if r[k] <= 0.5*p.VoicingThreshold || r[k] <= r[k-1] || r[k] < r[k+1] {
			continue
		}
		place, strength := float64(k), r[k]
		dr := 0.5 * (r[k+1] - r[k-1])
		d2r := 2*r[k] - r[k-1] - r[k+1]
		if d2r > 0 {
			place += dr / d2r
			strength += 0.5 * dr * dr / d2r
		}
		if strength > 1 {
			strength = 1 / strength
		}
		freq := 1 / (place * dx)
		if freq > p.PitchCeiling || freq < p.PitchFloor/2 {
			continue
		}
		peaks = append(peaks, pitchCandidate{frequency: freq, strength: strength})
		rank = append(rank, strength-p.OctaveCost*math.Log2(p.PitchFloor/freq))
	}

	limit := p.MaxCandidates - 1
	if len(peaks) <= limit {
		return peaks
	}
	idx := make([]int, len(peaks))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rank[idx[a]] > rank[idx[b]] })
	kept := make([]pitchCandidate, 0, limit)
	for _, i := range idx[:limit] {
		kept = append(kept, peaks[i])
	}
	return kept
}

// viterbi picks one candidate per frame, trading candidate strength against
// octave jumps and voicing changes between neighbouring frames.
func viterbi(candidates [][]pitchCandidate, dt float64, p Params) []PitchFrame {
	n := len(candidates)
	frames := make([]PitchFrame, n)
	if n == 0 {
		return frames
	}

	correction := 0.01 / dt
	octaveJump := p.OctaveJumpCost * correction
	voicedUnvoiced := p.VoicedUnvoicedCost * correction

	local := func(c pitchCandidate) float64 {
		if c.frequency > 0 {
			return c.strength - p.OctaveCost*math.Log2(p.PitchCeiling/c.frequency)
		}
		return c.strength
	}
	transition := func(a, b pitchCandidate) float64 {
		av, bv := a.frequency > 0, b.frequency > 0
		switch {
		case !av && !bv:
			return 0
		case av != bv:
			return voicedUnvoiced
		default:
			return octaveJump * math.Abs(math.Log2(a.frequency/b.frequency))
		}
	}

	delta := make([][]float64, n)
	psi := make([][]int, n)
	delta[0] = make([]float64, len(candidates[0]))
	psi[0] = make([]int, len(candidates[0]))
	for c, cand := range candidates[0] {
		delta[0][c] = local(cand)
	}
	for f := 1; f < n; f++ {
		delta[f] = make([]float64, len(candidates[f]))
		psi[f] = make([]int, len(candidates[f]))
		for c, cand := range candidates[f] {
			best, from := math.Inf(-1), 0
			for pc, prev := range candidates[f-1] {
				v := delta[f-1][pc] - transition(prev, cand)
				if v > best {
					best, from = v, pc
				}
			}
			delta[f][c] = best + local(cand)
			psi[f][c] = from
		}
	}

	bestLast := 0
	for c := range delta[n-1] {
		if delta[n-1][c] > delta[n-1][bestLast] {
			bestLast = c
		}
	}
	for f, c := n-1, bestLast; f >= 0; f-- {
		cand := candidates[f][c]
		frames[f] = PitchFrame{Frequency: cand.frequency, Strength: cand.strength}
		c = psi[f][c]
	}
	return frames
}

// VoicedFrames counts frames with a pitch.
func (p *Pitch) VoicedFrames() int {
	var n int
	for _, f := range p.Frames {
		if f.Voiced() {
			n++
		}
	}
	return n
}

// MeanFrequency averages the voiced frames, or returns 0 when none are voiced.
func (p *Pitch) MeanFrequency() float64 {
	var sum float64
	var n int
	for _, f := range p.Frames {
		if f.Voiced() {
			sum += f.Frequency
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// voicedRun is a maximal stretch of voiced frames [first, last].
type voicedRun struct{ first, last int }

func (p *Pitch) voicedRuns() []voicedRun {
	var runs []voicedRun
	for i := 0; i < len(p.Frames); i++ {
		if !p.Frames[i].Voiced() {
			continue
		}
		j := i
		for j+1 < len(p.Frames) && p.Frames[j+1].Voiced() {
			j++
		}
		runs = append(runs, voicedRun{first: i, last: j})
		i = j
	}
	return runs
}

// frequencyInRun interpolates linearly between frames of run and holds the
// edge values outside it.
func (p *Pitch) frequencyInRun(t float64, run voicedRun) float64 {
	x := (t - p.Frames[0].Time) / p.Step
	if x <= float64(run.first) {
		return p.Frames[run.first].Frequency
	}
	if x >= float64(run.last) {
		return p.Frames[run.last].Frequency
	}
	i := int(math.Floor(x))
	frac := x - float64(i)
	return p.Frames[i].Frequency*(1-frac) + p.Frames[i+1].Frequency*frac
}
