package prosody

import (
	"errors"
	"math"
	"testing"

	"github.com/kyuchan/presentation-grader/internal/audio"
)

const testRate = 16000

func tone(freq, seconds, amp float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func TestToPitchFindsSineFrequency(t *testing.T) {
	f := audio.FromSamples(tone(200, 1, 0.5), testRate)

	pitch, err := ToPitch(f.Sound(), DefaultParams())
	if err != nil {
		t.Fatalf("ToPitch: %v", err)
	}
	if voiced := pitch.VoicedFrames(); voiced < len(pitch.Frames)*8/10 {
		t.Fatalf("voiced frames = %d of %d, want most", voiced, len(pitch.Frames))
	}
	if mean := pitch.MeanFrequency(); !approx(mean, 200, 5) {
		t.Errorf("mean frequency = %.2f, want ~200", mean)
	}
}

func TestToPitchSilenceIsUnvoiced(t *testing.T) {
	f := audio.FromSamples(make([]float64, testRate), testRate)

	pitch, err := ToPitch(f.Sound(), DefaultParams())
	if err != nil {
		t.Fatalf("ToPitch: %v", err)
	}
	if n := pitch.VoicedFrames(); n != 0 {
		t.Errorf("voiced frames = %d, want 0", n)
	}
	if pp := pitch.ToPointProcess(); pp.Len() != 0 {
		t.Errorf("pulses = %d, want 0", pp.Len())
	}
}

func TestToPitchTooShort(t *testing.T) {
	f := audio.FromSamples(tone(200, 0.02, 0.5), testRate)

	_, err := ToPitch(f.Sound(), DefaultParams())
	if !errors.Is(err, ErrSegmentTooShort) {
		t.Fatalf("err = %v, want ErrSegmentTooShort", err)
	}
}

func TestPointProcessFollowsPitch(t *testing.T) {
	f := audio.FromSamples(tone(150, 1, 0.5), testRate)
	p := DefaultParams()

	pitch, err := ToPitch(f.Sound(), p)
	if err != nil {
		t.Fatal(err)
	}
	pp := pitch.ToPointProcess()
	if pp.Len() < 100 {
		t.Fatalf("pulses = %d, want roughly 150", pp.Len())
	}
	for i := 1; i < pp.Len(); i++ {
		if pp.T[i] <= pp.T[i-1] {
			t.Fatalf("pulse %d at %g not after %g", i, pp.T[i], pp.T[i-1])
		}
		if pp.T[i] < pitch.XMin || pp.T[i] > pitch.XMax {
			t.Fatalf("pulse %d at %g outside [%g, %g]", i, pp.T[i], pitch.XMin, pitch.XMax)
		}
	}

	period := pp.MeanPeriod(0, 0, p.ShortestPeriod, p.LongestPeriod, p.MaxPeriodFactor)
	if !approx(period, 1.0/150, 0.0003) {
		t.Errorf("mean period = %g, want ~%g", period, 1.0/150)
	}
	if j := pp.JitterLocal(0, 0, p.ShortestPeriod, p.LongestPeriod, p.MaxPeriodFactor); j > 0.01 {
		t.Errorf("jitter of a steady tone = %g, want below 1%%", j)
	}
}

func TestToPitchKeepsAbsoluteTimes(t *testing.T) {
	samples := append(make([]float64, testRate), tone(200, 1, 0.5)...)
	f := audio.FromSamples(samples, testRate)

	part, err := f.ExtractPart(1.2, 1.8)
	if err != nil {
		t.Fatal(err)
	}
	pitch, err := ToPitch(part, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	first := pitch.Frames[0].Time
	last := pitch.Frames[len(pitch.Frames)-1].Time
	if first < 1.2 || last > 1.8 {
		t.Errorf("frames span [%g, %g], want inside [1.2, 1.8]", first, last)
	}
}
