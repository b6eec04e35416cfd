package audio

import "math"

// Sound is a read-only window of a File. Samples shares memory with the File
// and must not be written to.
type Sound struct {
	XMin    float64 // window start on the file timeline
	XMax    float64 // window end
	X1      float64 // time of Samples[0]
	DX      float64 // sample period
	Samples []float64
}

func (s *Sound) Len() int          { return len(s.Samples) }
func (s *Sound) Duration() float64 { return s.XMax - s.XMin }

// TimeOf returns the absolute time of sample i.
func (s *Sound) TimeOf(i int) float64 { return s.X1 + float64(i)*s.DX }

// IndexRange returns the half-open sample range whose times fall in [t1, t2],
// clipped to the window.
func (s *Sound) IndexRange(t1, t2 float64) (int, int) {
	lo := int(math.Ceil((t1 - s.X1) / s.DX))
	hi := int(math.Floor((t2-s.X1)/s.DX)) + 1
	lo = max(lo, 0)
	hi = min(hi, len(s.Samples))
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Peak returns the largest absolute sample value in the window.
func (s *Sound) Peak() float64 {
	var peak float64
	for _, x := range s.Samples {
		peak = math.Max(peak, math.Abs(x))
	}
	return peak
}

// Mean returns the DC offset of the window.
func (s *Sound) Mean() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, x := range s.Samples {
		sum += x
	}
	return sum / float64(len(s.Samples))
}
