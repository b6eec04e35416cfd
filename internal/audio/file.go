// Package audio loads recorded presentations into an immutable mono signal
// that can be windowed concurrently without copying.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

var (
	ErrEmptyAudio   = errors.New("audio contains no samples")
	ErrEmptyWindow  = errors.New("requested window contains no samples")
	ErrInvalidRange = errors.New("invalid time range")
)

// File is a decoded audio track. It is never modified after construction, so
// any number of goroutines may call ExtractPart on it.
type File struct {
	path       string
	sampleRate int
	samples    []float64
}

// Open decodes WAV and MP3 directly. Other containers are converted to WAV with
// ffmpeg first.
func Open(ctx context.Context, path string) (*File, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".mp3":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		af, err := Decode(f, ext)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		af.path = path
		return af, nil
	default:
		tmpDir, err := os.MkdirTemp("", "grader-audio-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		wavPath, err := ConvertToWAV(ctx, path, tmpDir)
		if err != nil {
			return nil, err
		}
		af, err := Open(ctx, wavPath)
		if err != nil {
			return nil, err
		}
		af.path = path
		return af, nil
	}
}

// Decode reads an entire stream in the given format (".wav" or ".mp3") and
// closes r. Channels are averaged into one.
func Decode(r io.ReadCloser, ext string) (*File, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
		gain     = 1.0
	)
	switch ext {
	case ".wav":
		streamer, format, err = wav.Decode(r)
		gain = wavGain(format.Precision)
	case ".mp3":
		streamer, format, err = mp3.Decode(r)
	default:
		r.Close()
		return nil, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		r.Close()
		return nil, err
	}
	defer streamer.Close()

	samples := make([]float64, 0, max(streamer.Len(), 0))
	buf := make([][2]float64, 4096)
	for {
		n, ok := streamer.Stream(buf)
		for _, frame := range buf[:n] {
			samples = append(samples, gain*(frame[0]+frame[1])/2)
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("stream samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	return &File{sampleRate: int(format.SampleRate), samples: samples}, nil
}

// wavGain undoes the wav decoder's scaling of signed PCM, which divides by
// the full unsigned range and so yields half the true level. 8-bit samples are
// unsigned and already span [-1, 1].
func wavGain(precision int) float64 {
	if precision < 2 || precision > 4 {
		return 1
	}
	bits := uint(8 * precision)
	return float64(uint64(1)<<bits-1) / float64(uint64(1)<<(bits-1))
}

// FromSamples wraps an in-memory mono signal. The slice is owned by the File
// afterwards.
func FromSamples(samples []float64, sampleRate int) *File {
	return &File{sampleRate: sampleRate, samples: samples}
}

func (f *File) Path() string          { return f.path }
func (f *File) SampleRate() int       { return f.sampleRate }
func (f *File) NumSamples() int       { return len(f.samples) }
func (f *File) Duration() float64     { return float64(len(f.samples)) / float64(f.sampleRate) }
func (f *File) SamplePeriod() float64 { return 1 / float64(f.sampleRate) }

// Sound returns the whole track as a window.
func (f *File) Sound() *Sound {
	dx := f.SamplePeriod()
	return &Sound{XMin: 0, XMax: f.Duration(), X1: dx / 2, DX: dx, Samples: f.samples}
}

// ExtractPart returns the samples whose centres lie in [from, to), keeping
// their absolute times. to is clamped to the end of the track.
func (f *File) ExtractPart(from, to float64) (*Sound, error) {
	if math.IsNaN(from) || math.IsNaN(to) || from < 0 || to <= from {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrInvalidRange, from, to)
	}
	dur := f.Duration()
	if from >= dur {
		return nil, fmt.Errorf("%w: start %g beyond duration %g", ErrInvalidRange, from, dur)
	}
	to = math.Min(to, dur)

	dx := f.SamplePeriod()
	x1 := dx / 2
	imin := int(math.Ceil((from - x1) / dx))
	imax := int(math.Ceil((to - x1) / dx))
	imin = max(imin, 0)
	imax = min(imax, len(f.samples))
	if imax <= imin {
		return nil, ErrEmptyWindow
	}

	return &Sound{
		XMin:    from,
		XMax:    to,
		X1:      x1 + float64(imin)*dx,
		DX:      dx,
		Samples: f.samples[imin:imax:imax],
	}, nil
}
