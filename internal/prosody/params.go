package prosody

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params controls pitch tracking and the perturbation measurements. The zero
// value is not usable; start from DefaultParams.
type Params struct {
	// Pitch tracking (autocorrelation method).
	PitchFloor         float64 `yaml:"pitch_floor"`
	PitchCeiling       float64 `yaml:"pitch_ceiling"`
	TimeStep           float64 `yaml:"time_step"` // 0 means 0.75 / PitchFloor
	PeriodsPerWindow   float64 `yaml:"periods_per_window"`
	MaxCandidates      int     `yaml:"max_candidates"`
	SilenceThreshold   float64 `yaml:"silence_threshold"`
	VoicingThreshold   float64 `yaml:"voicing_threshold"`
	OctaveCost         float64 `yaml:"octave_cost"`
	OctaveJumpCost     float64 `yaml:"octave_jump_cost"`
	VoicedUnvoicedCost float64 `yaml:"voiced_unvoiced_cost"`

	// Measurement window relative to the segment start. 0/0 is the whole segment.
	RangeStart float64 `yaml:"range_start"`
	RangeEnd   float64 `yaml:"range_end"`

	// Period and amplitude acceptance for jitter and shimmer.
	ShortestPeriod     float64 `yaml:"shortest_period"`
	LongestPeriod      float64 `yaml:"longest_period"`
	MaxPeriodFactor    float64 `yaml:"max_period_factor"`
	MaxAmplitudeFactor float64 `yaml:"max_amplitude_factor"`
}

func DefaultParams() Params {
	return Params{
		PitchFloor:         75,
		PitchCeiling:       600,
		PeriodsPerWindow:   3,
		MaxCandidates:      15,
		SilenceThreshold:   0.03,
		VoicingThreshold:   0.45,
		OctaveCost:         0.01,
		OctaveJumpCost:     0.35,
		VoicedUnvoicedCost: 0.14,
		ShortestPeriod:     0.0001,
		LongestPeriod:      0.02,
		MaxPeriodFactor:    1.3,
		MaxAmplitudeFactor: 1.6,
	}
}

func (p Params) Validate() error {
	switch {
	case p.PitchFloor <= 0:
		return errors.New("pitch floor must be positive")
	case p.PitchCeiling <= p.PitchFloor:
		return fmt.Errorf("pitch ceiling %g must exceed floor %g", p.PitchCeiling, p.PitchFloor)
	case p.TimeStep < 0:
		return errors.New("time step must not be negative")
	case p.PeriodsPerWindow <= 0:
		return errors.New("periods per window must be positive")
	case p.MaxCandidates < 2:
		return errors.New("max candidates must be at least 2")
	case p.RangeStart < 0 || p.RangeEnd < 0:
		return errors.New("measurement range must not be negative")
	case p.ShortestPeriod < 0 || p.LongestPeriod < p.ShortestPeriod:
		return fmt.Errorf("invalid period bounds [%g, %g]", p.ShortestPeriod, p.LongestPeriod)
	case p.MaxPeriodFactor < 1 || p.MaxAmplitudeFactor < 1:
		return errors.New("maximum period and amplitude factors must be at least 1")
	}
	return nil
}

func (p Params) timeStep() float64 {
	if p.TimeStep > 0 {
		return p.TimeStep
	}
	return 0.75 / p.PitchFloor
}

func (p Params) windowDuration() float64 { return p.PeriodsPerWindow / p.PitchFloor }

// LoadProfiles reads named parameter sets from a YAML file of the form
//
//	profiles:
//	  noisy_room:
//	    silence_threshold: 0.06
//
// Fields a profile leaves out keep their default values.
func LoadProfiles(path string) (map[string]Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var raw struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	profiles := make(map[string]Params, len(raw.Profiles))
	for name, node := range raw.Profiles {
		p := DefaultParams()
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		profiles[name] = p
	}
	return profiles, nil
}
