package prosody

import (
	"fmt"

	"github.com/kyuchan/presentation-grader/internal/config"
)

// ParamsFromConfig starts from the defaults, applies the selected profile if
// any, then applies individual overrides.
func ParamsFromConfig(cfg config.ProsodyConfig) (Params, error) {
	p := DefaultParams()
	if cfg.Profile != "" {
		profiles, err := LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return Params{}, err
		}
		prof, ok := profiles[cfg.Profile]
		if !ok {
			return Params{}, fmt.Errorf("prosody profile %q not found in %s", cfg.Profile, cfg.ProfilesPath)
		}
		p = prof
	}

	overrides := []struct {
		v   float64
		dst *float64
	}{
		{cfg.PitchFloor, &p.PitchFloor},
		{cfg.PitchCeiling, &p.PitchCeiling},
		{cfg.ShortestPeriod, &p.ShortestPeriod},
		{cfg.LongestPeriod, &p.LongestPeriod},
		{cfg.MaxPeriodFactor, &p.MaxPeriodFactor},
		{cfg.MaxAmplitudeFactor, &p.MaxAmplitudeFactor},
	}
	for _, o := range overrides {
		if o.v != 0 {
			*o.dst = o.v
		}
	}
	return p, p.Validate()
}
