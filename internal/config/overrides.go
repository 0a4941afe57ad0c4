package config

// Overrides is the runtime-adjustable slice of the configuration, the
// payload persisted by the operator-facing collaborators. Extracting it from
// a Config and applying it back onto the same base must reproduce the
// overridden fields exactly.
type Overrides struct {
	Pairs            []string                  `json:"pairs,omitempty" mapstructure:"pairs"`
	Strategies       []string                  `json:"strategies,omitempty" mapstructure:"strategies"`
	ThresholdPercent float64                   `json:"threshold_percent,omitempty" mapstructure:"threshold_percent"`
	VenueP2P         map[string]P2PVenueConfig `json:"venue_p2p,omitempty" mapstructure:"venue_p2p"`
}

// ExtractOverrides builds the runtime-overrides payload from a configuration.
func ExtractOverrides(c *Config) Overrides {
	o := Overrides{
		Pairs:            append([]string(nil), c.Pairs...),
		Strategies:       append([]string(nil), c.Strategies...),
		ThresholdPercent: c.ThresholdPercent,
	}
	for name, vc := range c.Venues {
		if vc.Kind != string(kindP2P) {
			continue
		}
		if o.VenueP2P == nil {
			o.VenueP2P = make(map[string]P2PVenueConfig)
		}
		p := vc.P2P
		p.PaymentMethods = append([]string(nil), p.PaymentMethods...)
		o.VenueP2P[name] = p
	}
	return o
}

// ApplyOverrides returns a copy of base with the overridden fields replaced.
// The base is never mutated.
func ApplyOverrides(base *Config, o Overrides) *Config {
	out := *base
	if o.Pairs != nil {
		out.Pairs = append([]string(nil), o.Pairs...)
	}
	if o.Strategies != nil {
		out.Strategies = append([]string(nil), o.Strategies...)
	}
	if o.ThresholdPercent > 0 {
		out.ThresholdPercent = o.ThresholdPercent
	}
	if len(o.VenueP2P) > 0 {
		venues := make(map[string]VenueConfig, len(base.Venues))
		for name, vc := range base.Venues {
			venues[name] = vc
		}
		for name, p2p := range o.VenueP2P {
			vc := venues[name]
			p2p.PaymentMethods = append([]string(nil), p2p.PaymentMethods...)
			vc.P2P = p2p
			venues[name] = vc
		}
		out.Venues = venues
	}
	return &out
}

type venueKind string

const (
	kindTicker  venueKind = "ticker"
	kindP2P     venueKind = "p2p"
	kindOffline venueKind = "offline"
)
