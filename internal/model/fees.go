package model

// DefaultKey is the fallback key used by fee schedules and per-venue override
// maps when no specific entry exists.
const DefaultKey = "default"

// FeeSchedule holds the trading costs applied to one leg on one venue.
type FeeSchedule struct {
	TakerFeePercent float64 `json:"taker_fee_percent" mapstructure:"taker_fee_percent" yaml:"taker_fee_percent"`
	MakerFeePercent float64 `json:"maker_fee_percent" mapstructure:"maker_fee_percent" yaml:"maker_fee_percent"`
	SlippageBps     float64 `json:"slippage_bps" mapstructure:"slippage_bps" yaml:"slippage_bps"`
}

// VenueFees maps a venue to its fee schedules, keyed per pair with a
// mandatory "default" entry.
type VenueFees map[string]map[string]FeeSchedule

// For resolves the fee schedule for a venue and pair. Resolution order:
// exact (venue, pair) entry, then the venue's "default" entry, then the
// global "default" venue's "default" entry, then a zero schedule.
func (vf VenueFees) For(venue, pair string) FeeSchedule {
	if byPair, ok := vf[venue]; ok {
		if fs, ok := byPair[pair]; ok {
			return fs
		}
		if fs, ok := byPair[DefaultKey]; ok {
			return fs
		}
	}
	if byPair, ok := vf[DefaultKey]; ok {
		if fs, ok := byPair[DefaultKey]; ok {
			return fs
		}
	}
	return FeeSchedule{}
}

// SlippagePercent converts the modeled slippage from basis points to percent.
func (fs FeeSchedule) SlippagePercent() float64 {
	return fs.SlippageBps / 100
}
