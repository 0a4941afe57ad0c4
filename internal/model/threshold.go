package model

// ThresholdContext keys a dynamic-threshold lookup. Fiat is empty for pure
// crypto contexts. A lookup key only, never persisted.
type ThresholdContext struct {
	Strategy string `json:"strategy"`
	Pair     string `json:"pair"`
	Fiat     string `json:"fiat,omitempty"`
}

// Bucket renders the (strategy, pair, fiat-or-NA) bucket key used by
// historical analysis.
func (tc ThresholdContext) Bucket() string {
	fiat := tc.Fiat
	if fiat == "" {
		fiat = "NA"
	}
	return tc.Strategy + "|" + tc.Pair + "|" + fiat
}
