package model

import "time"

// Confidence labels an opportunity's execution confidence band.
type Confidence string

const (
	ConfidenceAlta  Confidence = "alta"
	ConfidenceMedia Confidence = "media"
	ConfidenceBaja  Confidence = "baja"
)

// Strategy names for opportunity and threshold bucketing.
const (
	StrategyCrossSpot  = "cross_spot"
	StrategySpotP2P    = "spot_p2p"
	StrategyP2P        = "p2p_p2p"
	StrategyTriangular = "triangular"
	StrategyRoundtrip  = "fiat_roundtrip"
)

// Opportunity is one detected arbitrage candidate. Immutable once scored;
// it lives for a single poll cycle.
type Opportunity struct {
	ID              string            `json:"id"`
	Strategy        string            `json:"strategy"`
	Pair            string            `json:"pair"`
	BuyVenue        string            `json:"buy_venue"`
	SellVenue       string            `json:"sell_venue"`
	BuyPrice        float64           `json:"buy_price"`
	SellPrice       float64           `json:"sell_price"`
	GrossPercent    float64           `json:"gross_percent"`
	NetPercent      float64           `json:"net_percent"`
	ExecutableQty   float64           `json:"executable_qty,omitempty"`
	BuyDepth        *DepthInfo        `json:"buy_depth,omitempty"`
	SellDepth       *DepthInfo        `json:"sell_depth,omitempty"`
	Notes           map[string]string `json:"notes,omitempty"`
	LiquidityScore  float64           `json:"liquidity_score"`
	VolatilityScore float64           `json:"volatility_score"`
	PriorityScore   float64           `json:"priority_score"`
	Confidence      Confidence        `json:"confidence"`
	Timestamp       time.Time         `json:"timestamp"`
}

// TriangleAction says which side of a leg's book the route crosses.
type TriangleAction string

const (
	// SellBase sells the leg pair's base asset into its quote at the bid.
	SellBase TriangleAction = "SELL_BASE"
	// BuyBase buys the leg pair's base asset with its quote at the ask.
	BuyBase TriangleAction = "BUY_BASE"
)

// TriangleLeg is one hop of a triangular route.
type TriangleLeg struct {
	Pair   string         `json:"pair" yaml:"pair"`
	Action TriangleAction `json:"action" yaml:"action"`
}

// TriangularRoute is a static 3-leg route over a single venue. Long-lived
// configuration, shared read-only across cycles.
type TriangularRoute struct {
	Name       string        `json:"name" yaml:"name"`
	Venue      string        `json:"venue" yaml:"venue"`
	StartAsset string        `json:"start_asset" yaml:"start_asset"`
	Legs       []TriangleLeg `json:"legs" yaml:"legs"`
}

// TriangularOpportunity is one cycle's evaluation of a triangular route.
type TriangularOpportunity struct {
	ID            string        `json:"id"`
	Route         string        `json:"route"`
	Venue         string        `json:"venue"`
	StartAsset    string        `json:"start_asset"`
	StartNotional float64       `json:"start_notional"`
	EndNotional   float64       `json:"end_notional"`
	GrossPercent  float64       `json:"gross_percent"`
	NetPercent    float64       `json:"net_percent"`
	Legs          []TriangleLeg `json:"legs"`
	LegPrices     []float64     `json:"leg_prices"`
	Timestamp     time.Time     `json:"timestamp"`
}
