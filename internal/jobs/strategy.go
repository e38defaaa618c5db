package jobs

// Strategy names a frame sampling trade-off between accuracy and cost
type Strategy string

const (
	StrategyHighAccuracy Strategy = "high_accuracy"
	StrategyBalanced     Strategy = "balanced"
	StrategyLowCost      Strategy = "low_cost"
)

var samplingRates = map[Strategy]int{
	StrategyHighAccuracy: 1,
	StrategyBalanced:     5,
	StrategyLowCost:      20,
}

// SamplingRate returns the frame stride for the strategy. Unrecognized names fall back
// to the balanced rate and report known=false.
func (s Strategy) SamplingRate() (rate int, known bool) {
	rate, known = samplingRates[s]
	if !known {
		return samplingRates[StrategyBalanced], false
	}
	return rate, true
}

// Description is the human-readable summary used in processing logs
func (s Strategy) Description() string {
	switch s {
	case StrategyHighAccuracy:
		return "processing all frames."
	case StrategyLowCost:
		return "processing every 20th frame."
	case StrategyBalanced:
		return "processing every 5th frame."
	}
	return ""
}
