package sim

import "math/rand"

// FillModel gates the SimulatedExchange's match policy with three
// probabilities plus a seeded PRNG, so a backtest run is reproducible from
// its seed alone (§4.12 "Determinism").
type FillModel struct {
	ProbFillAtLimit float64 // touch (not cross) fills a resting limit
	ProbFillAtStop  float64 // touch (not cross) triggers a resting stop
	ProbSlippage    float64 // market/stop-market fill shifts one tick adverse

	rng *rand.Rand
}

// NewFillModel seeds a FillModel deterministically. A zero FillModel (all
// probabilities 0) degenerates to the simplest policy: touch never fills a
// resting order, crossing always does, and fills never slip.
func NewFillModel(probFillAtLimit, probFillAtStop, probSlippage float64, seed int64) FillModel {
	return FillModel{
		ProbFillAtLimit: probFillAtLimit,
		ProbFillAtStop:  probFillAtStop,
		ProbSlippage:    probSlippage,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

func (m *FillModel) hits(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return m.rng.Float64() < p
}

func (m *FillModel) fillsOnTouch() bool  { return m.hits(m.ProbFillAtLimit) }
func (m *FillModel) triggersOnTouch() bool { return m.hits(m.ProbFillAtStop) }
func (m *FillModel) slips() bool         { return m.hits(m.ProbSlippage) }
