package core

import "math"

const (
	// log10Floor stands in for log10(0): a zero gain or distance yields a
	// very large but finite dB figure instead of -Inf.
	log10Floor = -20.0

	creationLossDB = 180.0
	refreshLossDB  = 155.0

	// Distance-proportional refresh penalties (dB per metre) inside and
	// beyond the nominal transmitting range.
	refreshNearLossPerMetre = 0.22
	refreshFarLossPerMetre  = 0.37
)

// BudgetContext selects the path-loss constants.
type BudgetContext int

const (
	// BudgetCreation is used when deciding who hears a new transmission.
	BudgetCreation BudgetContext = iota
	// BudgetRefresh is used when recomputing observed signal strengths.
	BudgetRefresh
)

func (c BudgetContext) String() string {
	if c == BudgetRefresh {
		return "refresh"
	}
	return "creation"
}

// LinkBudget computes Friis-derived path loss for the medium's frequency
// and propagation speed.
type LinkBudget struct {
	FrequencyGHz     float64
	PropagationSpeed float64
	// TransmitRange is the nominal (unscaled) transmitting range that
	// selects the refresh distance penalty.
	TransmitRange float64
}

// PathLossCreation returns
// 20·log10(d) + 20·log10(f) + 180 + 20·log10(4π/c).
func (lb LinkBudget) PathLossCreation(distance float64) float64 {
	return 20*safeLog10(distance) + lb.frequencyTermDB() + creationLossDB + lb.propagationTermDB()
}

// PathLossRefresh returns
// 20·log10(d)·(d/maxTxDist) + 20·log10(f) + 155 + 20·log10(4π/c) + k·d
// with k = 0.37 beyond the transmitting range and 0.22 inside it.
// It reports false when maxTxDist is not positive.
func (lb LinkBudget) PathLossRefresh(distance, maxTxDist float64) (float64, bool) {
	if maxTxDist <= 0 || math.IsNaN(maxTxDist) {
		return 0, false
	}
	factor := distance / maxTxDist
	perMetre := refreshNearLossPerMetre
	if distance >= lb.TransmitRange {
		perMetre = refreshFarLossPerMetre
	}
	pl := 20*safeLog10(distance)*factor + lb.frequencyTermDB() + refreshLossDB + lb.propagationTermDB() + perMetre*distance
	return pl, true
}

func (lb LinkBudget) frequencyTermDB() float64 {
	return 20 * safeLog10(lb.FrequencyGHz)
}

func (lb LinkBudget) propagationTermDB() float64 {
	return 20 * safeLog10(4*math.Pi/lb.PropagationSpeed)
}

// GainDB converts a gain coefficient to dB, tolerating zero.
func GainDB(coefficient float64) float64 {
	return 20 * safeLog10(coefficient)
}

// SignalStrength returns Ptx + Gtx + Grx − PL, all in dB.
func SignalStrength(ptxDBm, gtxDB, grxDB, pathLossDB float64) float64 {
	return ptxDBm + gtxDB + grxDB - pathLossDB
}

func safeLog10(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return log10Floor
	}
	l := math.Log10(v)
	if l < log10Floor {
		return log10Floor
	}
	return l
}
