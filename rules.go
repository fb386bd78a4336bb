package main

// Bid is a claim that at least Count dice showing Value exist across
// all hands in play, jokers included unless the round is palifico.
type Bid struct {
	Count int `json:"count"`
	Value int `json:"value"`
}

func (b Bid) wellFormed() bool {
	return b.Count >= 1 && b.Value >= 1 && b.Value <= 6
}

// isValidRaise reports whether proposed may replace previous as the
// standing bid. Raises are ordered lexicographically on (count, value):
// a raise must increase the count, or hold the count and increase the
// value. An opening bid (previous == nil) only needs to be well-formed.
// During palifico rounds jokers are inert, so bids on value 1 are
// rejected outright, opening bids included.
//
// Note that the count is never clamped to the number of dice in play: a
// cornered bidder may always raise to an impossible count, which then
// resolves false on any challenge.
func isValidRaise(previous *Bid, proposed Bid, isPalifico bool) bool {
	if !proposed.wellFormed() {
		return false
	}
	if isPalifico && proposed.Value == 1 {
		return false
	}
	if previous == nil {
		return true
	}
	if proposed.Count != previous.Count {
		return proposed.Count > previous.Count
	}
	return proposed.Value > previous.Value
}

// countMatches counts dice showing value across all hands. With
// jokersWild, ones count toward any non-1 value as well.
func countMatches(hands [][]int, value int, jokersWild bool) int {
	total := 0
	for _, hand := range hands {
		for _, die := range hand {
			if die == value {
				total++
			} else if jokersWild && value != 1 && die == 1 {
				total++
			}
		}
	}
	return total
}

type dudoResult struct {
	actualCount int
	bidderLoses bool
}

// resolveDudo settles a dudo challenge against the standing bid. The
// bid was false, and the bidder loses a die, iff fewer matching dice
// exist than the bid claimed; otherwise the challenger loses one.
func resolveDudo(hands [][]int, bid Bid, isPalifico bool) dudoResult {
	actual := countMatches(hands, bid.Value, !isPalifico)
	return dudoResult{
		actualCount: actual,
		bidderLoses: actual < bid.Count,
	}
}

type calzaResult struct {
	actualCount int
	callerWins  bool
}

// resolveCalza settles a calza (exact-match) call against the standing
// bid. The caller wins, regaining a die, iff the bid count is exactly
// right; on any other actual count the caller loses a die.
func resolveCalza(hands [][]int, bid Bid, isPalifico bool) calzaResult {
	actual := countMatches(hands, bid.Value, !isPalifico)
	return calzaResult{
		actualCount: actual,
		callerWins:  actual == bid.Count,
	}
}
