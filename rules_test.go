package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bidPtr(count, value int) *Bid {
	return &Bid{Count: count, Value: value}
}

func TestIsValidRaise(t *testing.T) {
	tests := []struct {
		name     string
		previous *Bid
		proposed Bid
		palifico bool
		want     bool
	}{
		{"opening bid", nil, Bid{1, 3}, false, true},
		{"opening bid on ones", nil, Bid{2, 1}, false, true},
		{"opening count zero", nil, Bid{0, 3}, false, false},
		{"opening value seven", nil, Bid{2, 7}, false, false},
		{"opening value zero", nil, Bid{2, 0}, false, false},
		{"count up", bidPtr(3, 4), Bid{4, 2}, false, true},
		{"count up value down", bidPtr(3, 4), Bid{4, 1}, false, true},
		{"count same value up", bidPtr(3, 4), Bid{3, 5}, false, true},
		{"count same value same", bidPtr(3, 4), Bid{3, 4}, false, false},
		{"count same value down", bidPtr(3, 4), Bid{3, 2}, false, false},
		{"count down", bidPtr(3, 4), Bid{2, 6}, false, false},
		{"no upper clamp on count", bidPtr(3, 4), Bid{100, 4}, false, true},
		{"palifico opening on ones", nil, Bid{2, 1}, true, false},
		{"palifico raise to ones", bidPtr(3, 4), Bid{4, 1}, true, false},
		{"palifico normal raise", bidPtr(3, 4), Bid{3, 5}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidRaise(tt.previous, tt.proposed, tt.palifico))
		})
	}
}

func TestCountMatches(t *testing.T) {
	hands := [][]int{{1, 3, 3}, {4, 4, 1}}

	// Two literal threes plus two wild ones.
	assert.Equal(t, 4, countMatches(hands, 3, true))

	// Palifico: jokers inert, literal threes only.
	assert.Equal(t, 2, countMatches(hands, 3, false))

	// Ones are never wild toward themselves.
	assert.Equal(t, 2, countMatches(hands, 1, true))
	assert.Equal(t, 2, countMatches(hands, 1, false))

	assert.Equal(t, 0, countMatches(nil, 3, true))
}

func TestResolveDudo(t *testing.T) {
	hands := [][]int{{2, 2, 4}, {4, 5, 6}}

	// Two fours in play, no jokers rolled.
	res := resolveDudo(hands, Bid{Count: 3, Value: 4}, false)
	assert.Equal(t, 2, res.actualCount)
	assert.True(t, res.bidderLoses)

	res = resolveDudo(hands, Bid{Count: 2, Value: 4}, false)
	assert.Equal(t, 2, res.actualCount)
	assert.False(t, res.bidderLoses)

	res = resolveDudo(hands, Bid{Count: 1, Value: 4}, false)
	assert.False(t, res.bidderLoses)
}

func TestResolveDudoDeterministic(t *testing.T) {
	hands := [][]int{{1, 3, 3, 5, 5}, {4, 4, 1, 2, 6}, {3, 1, 1, 6, 2}}
	bid := Bid{Count: 6, Value: 3}

	first := resolveDudo(hands, bid, false)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, resolveDudo(hands, bid, false))
	}
}

func TestResolveDudoImpossibleBid(t *testing.T) {
	// A bid above the total dice in play is legal to make, but can
	// never be true.
	hands := [][]int{{1, 1, 1}, {4, 4, 4}}
	res := resolveDudo(hands, Bid{Count: 7, Value: 4}, false)
	assert.Equal(t, 6, res.actualCount)
	assert.True(t, res.bidderLoses)
}

func TestResolveCalza(t *testing.T) {
	hands := [][]int{{2, 2, 4}, {4, 5, 1}}

	// Two fours plus one joker.
	res := resolveCalza(hands, Bid{Count: 3, Value: 4}, false)
	assert.Equal(t, 3, res.actualCount)
	assert.True(t, res.callerWins)

	res = resolveCalza(hands, Bid{Count: 2, Value: 4}, false)
	assert.False(t, res.callerWins)

	res = resolveCalza(hands, Bid{Count: 4, Value: 4}, false)
	assert.False(t, res.callerWins)

	// Palifico drops the joker from the count.
	res = resolveCalza(hands, Bid{Count: 2, Value: 4}, true)
	assert.Equal(t, 2, res.actualCount)
	assert.True(t, res.callerWins)
}
