package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoom(t *testing.T, names ...string) *Room {
	t.Helper()

	r := newRoom("TEST42", Settings{
		MaxPlayers:        maxPlayers,
		StartingDiceCount: 5,
	})
	for i, name := range names {
		_, gerr := r.addPlayer(string(rune('a'+i)), name)
		require.Nil(t, gerr)
	}
	return r
}

func TestAddPlayer(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")

	assert.Equal(t, "a", r.HostID)
	assert.True(t, r.Players[0].IsHost)
	assert.False(t, r.Players[1].IsHost)
	assert.Equal(t, 5, r.Players[1].DiceCount)
	assert.True(t, r.Players[1].IsConnected)
	assert.NotEqual(t, r.Players[0].Color, r.Players[1].Color)
}

func TestAddPlayerCapacity(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	r.Settings.MaxPlayers = 2

	_, gerr := r.addPlayer("c", "Carol")
	require.NotNil(t, gerr)
	assert.Equal(t, errCapacity, gerr.code)
}

func TestAddPlayerAfterStart(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	_, gerr := r.addPlayer("c", "Carol")
	require.NotNil(t, gerr)
	assert.Equal(t, errCapacity, gerr.code)
}

func TestPlayerNames(t *testing.T) {
	r := testRoom(t)

	_, gerr := r.addPlayer("a", "x")
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)

	p, gerr := r.addPlayer("b", "  an extremely long name  ")
	require.Nil(t, gerr)
	assert.Len(t, []rune(p.Name), maxPlayerName)
}

func TestStartGame(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	assert.Equal(t, PhaseBidding, r.Phase)
	require.NotNil(t, r.Round)
	assert.Nil(t, r.Round.CurrentBid)
	assert.False(t, r.Round.IsPalifico)
	assert.Len(t, r.Round.TurnOrder, 3)
	assert.Equal(t, r.HostID, r.Round.CurrentTurnPlayerID)
	assert.Equal(t, 15, r.totalDice())
	for _, p := range r.Players {
		assert.Len(t, p.Hand, p.DiceCount)
		for _, die := range p.Hand {
			assert.GreaterOrEqual(t, die, 1)
			assert.LessOrEqual(t, die, 6)
		}
	}
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	r := testRoom(t, "Alice")
	gerr := r.startGame()
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)
}

// The worked three-player sequence: a valid opening bid, a valid raise,
// a rejected lower raise, then a successful dudo against the raiser.
func TestBidAndDudoSequence(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	// Exactly two fours across all hands, no jokers rolled.
	r.Players[0].Hand = []int{2, 2, 3, 3, 5}
	r.Players[1].Hand = []int{4, 2, 3, 5, 6}
	r.Players[2].Hand = []int{4, 2, 3, 5, 6}

	require.Nil(t, r.applyBid("a", Bid{Count: 3, Value: 3}))
	assert.Equal(t, "b", r.Round.CurrentTurnPlayerID)

	require.Nil(t, r.applyBid("b", Bid{Count: 3, Value: 4}))
	assert.Equal(t, "c", r.Round.CurrentTurnPlayerID)

	// Lower count is rejected and leaves the standing bid untouched.
	gerr := r.applyBid("c", Bid{Count: 2, Value: 6})
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)
	assert.Equal(t, Bid{Count: 3, Value: 4}, *r.Round.CurrentBid)
	assert.Equal(t, "c", r.Round.CurrentTurnPlayerID)

	outcome, gerr := r.applyDudo("c")
	require.Nil(t, gerr)
	assert.Equal(t, 2, outcome.ActualCount)
	assert.Equal(t, "b", outcome.LoserID)
	assert.Equal(t, "c", outcome.WinnerID)
	assert.False(t, outcome.IsCalza)
	assert.Equal(t, 4, r.playerByID("b").DiceCount)

	// The loser, still holding dice, opens the next round.
	r.finishResolution(outcome)
	assert.Equal(t, PhaseBidding, r.Phase)
	assert.Equal(t, "b", r.Round.CurrentTurnPlayerID)
	assert.Equal(t, 14, r.totalDice())
}

func TestDudoAgainstTrueBid(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	r.Players[0].Hand = []int{4, 4, 1, 2, 3}
	r.Players[1].Hand = []int{4, 5, 6, 2, 3}

	require.Nil(t, r.applyBid("a", Bid{Count: 3, Value: 4}))

	// Three fours plus a joker: the bid holds, the challenger pays.
	outcome, gerr := r.applyDudo("b")
	require.Nil(t, gerr)
	assert.Equal(t, 4, outcome.ActualCount)
	assert.Equal(t, "b", outcome.LoserID)
	assert.Equal(t, "a", outcome.WinnerID)
	assert.Equal(t, 4, r.playerByID("b").DiceCount)
}

func TestDudoRequiresStandingBid(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	_, gerr := r.applyDudo("a")
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)
	assert.Equal(t, PhaseBidding, r.Phase)
}

func TestOutOfTurnRejected(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	gerr := r.applyBid("c", Bid{Count: 2, Value: 3})
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)
	assert.Nil(t, r.Round.CurrentBid)
}

func TestCalza(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	r.Players[0].Hand = []int{4, 4, 2, 2, 3}
	r.Players[1].Hand = []int{4, 5, 6, 2, 3}
	r.Players[2].Hand = []int{5, 5, 6, 6, 3}
	r.playerByID("b").DiceCount = 4
	r.Players[1].Hand = r.Players[1].Hand[:4]

	require.Nil(t, r.applyBid("a", Bid{Count: 3, Value: 4}))

	// Exactly three fours: the caller regains a die.
	outcome, gerr := r.applyCalza("b")
	require.Nil(t, gerr)
	assert.True(t, outcome.IsCalza)
	assert.Equal(t, "b", outcome.WinnerID)
	assert.Empty(t, outcome.LoserID)
	assert.Equal(t, 5, r.playerByID("b").DiceCount)

	// The caller opens the next round.
	r.finishResolution(outcome)
	assert.Equal(t, "b", r.Round.CurrentTurnPlayerID)
}

func TestCalzaCappedAtStartingCount(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	r.Players[0].Hand = []int{4, 4, 4, 2, 3}
	r.Players[1].Hand = []int{5, 5, 6, 2, 3}

	require.Nil(t, r.applyBid("a", Bid{Count: 3, Value: 4}))

	outcome, gerr := r.applyCalza("b")
	require.Nil(t, gerr)
	assert.True(t, outcome.IsCalza)
	assert.Equal(t, "b", outcome.WinnerID)
	// Already at the starting count; no sixth die.
	assert.Equal(t, 5, r.playerByID("b").DiceCount)
}

func TestCalzaMissLosesDie(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	r.Players[0].Hand = []int{4, 4, 4, 2, 3}
	r.Players[1].Hand = []int{5, 5, 6, 2, 3}

	require.Nil(t, r.applyBid("a", Bid{Count: 2, Value: 4}))

	outcome, gerr := r.applyCalza("b")
	require.Nil(t, gerr)
	assert.Equal(t, "b", outcome.LoserID)
	assert.Equal(t, 4, r.playerByID("b").DiceCount)
}

func TestCalzaNotLegalAsOpening(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	_, gerr := r.applyCalza("a")
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)
}

func TestPalifico(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	r.playerByID("b").DiceCount = 1
	r.rollNewRound("b")

	require.True(t, r.Round.IsPalifico)
	assert.Equal(t, "b", r.Round.CurrentTurnPlayerID)

	// No bids on ones while jokers are inert.
	gerr := r.applyBid("b", Bid{Count: 2, Value: 1})
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)

	require.Nil(t, r.applyBid("b", Bid{Count: 2, Value: 3}))
}

func TestPalificoNeedsExactlyOneSingleDiePlayer(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	r.playerByID("a").DiceCount = 1
	r.playerByID("b").DiceCount = 1
	r.rollNewRound("a")

	assert.False(t, r.Round.IsPalifico)
}

func TestEliminationAndGameOver(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	r.playerByID("b").DiceCount = 1
	r.rollNewRound("a")

	r.Players[0].Hand = []int{5, 5, 5, 5, 5}
	r.Players[1].Hand = []int{2}

	require.Nil(t, r.applyBid("a", Bid{Count: 4, Value: 5}))

	outcome, gerr := r.applyDudo("b")
	require.Nil(t, gerr)
	assert.Equal(t, "b", outcome.LoserID)

	b := r.playerByID("b")
	assert.Equal(t, 0, b.DiceCount)
	assert.True(t, b.IsEliminated())

	r.finishResolution(outcome)
	assert.Equal(t, PhaseGameOver, r.Phase)
	assert.Equal(t, "a", r.WinnerID)
	assert.Nil(t, r.Round)

	// A finished game accepts no further gameplay commands.
	gerr = r.applyBid("a", Bid{Count: 1, Value: 2})
	require.NotNil(t, gerr)
}

func TestEliminatedLoserSuccessorLeads(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	r.playerByID("b").DiceCount = 1
	r.rollNewRound("a")

	r.Players[0].Hand = []int{5, 5, 5, 5, 5}
	r.Players[1].Hand = []int{2}
	r.Players[2].Hand = []int{3, 3, 3, 3, 2}

	require.Nil(t, r.applyBid("a", Bid{Count: 6, Value: 5}))
	require.Nil(t, r.applyBid("b", Bid{Count: 7, Value: 5}))

	outcome, gerr := r.applyDudo("c")
	require.Nil(t, gerr)
	assert.Equal(t, "b", outcome.LoserID)
	assert.True(t, r.playerByID("b").IsEliminated())

	// The loser is out, so the next active seat in join order opens.
	r.finishResolution(outcome)
	assert.Equal(t, PhaseBidding, r.Phase)
	assert.Equal(t, "c", r.Round.CurrentTurnPlayerID)
}

func TestHostTransferOnDisconnect(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")

	r.setConnected("a", false)

	assert.Equal(t, "b", r.HostID)
	assert.False(t, r.playerByID("a").IsHost)
	assert.True(t, r.playerByID("b").IsHost)

	// Reconnecting does not reclaim the host flag.
	r.setConnected("a", true)
	assert.Equal(t, "b", r.HostID)

	hosts := 0
	for _, p := range r.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestHostTransferSkipsDisconnected(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")

	r.setConnected("b", false)
	r.setConnected("a", false)

	assert.Equal(t, "c", r.HostID)
}

func TestTurnSkipsDisconnectedPlayers(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	r.setConnected("b", false)

	require.Nil(t, r.applyBid("a", Bid{Count: 2, Value: 3}))
	assert.Equal(t, "c", r.Round.CurrentTurnPlayerID)
}

func TestDisconnectedSeatSurvives(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")
	require.Nil(t, r.startGame())

	hand := append([]int(nil), r.playerByID("b").Hand...)
	r.setConnected("b", false)

	b := r.playerByID("b")
	require.NotNil(t, b)
	assert.False(t, b.IsConnected)
	assert.Equal(t, 5, b.DiceCount)
	assert.Equal(t, hand, b.Hand)
	assert.Contains(t, r.Round.TurnOrder, "b")
}

func TestRemovePlayerRepairsRoom(t *testing.T) {
	r := testRoom(t, "Alice", "Bob", "Carol")
	require.Nil(t, r.startGame())

	r.removePlayer("a")

	assert.Nil(t, r.playerByID("a"))
	assert.Equal(t, "b", r.HostID)
	assert.NotContains(t, r.Round.TurnOrder, "a")
	assert.Equal(t, "b", r.Round.CurrentTurnPlayerID)
}

func TestApplySettings(t *testing.T) {
	r := testRoom(t, "Alice", "Bob")

	three := 3
	seven := 7
	yes := true

	require.Nil(t, r.applySettings(SettingsPatch{MaxPlayers: &three, AllowSpectators: &yes}))
	assert.Equal(t, 3, r.Settings.MaxPlayers)
	assert.True(t, r.Settings.AllowSpectators)

	require.Nil(t, r.applySettings(SettingsPatch{StartingDiceCount: &seven}))
	assert.Equal(t, 7, r.Settings.StartingDiceCount)
	assert.Equal(t, 7, r.Players[0].DiceCount)

	one := 1
	gerr := r.applySettings(SettingsPatch{MaxPlayers: &one})
	require.NotNil(t, gerr)
	assert.Equal(t, errValidation, gerr.code)

	require.Nil(t, r.startGame())
	gerr = r.applySettings(SettingsPatch{AllowSpectators: &yes})
	require.NotNil(t, gerr)
}

func TestSettingsPatchIgnoresUnknownKeys(t *testing.T) {
	var patch SettingsPatch
	raw := `{"maxPlayers": 4, "turboMode": true, "theme": "dark"}`

	require.NoError(t, json.Unmarshal([]byte(raw), &patch))
	require.NotNil(t, patch.MaxPlayers)
	assert.Equal(t, 4, *patch.MaxPlayers)
	assert.Nil(t, patch.StartingDiceCount)
	assert.Nil(t, patch.AllowSpectators)
}

func TestRandBelow(t *testing.T) {
	// n=6 rejects bytes 252-255, so this also exercises the retry path.
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v := randBelow(6)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 6)
		seen[v] = true
	}
	assert.Len(t, seen, 6)
}

func TestRoomCodes(t *testing.T) {
	assert.Equal(t, "ABC234", normalizeRoomCode("  abc234 "))

	for i := 0; i < 100; i++ {
		code := randomRoomCode()
		assert.Len(t, code, roomCodeLength)
		for _, c := range code {
			assert.Contains(t, roomCodeAlphabet, string(c))
		}
	}
}
