package main

import (
	"crypto/rand"
	"strings"
	"time"
)

type RoomPhase string

const (
	PhaseWaiting   RoomPhase = "waiting"
	PhaseRolling   RoomPhase = "rolling"
	PhaseBidding   RoomPhase = "bidding"
	PhaseResolving RoomPhase = "resolving"
	PhaseGameOver  RoomPhase = "gameOver"
)

// Room codes avoid glyphs that read ambiguously on a shared screen
// (0/O, 1/I/L), and are uppercased and trimmed before lookup.
const (
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
)

func normalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randBelow returns a uniform value in [0, n). Bytes at or above the
// largest multiple of n are rejected rather than folded back in, so no
// face or glyph comes up more often than the rest.
func randBelow(n int) int {
	limit := 256 - 256%n
	buf := make([]byte, 1)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		if v := int(buf[0]); v < limit {
			return v % n
		}
	}
}

func randomRoomCode() string {
	out := make([]byte, roomCodeLength)
	for i := range out {
		out[i] = roomCodeAlphabet[randBelow(len(roomCodeAlphabet))]
	}
	return string(out)
}

// rollHand deals a fresh hand of n dice.
func rollHand(n int) []int {
	if n <= 0 {
		return nil
	}
	hand := make([]int, n)
	for i := range hand {
		hand[i] = randBelow(6) + 1
	}
	return hand
}

var playerColors = []string{"red", "orange", "yellow", "green", "blue", "purple"}

const (
	minPlayerName = 2
	maxPlayerName = 12
	minPlayers    = 2
	maxPlayers    = 6
)

// Player holds the data we store server-side for one seat. The hand is
// private to its owner and never leaves the room in a broadcast.
type Player struct {
	ID          string
	Name        string
	Color       string
	Hand        []int
	DiceCount   int
	IsHost      bool
	IsConnected bool
}

func (p *Player) IsEliminated() bool {
	return p.DiceCount == 0
}

// Settings is the closed set of host-editable room options.
type Settings struct {
	MaxPlayers        int  `json:"maxPlayers"`
	StartingDiceCount int  `json:"startingDiceCount"`
	AllowSpectators   bool `json:"allowSpectators"`
}

// SettingsPatch is a partial settings update; nil fields are left
// unchanged, and unrecognized keys are dropped during decoding.
type SettingsPatch struct {
	MaxPlayers        *int  `json:"maxPlayers,omitempty"`
	StartingDiceCount *int  `json:"startingDiceCount,omitempty"`
	AllowSpectators   *bool `json:"allowSpectators,omitempty"`
}

// Round is the transient state of one deal, destroyed when a dudo or
// calza challenge resolves.
type Round struct {
	CurrentBid          *Bid
	LastBidderID        string
	TurnOrder           []string
	CurrentTurnPlayerID string
	IsPalifico          bool
}

type roundOutcome struct {
	Bid         Bid
	ActualCount int
	LoserID     string
	WinnerID    string
	IsCalza     bool
	// starterID seats the opening bid of the next round.
	starterID string
}

// Room is the root aggregate for one game. It is only ever mutated by
// its hub's run loop, so none of these methods take a lock.
type Room struct {
	Code      string
	HostID    string
	Settings  Settings
	Players   []*Player
	Round     *Round
	Phase     RoomPhase
	WinnerID  string
	CreatedAt time.Time
}

func newRoom(code string, settings Settings) *Room {
	return &Room{
		Code:      code,
		Settings:  settings,
		Phase:     PhaseWaiting,
		CreatedAt: time.Now(),
	}
}

func (r *Room) playerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) activePlayers() []*Player {
	active := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if !p.IsEliminated() {
			active = append(active, p)
		}
	}
	return active
}

func (r *Room) totalDice() int {
	total := 0
	for _, p := range r.Players {
		total += p.DiceCount
	}
	return total
}

func sanitizeName(name string) (string, *gameError) {
	name = strings.TrimSpace(name)
	runes := []rune(name)
	if len(runes) > maxPlayerName {
		runes = runes[:maxPlayerName]
		name = string(runes)
	}
	if len(runes) < minPlayerName {
		return "", validationError("names must be between %d and %d characters", minPlayerName, maxPlayerName)
	}
	return name, nil
}

func (r *Room) nextColor() string {
	for _, color := range playerColors {
		taken := false
		for _, p := range r.Players {
			if p.Color == color {
				taken = true
				break
			}
		}
		if !taken {
			return color
		}
	}
	return playerColors[len(r.Players)%len(playerColors)]
}

// addPlayer seats a new player. The first seat becomes host. Callers
// are expected to have routed reconnects elsewhere; this is only for
// genuinely new identities.
func (r *Room) addPlayer(id, name string) (*Player, *gameError) {
	if r.Phase != PhaseWaiting {
		return nil, capacityError("game already in progress")
	}
	if len(r.Players) >= r.Settings.MaxPlayers {
		return nil, capacityError("room is full (%d players)", r.Settings.MaxPlayers)
	}
	clean, gerr := sanitizeName(name)
	if gerr != nil {
		return nil, gerr
	}

	p := &Player{
		ID:          id,
		Name:        clean,
		Color:       r.nextColor(),
		DiceCount:   r.Settings.StartingDiceCount,
		IsConnected: true,
	}
	if len(r.Players) == 0 {
		p.IsHost = true
		r.HostID = id
	}
	r.Players = append(r.Players, p)

	return p, nil
}

// removePlayer releases a seat entirely (kick or reaped timeout). Host
// and turn ownership are repaired afterwards.
func (r *Room) removePlayer(id string) {
	dst := r.Players[:0]
	removed := false
	for _, p := range r.Players {
		if p.ID == id {
			removed = true
			continue
		}
		dst = append(dst, p)
	}
	r.Players = dst
	if !removed {
		return
	}

	if r.HostID == id {
		r.transferHost()
	}

	if r.Round != nil {
		r.dropFromTurnOrder(id)
		if r.Round.LastBidderID == id {
			// The standing bid survives; a challenge against a departed
			// bidder penalizes nobody on their behalf.
			r.Round.LastBidderID = ""
		}
	}
	r.maybeFinishGame()
}

// transferHost moves the host flag to the first connected player in
// join order, falling back to the first seat if nobody is connected.
func (r *Room) transferHost() {
	for _, p := range r.Players {
		p.IsHost = false
	}
	r.HostID = ""
	if len(r.Players) == 0 {
		return
	}

	for _, p := range r.Players {
		if p.IsConnected {
			p.IsHost = true
			r.HostID = p.ID
			return
		}
	}
	r.Players[0].IsHost = true
	r.HostID = r.Players[0].ID
}

// setConnected flips a seat's liveness. A disconnecting host hands the
// room to the next connected player in join order.
func (r *Room) setConnected(id string, connected bool) {
	p := r.playerByID(id)
	if p == nil {
		return
	}
	p.IsConnected = connected
	if !connected && r.HostID == id {
		r.transferHost()
	}
}

func (r *Room) dropFromTurnOrder(id string) {
	if r.Round == nil {
		return
	}
	// Hand the turn on before the seat leaves the rotation.
	successor := ""
	if r.Round.CurrentTurnPlayerID == id {
		successor = r.nextTurnAfter(id)
	}
	order := r.Round.TurnOrder[:0]
	for _, pid := range r.Round.TurnOrder {
		if pid != id {
			order = append(order, pid)
		}
	}
	r.Round.TurnOrder = order
	if successor != "" {
		r.Round.CurrentTurnPlayerID = successor
	}
}

// seatIndex returns the join-order position of a seat, or -1.
func (r *Room) seatIndex(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// startGame deals the first round. Requires at least two seated
// players; the host's seat opens the first round. A finished room may
// be started again, which resets every seat's dice.
func (r *Room) startGame() *gameError {
	if r.Phase != PhaseWaiting && r.Phase != PhaseGameOver {
		return validationError("game has already started")
	}
	if len(r.Players) < minPlayers {
		return validationError("need at least %d players to start", minPlayers)
	}
	for _, p := range r.Players {
		p.DiceCount = r.Settings.StartingDiceCount
	}
	r.WinnerID = ""
	r.rollNewRound(r.HostID)
	return nil
}

// rollNewRound deals fresh hands to every active player and seats the
// opening bid with starterID (or, if that seat is out or gone, the
// next active seat after it in join order). A round is palifico when
// exactly one active player is down to a single die.
func (r *Room) rollNewRound(starterID string) {
	r.Phase = PhaseRolling

	active := r.activePlayers()
	for _, p := range r.Players {
		if p.IsEliminated() {
			p.Hand = nil
			continue
		}
		p.Hand = rollHand(p.DiceCount)
	}

	oneDie := 0
	for _, p := range active {
		if p.DiceCount == 1 {
			oneDie++
		}
	}

	order := r.turnOrderFrom(starterID)

	r.Round = &Round{
		TurnOrder:  order,
		IsPalifico: oneDie == 1,
	}
	if len(order) > 0 {
		r.Round.CurrentTurnPlayerID = order[0]
	}
	r.Phase = PhaseBidding
}

// turnOrderFrom builds the round's rotation: active players in join
// order, rotated so starterID (or the next active seat after it)
// leads.
func (r *Room) turnOrderFrom(starterID string) []string {
	active := r.activePlayers()
	if len(active) == 0 {
		return nil
	}

	start := 0
	if idx := r.seatIndex(starterID); idx >= 0 {
		// Walk seats from starterID until an active one is found.
		for off := 0; off < len(r.Players); off++ {
			p := r.Players[(idx+off)%len(r.Players)]
			if !p.IsEliminated() {
				for i, a := range active {
					if a.ID == p.ID {
						start = i
					}
				}
				break
			}
		}
	}

	order := make([]string, 0, len(active))
	for i := range active {
		order = append(order, active[(start+i)%len(active)].ID)
	}
	return order
}

// nextTurnAfter finds the next seat to act after id: the next
// non-eliminated, connected player in turn order, or failing that the
// next non-eliminated player (the room then waits out the disconnect).
func (r *Room) nextTurnAfter(id string) string {
	order := r.Round.TurnOrder
	at := 0
	for i, pid := range order {
		if pid == id {
			at = i
			break
		}
	}

	var fallback string
	for i := 1; i <= len(order); i++ {
		p := r.playerByID(order[(at+i)%len(order)])
		if p == nil || p.IsEliminated() {
			continue
		}
		if p.IsConnected {
			return p.ID
		}
		if fallback == "" {
			fallback = p.ID
		}
	}
	return fallback
}

// requireTurn validates that a gameplay command arrived from the seat
// whose turn it is, during the bidding phase.
func (r *Room) requireTurn(playerID string) *gameError {
	if r.Phase != PhaseBidding || r.Round == nil {
		return validationError("no round in progress")
	}
	p := r.playerByID(playerID)
	if p == nil {
		return notFoundError("no such player in this room")
	}
	if p.IsEliminated() {
		return validationError("eliminated players cannot act")
	}
	if r.Round.CurrentTurnPlayerID != playerID {
		return validationError("not your turn")
	}
	return nil
}

// applyBid validates and installs a raise, then advances the turn.
func (r *Room) applyBid(playerID string, bid Bid) *gameError {
	if gerr := r.requireTurn(playerID); gerr != nil {
		return gerr
	}
	if !isValidRaise(r.Round.CurrentBid, bid, r.Round.IsPalifico) {
		if r.Round.CurrentBid != nil {
			return validationError("bid %dx%d does not raise %dx%d",
				bid.Count, bid.Value, r.Round.CurrentBid.Count, r.Round.CurrentBid.Value)
		}
		return validationError("bid %dx%d is not a legal opening bid", bid.Count, bid.Value)
	}

	r.Round.CurrentBid = &bid
	r.Round.LastBidderID = playerID
	r.Round.CurrentTurnPlayerID = r.nextTurnAfter(playerID)
	return nil
}

func (r *Room) allHands() [][]int {
	hands := make([][]int, 0, len(r.Players))
	for _, p := range r.Players {
		if len(p.Hand) > 0 {
			hands = append(hands, p.Hand)
		}
	}
	return hands
}

// applyDudo resolves a challenge that the standing bid is false. The
// penalized side loses one die; the loser (or their successor seat)
// opens the next round.
func (r *Room) applyDudo(playerID string) (*roundOutcome, *gameError) {
	if gerr := r.requireTurn(playerID); gerr != nil {
		return nil, gerr
	}
	if r.Round.CurrentBid == nil {
		return nil, validationError("dudo called with no standing bid")
	}

	r.Phase = PhaseResolving
	bid := *r.Round.CurrentBid
	res := resolveDudo(r.allHands(), bid, r.Round.IsPalifico)

	outcome := &roundOutcome{
		Bid:         bid,
		ActualCount: res.actualCount,
	}
	switch {
	case res.bidderLoses && r.Round.LastBidderID != "":
		outcome.LoserID = r.Round.LastBidderID
		outcome.WinnerID = playerID
	case res.bidderLoses:
		// The bidder's seat is gone; the successful challenge costs nobody.
		outcome.WinnerID = playerID
	default:
		outcome.LoserID = playerID
		outcome.WinnerID = r.Round.LastBidderID
	}

	if outcome.LoserID != "" {
		r.loseDie(outcome.LoserID)
		outcome.starterID = outcome.LoserID
	} else {
		outcome.starterID = playerID
	}
	return outcome, nil
}

// applyCalza resolves an exact-match call: the caller regains a die
// (capped at the starting count) when the bid count is exactly right,
// and loses one otherwise. The caller opens the next round.
func (r *Room) applyCalza(playerID string) (*roundOutcome, *gameError) {
	if gerr := r.requireTurn(playerID); gerr != nil {
		return nil, gerr
	}
	if r.Round.CurrentBid == nil {
		return nil, validationError("calza is not a legal opening action")
	}

	r.Phase = PhaseResolving
	bid := *r.Round.CurrentBid
	res := resolveCalza(r.allHands(), bid, r.Round.IsPalifico)

	outcome := &roundOutcome{
		Bid:         bid,
		ActualCount: res.actualCount,
		IsCalza:     true,
		starterID:   playerID,
	}
	if res.callerWins {
		outcome.WinnerID = playerID
		p := r.playerByID(playerID)
		if p.DiceCount < r.Settings.StartingDiceCount {
			p.DiceCount++
		}
	} else {
		outcome.LoserID = playerID
		r.loseDie(playerID)
	}
	return outcome, nil
}

// loseDie decrements a seat's dice, eliminating the player at zero.
func (r *Room) loseDie(playerID string) {
	p := r.playerByID(playerID)
	if p == nil || p.DiceCount == 0 {
		return
	}
	p.DiceCount--
	if p.DiceCount == 0 {
		r.eliminate(playerID)
	}
}

// eliminate zeroes a seat's dice, drops it from the rotation, and ends
// the game when a single active player remains.
func (r *Room) eliminate(playerID string) {
	p := r.playerByID(playerID)
	if p == nil {
		return
	}
	p.DiceCount = 0
	p.Hand = nil
	r.dropFromTurnOrder(playerID)
	r.maybeFinishGame()
}

func (r *Room) maybeFinishGame() {
	if r.Phase == PhaseWaiting || r.Phase == PhaseGameOver {
		return
	}
	active := r.activePlayers()
	if len(active) > 1 {
		return
	}
	r.Phase = PhaseGameOver
	r.Round = nil
	if len(active) == 1 {
		r.WinnerID = active[0].ID
	}
}

// finishResolution closes out a resolved challenge: either the game
// ended during dice accounting, or the next round is dealt
// immediately. Any reveal-display delay is the client's concern.
func (r *Room) finishResolution(outcome *roundOutcome) {
	if r.Phase == PhaseGameOver {
		return
	}
	starter := outcome.starterID
	if p := r.playerByID(starter); p == nil || p.IsEliminated() {
		// Next active seat after the losing seat opens instead.
		starter = r.nextActiveSeatAfter(outcome.starterID)
	}
	r.rollNewRound(starter)
}

// nextActiveSeatAfter walks join order from a (possibly removed or
// eliminated) seat to the next active player.
func (r *Room) nextActiveSeatAfter(id string) string {
	idx := r.seatIndex(id)
	if idx < 0 {
		idx = 0
	}
	for off := 1; off <= len(r.Players); off++ {
		p := r.Players[(idx+off)%len(r.Players)]
		if !p.IsEliminated() {
			return p.ID
		}
	}
	return ""
}

// applySettings merges a partial update. Settings are only editable in
// the lobby, and capacity can never drop below the seated count.
func (r *Room) applySettings(patch SettingsPatch) *gameError {
	if r.Phase != PhaseWaiting {
		return validationError("settings are locked once the game starts")
	}
	if patch.MaxPlayers != nil {
		n := *patch.MaxPlayers
		if n < minPlayers || n > maxPlayers {
			return validationError("maxPlayers must be between %d and %d", minPlayers, maxPlayers)
		}
		if n < len(r.Players) {
			return validationError("maxPlayers cannot drop below the %d seated players", len(r.Players))
		}
		r.Settings.MaxPlayers = n
	}
	if patch.StartingDiceCount != nil {
		n := *patch.StartingDiceCount
		if n < 1 || n > 10 {
			return validationError("startingDiceCount must be between 1 and 10")
		}
		r.Settings.StartingDiceCount = n
		for _, p := range r.Players {
			p.DiceCount = n
		}
	}
	if patch.AllowSpectators != nil {
		r.Settings.AllowSpectators = *patch.AllowSpectators
	}
	return nil
}
