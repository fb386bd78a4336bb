package main

// MessageType identifies the kind of message sent over the wire.
type MessageType string

const (
	// Client -> Server commands
	MsgJoin           MessageType = "JOIN"
	MsgKickPlayer     MessageType = "KICK_PLAYER"
	MsgUpdateSettings MessageType = "UPDATE_SETTINGS"
	MsgStartGame      MessageType = "START_GAME"
	MsgBid            MessageType = "BID"
	MsgDudo           MessageType = "DUDO"
	MsgCalza          MessageType = "CALZA"

	// Server -> Client messages
	MsgSessionInfo MessageType = "SESSION_INFO"
	MsgRoomState   MessageType = "ROOM_STATE"
	MsgYourHand    MessageType = "YOUR_HAND"
	MsgRoundResult MessageType = "ROUND_RESULT"
	MsgKicked      MessageType = "KICKED"
	MsgError       MessageType = "ERROR"
)

// ClientMessage is the single client->server envelope; fields beyond
// Type and Timestamp are populated per command.
type ClientMessage struct {
	Type      MessageType    `json:"type"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Name      string         `json:"name,omitempty"`     // JOIN
	PlayerID  string         `json:"playerId,omitempty"` // KICK_PLAYER
	Settings  *SettingsPatch `json:"settings,omitempty"` // UPDATE_SETTINGS
	Bid       *Bid           `json:"bid,omitempty"`      // BID
}

// SessionInfoMessage is sent immediately on attach so the client knows
// what identity and role this connection holds.
type SessionInfoMessage struct {
	Type        MessageType `json:"type"`
	PlayerID    string      `json:"playerId"`
	RoomCode    string      `json:"roomCode"`
	Name        string      `json:"name,omitempty"`
	IsExisting  bool        `json:"isExisting"`
	IsHost      bool        `json:"isHost"`
	IsSpectator bool        `json:"isSpectator"`
}

// PlayerState is the public view of one seat; hands never appear here.
type PlayerState struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	DiceCount    int    `json:"diceCount"`
	IsHost       bool   `json:"isHost"`
	IsConnected  bool   `json:"isConnected"`
	IsEliminated bool   `json:"isEliminated"`
}

// RoundState is the public view of the round in progress.
type RoundState struct {
	CurrentBid          *Bid     `json:"currentBid,omitempty"`
	LastBidderID        string   `json:"lastBidderId,omitempty"`
	TurnOrder           []string `json:"turnOrder"`
	CurrentTurnPlayerID string   `json:"currentTurnPlayerId"`
	IsPalifico          bool     `json:"isPalifico"`
	TotalDice           int      `json:"totalDice"`
}

// RoomStateMessage is the authoritative snapshot broadcast after every
// accepted mutation.
type RoomStateMessage struct {
	Type     MessageType   `json:"type"`
	Code     string        `json:"code"`
	Phase    RoomPhase     `json:"phase"`
	HostID   string        `json:"hostId"`
	Settings Settings      `json:"settings"`
	Players  []PlayerState `json:"players"`
	Round    *RoundState   `json:"round,omitempty"`
	WinnerID string        `json:"winnerId,omitempty"`
}

// YourHandMessage is private to its owner.
type YourHandMessage struct {
	Type MessageType `json:"type"`
	Dice []int       `json:"dice"`
}

// RoundResultMessage is broadcast when a dudo or calza resolves.
type RoundResultMessage struct {
	Type        MessageType `json:"type"`
	Bid         Bid         `json:"bid"`
	ActualCount int         `json:"actualCount"`
	LoserID     string      `json:"loserId,omitempty"`
	WinnerID    string      `json:"winnerId,omitempty"`
	IsCalza     bool        `json:"isCalza"`
}

// KickedMessage is the parting notice sent to a removed player.
type KickedMessage struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// ErrorMessage carries a rejected command's reason code back to the
// offending client only.
type ErrorMessage struct {
	Type   MessageType `json:"type"`
	Code   errorCode   `json:"code"`
	Reason string      `json:"reason"`
}

func errorMessage(gerr *gameError) ErrorMessage {
	return ErrorMessage{Type: MsgError, Code: gerr.code, Reason: gerr.reason}
}

// snapshotRoom builds the broadcast view of a room, stripped of hands.
func snapshotRoom(r *Room) RoomStateMessage {
	msg := RoomStateMessage{
		Type:     MsgRoomState,
		Code:     r.Code,
		Phase:    r.Phase,
		HostID:   r.HostID,
		Settings: r.Settings,
		Players:  make([]PlayerState, 0, len(r.Players)),
		WinnerID: r.WinnerID,
	}

	for _, p := range r.Players {
		msg.Players = append(msg.Players, PlayerState{
			ID:           p.ID,
			Name:         p.Name,
			Color:        p.Color,
			DiceCount:    p.DiceCount,
			IsHost:       p.IsHost,
			IsConnected:  p.IsConnected,
			IsEliminated: p.IsEliminated(),
		})
	}

	if r.Round != nil {
		msg.Round = &RoundState{
			CurrentBid:          r.Round.CurrentBid,
			LastBidderID:        r.Round.LastBidderID,
			TurnOrder:           r.Round.TurnOrder,
			CurrentTurnPlayerID: r.Round.CurrentTurnPlayerID,
			IsPalifico:          r.Round.IsPalifico,
			TotalDice:           r.totalDice(),
		}
	}

	return msg
}
