// Gauntlet mode: a solitaire ladder against scripted opponents.
//
// Opponents are ordinary room clients whose "socket" is an in-process
// pump: they consume the same broadcasts everyone else does and feed
// BID/DUDO/CALZA commands back through the same hub mailbox, so the
// room actor and the rule engine carry no opponent-specific branches.

package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const (
	gauntletMaxRung = 5
	botThinkTime    = 700 * time.Millisecond
)

var botRoster = []string{
	"Rusty Pete",
	"Salty Anne",
	"Old Bartolo",
	"Mad Morgana",
	"Grim Hector",
}

type gauntletRun struct {
	rung    int
	humanID string
	botIDs  []string
}

// redirectGauntlet mints a ladder room and sends the player to its
// landing page; the first seated player climbs the ladder.
func redirectGauntlet(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		hub := rm.create()
		hub.gauntlet = &gauntletRun{rung: 1}
		logf(cfg, "ROOMS: Created gauntlet room %s", hub.room.Code)
		http.Redirect(w, r, cfg.prefix+path+"/"+hub.room.Code, http.StatusTemporaryRedirect)
	}
}

// prepare reshapes the lobby for the next rung. Runs on the hub loop,
// immediately before the room deals. Winning a rung adds an opponent;
// losing resets the ladder.
func (g *gauntletRun) prepare(h *Hub) {
	room := h.room

	if g.humanID == "" {
		g.humanID = room.HostID
	}

	if room.Phase == PhaseGameOver {
		if room.WinnerID == g.humanID && g.rung < gauntletMaxRung {
			g.rung++
		} else if room.WinnerID != g.humanID {
			g.rung = 1
		}
		room.Phase = PhaseWaiting
	}

	want := g.rung
	if room.Settings.MaxPlayers-1 < want {
		want = room.Settings.MaxPlayers - 1
	}

	for len(g.botIDs) > want {
		last := g.botIDs[len(g.botIDs)-1]
		g.botIDs = g.botIDs[:len(g.botIDs)-1]
		if c := h.clientFor(last); c != nil {
			delete(h.clients, c)
			close(c.send)
		}
		room.removePlayer(last)
	}

	for len(g.botIDs) < want {
		name := botRoster[len(g.botIDs)%len(botRoster)]
		b := newBot(h, uuid.NewString(), name)
		if _, gerr := room.addPlayer(b.id, name); gerr != nil {
			break
		}
		g.botIDs = append(g.botIDs, b.id)
		h.clients[b.client] = true
		go b.loop()
	}
}

type bot struct {
	hub    *Hub
	client *Client
	id     string
	name   string
	rng    *rand.Rand
}

func newBot(h *Hub, id, name string) *bot {
	return &bot{
		hub: h,
		client: &Client{
			send:     make(chan any, 32),
			playerID: id,
		},
		id:   id,
		name: name,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// loop drains the bot's message feed. When a snapshot shows the bot on
// turn, a decision is scheduled off-loop so broadcasts never stall.
func (b *bot) loop() {
	var hand []int
	pending := ""

	for msg := range b.client.send {
		switch m := msg.(type) {
		case YourHandMessage:
			hand = m.Dice
			pending = ""

		case RoomStateMessage:
			if m.Phase != PhaseBidding || m.Round == nil {
				pending = ""
				continue
			}
			if m.Round.CurrentTurnPlayerID != b.id {
				continue
			}
			// One decision per standing bid, not per broadcast.
			key := turnKey(m.Round)
			if key == pending {
				continue
			}
			pending = key

			decision := b.decide(hand, *m.Round)
			go func(cmd ClientMessage) {
				time.Sleep(botThinkTime)
				select {
				case b.hub.commands <- inbound{client: b.client, msg: cmd}:
				case <-b.hub.done:
				}
			}(decision)
		}
	}
}

func turnKey(rs *RoundState) string {
	if rs.CurrentBid == nil {
		return "open"
	}
	return fmt.Sprintf("%dx%d", rs.CurrentBid.Count, rs.CurrentBid.Value)
}

// decide picks the bot's action from its own hand and the public
// round: raise while the standing bid looks plausible, call dudo once
// it overshoots expectation, and occasionally calza an exact-looking
// count.
func (b *bot) decide(hand []int, rs RoundState) ClientMessage {
	now := time.Now().UnixMilli()
	jokersWild := !rs.IsPalifico
	unseen := rs.TotalDice - len(hand)

	expected := func(value int) float64 {
		mine := countMatches([][]int{hand}, value, jokersWild)
		perDie := 1.0 / 6.0
		if jokersWild && value != 1 {
			perDie = 1.0 / 3.0
		}
		return float64(mine) + float64(unseen)*perDie
	}

	bestFace := func() int {
		best, bestScore := 2, -1.0
		for v := 2; v <= 6; v++ {
			if s := expected(v); s > bestScore {
				best, bestScore = v, s
			}
		}
		return best
	}

	if rs.CurrentBid == nil {
		face := bestFace()
		count := int(expected(face))
		if count < 1 {
			count = 1
		}
		return ClientMessage{Type: MsgBid, Timestamp: now, Bid: &Bid{Count: count, Value: face}}
	}

	cur := *rs.CurrentBid
	exp := expected(cur.Value)

	if float64(cur.Count) > exp+1 {
		return ClientMessage{Type: MsgDudo, Timestamp: now}
	}
	if float64(cur.Count) == exp && b.rng.Intn(4) == 0 {
		return ClientMessage{Type: MsgCalza, Timestamp: now}
	}

	raise := Bid{Count: cur.Count, Value: cur.Value + 1}
	if raise.Value > 6 {
		raise = Bid{Count: cur.Count + 1, Value: bestFace()}
	}
	if rs.IsPalifico && raise.Value == 1 {
		raise.Value = 2
	}
	if float64(raise.Count) > expected(raise.Value)+2 {
		return ClientMessage{Type: MsgDudo, Timestamp: now}
	}
	return ClientMessage{Type: MsgBid, Timestamp: now, Bid: &raise}
}
