// Perudo room actor.
//
// Each room code owns one Hub. The hub's run loop is the only writer of
// its Room aggregate: socket attach/detach events, gameplay commands,
// and internal timers all drain through the same select, so commands
// are applied strictly in arrival order and a stale socket can never
// land a command after its identity has been rebound elsewhere.
//
// Features:
// - WebSockets per room code: /play/:code and /play/:code/ws
// - Durable player identity by cookie; reconnects rebind the same seat
// - New socket for a known identity closes the old one and takes over
// - First seated player becomes host; host transfers by join order
// - Host-only: kick, settings edits, starting the game
// - Private hand delivery after every roll and on reconnect
// - Random 6-char room codes via crypto/rand, with collision check
// - Rooms auto-reaped after a configurable idle timeout
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Client is one attached message sink: a websocket for humans, or an
// in-process pump for gauntlet opponents.
type Client struct {
	conn      *websocket.Conn
	send      chan any
	playerID  string
	spectator bool
}

type inbound struct {
	client *Client
	msg    ClientMessage
}

type internalEventKind int

const (
	eventReapSeat internalEventKind = iota
	eventSkipTurn
	eventShutdown
)

type internalEvent struct {
	kind     internalEventKind
	playerID string
}

type Hub struct {
	cfg  *Config
	room *Room

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan inbound
	events   chan internalEvent

	// done closes when the run loop exits; producers select on it so
	// nothing ever blocks on a mailbox with no reader.
	done chan struct{}

	// mu guards lastActive, which the manager's reaper reads from
	// outside the run loop. Everything else is loop-owned.
	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time

	// gauntlet, when set, reshapes the lobby before each deal.
	gauntlet *gauntletRun
}

func newHub(cfg *Config, code string) *Hub {
	now := time.Now()
	return &Hub{
		cfg: cfg,
		room: newRoom(code, Settings{
			MaxPlayers:        maxPlayers,
			StartingDiceCount: cfg.startingDice,
		}),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan inbound, 16),
		events:     make(chan internalEvent, 16),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.touch()
			h.handleAttach(c)

		case c := <-h.unreg:
			h.touch()
			h.handleDetach(c)

		case in := <-h.commands:
			h.touch()
			h.handleCommand(in)

		case ev := <-h.events:
			switch ev.kind {
			case eventReapSeat:
				h.handleReapSeat(ev.playerID)
			case eventSkipTurn:
				h.handleSkipTurn(ev.playerID)
			case eventShutdown:
				h.handleShutdown()
				return
			}
		}
	}
}

// stop asks the run loop to tear the room down. Shutdown happens on the
// loop itself, so it cannot race gameplay commands; if the loop has
// already exited the request is a no-op.
func (h *Hub) stop() {
	select {
	case h.events <- internalEvent{kind: eventShutdown}:
	case <-h.done:
	}
}

// handleShutdown is the loop's final act: once done closes, producers
// stop feeding the mailbox, and every client feed is closed out.
func (h *Hub) handleShutdown() {
	close(h.done)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// send delivers to one client without ever blocking the loop; a client
// that cannot keep up is dropped. A client already dropped is skipped,
// since its send channel is closed.
func (h *Hub) sendTo(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// dropClient detaches a socket the room has refused or removed.
func (h *Hub) dropClient(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		h.sendTo(client, msg)
	}
}

func (h *Hub) broadcastState() {
	h.broadcast(snapshotRoom(h.room))
}

// sendHands delivers each seated player's private hand to their own
// connection only.
func (h *Hub) sendHands() {
	for client := range h.clients {
		p := h.room.playerByID(client.playerID)
		if p == nil || len(p.Hand) == 0 {
			continue
		}
		h.sendTo(client, YourHandMessage{Type: MsgYourHand, Dice: p.Hand})
	}
}

func (h *Hub) sendError(c *Client, gerr *gameError) {
	h.sendTo(c, errorMessage(gerr))
}

// clientFor finds the live connection currently bound to an identity.
func (h *Hub) clientFor(playerID string) *Client {
	for client := range h.clients {
		if client.playerID == playerID {
			return client
		}
	}
	return nil
}

// handleAttach binds a connection to the room. A known identity with a
// live socket is a takeover: the old socket is closed and the seat
// rebinds to the new one. A known identity without one is a reconnect.
func (h *Hub) handleAttach(c *Client) {
	if old := h.clientFor(c.playerID); old != nil && old != c {
		delete(h.clients, old)
		close(old.send)
		if old.conn != nil {
			_ = old.conn.Close()
		}
	}

	seat := h.room.playerByID(c.playerID)
	if seat == nil && h.room.Phase != PhaseWaiting {
		if !h.room.Settings.AllowSpectators {
			// Refused outright: the socket never joins the broadcast
			// set, so it hears the reason and nothing else.
			c.send <- errorMessage(capacityError("game already in progress"))
			close(c.send)
			if c.conn != nil {
				_ = c.conn.Close()
			}
			return
		}
		c.spectator = true
	}

	h.clients[c] = true

	if seat != nil {
		h.room.setConnected(c.playerID, true)
		logf(h.cfg, "ROOMS: %q reconnected to %s", seat.Name, h.room.Code)
	}

	info := SessionInfoMessage{
		Type:        MsgSessionInfo,
		PlayerID:    c.playerID,
		RoomCode:    h.room.Code,
		IsExisting:  seat != nil,
		IsHost:      seat != nil && seat.IsHost,
		IsSpectator: c.spectator,
	}
	if seat != nil {
		info.Name = seat.Name
	}
	h.sendTo(c, info)

	if seat != nil {
		// Reconnects get their hand back before anyone else acts.
		if len(seat.Hand) > 0 {
			h.sendTo(c, YourHandMessage{Type: MsgYourHand, Dice: seat.Hand})
		}
		h.broadcastState()
	} else {
		h.sendTo(c, snapshotRoom(h.room))
	}
}

// handleDetach marks the seat disconnected unless the identity has
// already been rebound to a newer socket.
func (h *Hub) handleDetach(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	if c.playerID == "" || h.clientFor(c.playerID) != nil {
		return
	}

	seat := h.room.playerByID(c.playerID)
	if seat == nil {
		return
	}

	h.room.setConnected(c.playerID, false)
	logf(h.cfg, "ROOMS: %q disconnected from %s", seat.Name, h.room.Code)

	h.armTurnSkip()
	h.broadcastState()

	if h.cfg.playerTimeout > 0 {
		go h.scheduleSeatReap(c.playerID, h.cfg.playerTimeout)
	}
}

// scheduleSeatReap enqueues a seat release after d unless the identity
// reconnects first. The release itself runs on the hub loop.
func (h *Hub) scheduleSeatReap(playerID string, d time.Duration) {
	time.Sleep(d)
	select {
	case h.events <- internalEvent{kind: eventReapSeat, playerID: playerID}:
	case <-h.done:
	}
}

func (h *Hub) handleReapSeat(playerID string) {
	if h.clientFor(playerID) != nil {
		return
	}
	seat := h.room.playerByID(playerID)
	if seat == nil || seat.IsConnected {
		return
	}

	logf(h.cfg, "ROOMS: Releasing %q's seat in %s", seat.Name, h.room.Code)
	h.room.removePlayer(playerID)
	h.touch()
	h.broadcastState()
}

// armTurnSkip starts the optional auto-skip clock when the turn is
// held by a disconnected player. Default policy is to wait forever.
func (h *Hub) armTurnSkip() {
	if h.cfg.turnSkipTimeout <= 0 {
		return
	}
	if h.room.Phase != PhaseBidding || h.room.Round == nil {
		return
	}
	current := h.room.playerByID(h.room.Round.CurrentTurnPlayerID)
	if current == nil || current.IsConnected {
		return
	}

	playerID := current.ID
	go func() {
		time.Sleep(h.cfg.turnSkipTimeout)
		select {
		case h.events <- internalEvent{kind: eventSkipTurn, playerID: playerID}:
		case <-h.done:
		}
	}()
}

func (h *Hub) handleSkipTurn(playerID string) {
	if h.room.Phase != PhaseBidding || h.room.Round == nil {
		return
	}
	if h.room.Round.CurrentTurnPlayerID != playerID {
		return
	}
	p := h.room.playerByID(playerID)
	if p == nil || p.IsConnected {
		return
	}

	next := h.room.nextTurnAfter(playerID)
	if next == "" || next == playerID {
		return
	}

	logf(h.cfg, "GAME: Skipping disconnected %q's turn in %s", p.Name, h.room.Code)
	h.room.Round.CurrentTurnPlayerID = next
	h.broadcastState()
	h.armTurnSkip()
}

func (h *Hub) handleCommand(in inbound) {
	c := in.client
	msg := in.msg

	if c.playerID == "" {
		return
	}

	switch msg.Type {
	case MsgJoin:
		h.handleJoin(c, msg)
	case MsgKickPlayer, MsgUpdateSettings, MsgStartGame:
		h.handleHostCommand(c, msg)
	case MsgBid:
		h.handleBid(c, msg)
	case MsgDudo:
		h.handleDudo(c)
	case MsgCalza:
		h.handleCalza(c)
	default:
		// ignore unknown types
	}
}

// handleJoin seats a new identity, or re-acknowledges an existing one.
func (h *Hub) handleJoin(c *Client, msg ClientMessage) {
	if seat := h.room.playerByID(c.playerID); seat != nil {
		// Already seated; resend private state rather than double-join.
		if len(seat.Hand) > 0 {
			h.sendTo(c, YourHandMessage{Type: MsgYourHand, Dice: seat.Hand})
		}
		h.sendTo(c, snapshotRoom(h.room))
		return
	}

	if c.spectator {
		h.sendTo(c, snapshotRoom(h.room))
		return
	}

	p, gerr := h.room.addPlayer(c.playerID, msg.Name)
	if gerr != nil {
		h.sendError(c, gerr)
		if gerr.code == errCapacity {
			// A refused joiner stays unconnected to the room.
			h.dropClient(c)
		}
		return
	}
	logf(h.cfg, "GAME: Player %q joined %s", p.Name, h.room.Code)

	h.sendTo(c, SessionInfoMessage{
		Type:       MsgSessionInfo,
		PlayerID:   p.ID,
		RoomCode:   h.room.Code,
		Name:       p.Name,
		IsExisting: true,
		IsHost:     p.IsHost,
	})
	h.broadcastState()
}

// handleHostCommand covers the host-only surface: kicks, settings
// edits, and starting the game. Anyone else is told no.
func (h *Hub) handleHostCommand(c *Client, msg ClientMessage) {
	if h.room.HostID == "" || c.playerID != h.room.HostID {
		h.sendError(c, authorizationError("only the host may do that"))
		log.Printf("%s | DENIED: Non-host %s attempted %s in %s",
			time.Now().Format(logDate), c.playerID, msg.Type, h.room.Code)
		return
	}

	switch msg.Type {
	case MsgKickPlayer:
		h.handleKick(c, msg.PlayerID)

	case MsgUpdateSettings:
		if msg.Settings == nil {
			h.sendError(c, validationError("no settings provided"))
			return
		}
		if gerr := h.room.applySettings(*msg.Settings); gerr != nil {
			h.sendError(c, gerr)
			return
		}
		h.broadcastState()

	case MsgStartGame:
		if gerr := h.startGame(); gerr != nil {
			h.sendError(c, gerr)
			return
		}
	}
}

// startGame deals the first round and hands out private dice. The
// gauntlet hook may reshape the lobby first.
func (h *Hub) startGame() *gameError {
	if h.gauntlet != nil {
		h.gauntlet.prepare(h)
	}
	if gerr := h.room.startGame(); gerr != nil {
		return gerr
	}
	logf(h.cfg, "GAME: Started %s with %d players", h.room.Code, len(h.room.Players))

	h.broadcastState()
	h.sendHands()
	h.armTurnSkip()
	return nil
}

func (h *Hub) handleKick(c *Client, targetID string) {
	if targetID == "" || targetID == c.playerID {
		h.sendError(c, validationError("no kickable player specified"))
		return
	}
	target := h.room.playerByID(targetID)
	if target == nil {
		h.sendError(c, notFoundError("no such player in this room"))
		return
	}

	logf(h.cfg, "GAME: %q kicked from %s", target.Name, h.room.Code)
	h.room.removePlayer(targetID)

	if victim := h.clientFor(targetID); victim != nil {
		h.sendTo(victim, KickedMessage{Type: MsgKicked, Reason: "You have been removed by the host."})
		h.dropClient(victim)
	}

	h.armTurnSkip()
	h.broadcastState()
	h.finishIfOver()
}

func (h *Hub) handleBid(c *Client, msg ClientMessage) {
	if msg.Bid == nil {
		h.sendError(c, validationError("no bid provided"))
		return
	}
	if gerr := h.room.applyBid(c.playerID, *msg.Bid); gerr != nil {
		h.sendError(c, gerr)
		return
	}

	h.broadcastState()
	h.armTurnSkip()
}

func (h *Hub) handleDudo(c *Client) {
	outcome, gerr := h.room.applyDudo(c.playerID)
	if gerr != nil {
		h.sendError(c, gerr)
		return
	}
	h.resolveRound(outcome)
}

func (h *Hub) handleCalza(c *Client) {
	outcome, gerr := h.room.applyCalza(c.playerID)
	if gerr != nil {
		h.sendError(c, gerr)
		return
	}
	h.resolveRound(outcome)
}

// resolveRound publishes the reveal, then immediately deals the next
// round or finishes the game. Clients animate the pause themselves.
func (h *Hub) resolveRound(outcome *roundOutcome) {
	h.broadcast(RoundResultMessage{
		Type:        MsgRoundResult,
		Bid:         outcome.Bid,
		ActualCount: outcome.ActualCount,
		LoserID:     outcome.LoserID,
		WinnerID:    outcome.WinnerID,
		IsCalza:     outcome.IsCalza,
	})

	h.room.finishResolution(outcome)
	h.broadcastState()

	if h.room.Phase == PhaseGameOver {
		h.finishIfOver()
		return
	}

	h.sendHands()
	h.armTurnSkip()
}

func (h *Hub) finishIfOver() {
	if h.room.Phase != PhaseGameOver {
		return
	}
	if winner := h.room.playerByID(h.room.WinnerID); winner != nil {
		logf(h.cfg, "GAME: %q won in %s", winner.Name, h.room.Code)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "perudo_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// RoomManager holds the set of hubs keyed by room code, so each
// /play/:code is its own isolated game.
type RoomManager struct {
	mu   sync.Mutex
	cfg  *Config
	hubs map[string]*Hub
}

func newRoomManager(cfg *Config) *RoomManager {
	rm := &RoomManager{
		cfg:  cfg,
		hubs: make(map[string]*Hub),
	}
	if cfg.roomTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

// create mints a collision-checked room code and starts its hub.
func (rm *RoomManager) create() *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for {
		code := randomRoomCode()
		if _, exists := rm.hubs[code]; exists {
			continue
		}
		hub := newHub(rm.cfg, code)
		rm.hubs[code] = hub
		go hub.run()
		return hub
	}
}

// lookup resolves a case-normalized room code. Unknown codes are not
// auto-created; joining one is a not-found refusal.
func (rm *RoomManager) lookup(code string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.hubs[normalizeRoomCode(code)]
}

// reaperLoop periodically removes hubs idle longer than roomTimeout.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.cfg.roomTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rm.cfg.roomTimeout)

		rm.mu.Lock()
		for code, hub := range rm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				logf(rm.cfg, "ROOMS: Reaping idle room %s", code)
				delete(rm.hubs, code)
				go hub.stop()
			}
		}
		rm.mu.Unlock()
	}
}

// serveRoomWS upgrades a socket and attaches it to the room's hub.
func serveRoomWS(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub := rm.lookup(ps.ByName("code"))
		if hub == nil {
			http.Error(w, "unknown room code", http.StatusNotFound)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		// Terminal clients carry their identity as a query parameter
		// instead of a cookie.
		if q := r.URL.Query().Get("player"); q != "" {
			playerID = q
		}
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			// Reaped between lookup and attach.
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case MsgJoin, MsgKickPlayer, MsgUpdateSettings, MsgStartGame, MsgBid, MsgDudo, MsgCalza:
			select {
			case h.commands <- inbound{client: c, msg: msg}:
			case <-h.done:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code for the current room URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /play by minting a room and redirecting
// to its landing page.
func redirectNewRoom(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		hub := rm.create()
		logf(cfg, "ROOMS: Created room %s%s/%s", cfg.prefix, path, hub.room.Code)
		http.Redirect(w, r, cfg.prefix+path+"/"+hub.room.Code, http.StatusTemporaryRedirect)
	}
}

// registerPerudoGame sets up routes so that:
//   - $path              → redirects to a new room (6-char code)
//   - $path/:code        → HTML landing page
//   - $path/:code/ws     → WebSocket for that room
//   - $path/:code/qr     → PNG QR code for that room URL
//   - /gauntlet          → new solitaire ladder room
func registerPerudoGame(cfg *Config, path string, mux *httprouter.Router) *RoomManager {
	rm := newRoomManager(cfg)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, rm))
	mux.GET(cfg.prefix+path+"/:code", serveRoomPage(cfg))
	mux.GET(cfg.prefix+path+"/:code/ws", serveRoomWS(cfg, rm))
	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)

	mux.GET(cfg.prefix+"/gauntlet", redirectGauntlet(cfg, path, rm))

	return rm
}
