package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16384
)

// DisconnectedMsg is sent to the TUI when the connection drops.
type DisconnectedMsg struct {
	Err error
}

// wsClient manages the WebSocket connection to the game server and
// feeds decoded server messages into the bubbletea program.
type wsClient struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	sendCh  chan []byte
	program *tea.Program
	done    chan struct{}
	closed  bool
}

func dialRoom(serverURL string) (*wsClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return nil, err
	}

	return &wsClient{
		conn:   conn,
		sendCh: make(chan []byte, 256),
		done:   make(chan struct{}),
	}, nil
}

func (c *wsClient) setProgram(p *tea.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.program = p
}

func (c *wsClient) start() {
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) send(msg ClientMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("client marshal error: %v", err)
		return
	}
	select {
	case c.sendCh <- data:
	default:
		log.Printf("client send channel full, dropping message")
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// readPump decodes server messages by their type tag and hands each to
// the bubbletea program as its concrete struct.
func (c *wsClient) readPump() {
	defer func() {
		c.mu.Lock()
		p := c.program
		c.mu.Unlock()
		if p != nil {
			p.Send(DisconnectedMsg{})
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("readPump error: %v", err)
			}
			return
		}

		var tag struct {
			Type MessageType `json:"type"`
		}
		if err := json.Unmarshal(message, &tag); err != nil {
			continue
		}

		var decoded tea.Msg
		switch tag.Type {
		case MsgSessionInfo:
			var m SessionInfoMessage
			if json.Unmarshal(message, &m) == nil {
				decoded = m
			}
		case MsgRoomState:
			var m RoomStateMessage
			if json.Unmarshal(message, &m) == nil {
				decoded = m
			}
		case MsgYourHand:
			var m YourHandMessage
			if json.Unmarshal(message, &m) == nil {
				decoded = m
			}
		case MsgRoundResult:
			var m RoundResultMessage
			if json.Unmarshal(message, &m) == nil {
				decoded = m
			}
		case MsgKicked:
			var m KickedMessage
			if json.Unmarshal(message, &m) == nil {
				decoded = m
			}
		case MsgError:
			var m ErrorMessage
			if json.Unmarshal(message, &m) == nil {
				decoded = m
			}
		}
		if decoded == nil {
			continue
		}

		c.mu.Lock()
		p := c.program
		c.mu.Unlock()
		if p != nil {
			p.Send(decoded)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// loadIdentity returns this machine's durable player identity,
// minting and persisting one on first use. Reconnecting with the same
// identity reclaims the same seat.
func loadIdentity() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return uuid.NewString()
	}
	path := filepath.Join(dir, "perudo", "identity")

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		_ = os.WriteFile(path, []byte(id+"\n"), 0o600)
	}
	return id
}

func newClientCmd() *cobra.Command {
	var (
		server string
		room   string
		name   string
	)

	cmd := &cobra.Command{
		Use:           "client",
		Short:         "Join a room from the terminal.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if room == "" && !strings.Contains(server, "/play/") {
				return fmt.Errorf("--room is required")
			}
			if name == "" {
				name = "Player"
			}

			identity := loadIdentity()

			wsURL := server
			if !strings.Contains(wsURL, "/play/") {
				wsURL = strings.TrimSuffix(wsURL, "/") + "/play/" + normalizeRoomCode(room) + "/ws"
			}
			wsURL += "?player=" + url.QueryEscape(identity)

			client, err := dialRoom(wsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
			}
			defer client.close()

			p := tea.NewProgram(newTuiModel(name, identity, client), tea.WithAltScreen())
			client.setProgram(p)
			client.start()

			_, err = p.Run()
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&server, "server", "ws://localhost:8080", "server base URL, or a full ws:// room URL")
	fs.StringVar(&room, "room", "", "room code to join")
	fs.StringVar(&name, "name", "", "player name (2-12 characters)")

	return cmd
}
