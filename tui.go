package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("51"))

	turnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	dieStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("88")).
			Padding(0, 1).
			MarginRight(1)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	winnerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46"))

	tuiColors = map[string]string{
		"red":    "196",
		"orange": "208",
		"yellow": "226",
		"green":  "46",
		"blue":   "39",
		"purple": "201",
	}
)

type tuiModel struct {
	client   *wsClient
	name     string
	playerID string

	joined      bool
	isHost      bool
	isSpectator bool

	state      *RoomStateMessage
	hand       []int
	lastResult *RoundResultMessage
	statusText string
	bidInput   string

	disconnected bool
	kicked       string
}

func newTuiModel(name, playerID string, client *wsClient) tuiModel {
	return tuiModel{
		client:   client,
		name:     name,
		playerID: playerID,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SessionInfoMessage:
		m.isHost = msg.IsHost
		m.isSpectator = msg.IsSpectator
		if msg.IsExisting {
			m.joined = true
		} else if !m.isSpectator && !m.joined {
			m.client.send(ClientMessage{Type: MsgJoin, Name: m.name})
		}
		return m, nil

	case RoomStateMessage:
		m.state = &msg
		for _, p := range msg.Players {
			if p.ID == m.playerID {
				m.joined = true
				m.isHost = p.IsHost
			}
		}
		if msg.Phase == PhaseWaiting {
			m.lastResult = nil
		}
		return m, nil

	case YourHandMessage:
		m.hand = msg.Dice
		return m, nil

	case RoundResultMessage:
		m.lastResult = &msg
		return m, nil

	case ErrorMessage:
		m.statusText = msg.Reason
		return m, nil

	case KickedMessage:
		m.kicked = msg.Reason
		return m, tea.Quit

	case DisconnectedMsg:
		m.disconnected = true
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m tuiModel) myTurn() bool {
	return m.state != nil &&
		m.state.Phase == PhaseBidding &&
		m.state.Round != nil &&
		m.state.Round.CurrentTurnPlayerID == m.playerID
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "s":
		if m.isHost && m.state != nil &&
			(m.state.Phase == PhaseWaiting || m.state.Phase == PhaseGameOver) {
			m.statusText = ""
			m.client.send(ClientMessage{Type: MsgStartGame})
		}
		return m, nil

	case "d":
		if m.myTurn() {
			m.statusText = ""
			m.client.send(ClientMessage{Type: MsgDudo})
		}
		return m, nil

	case "c":
		if m.myTurn() {
			m.statusText = ""
			m.client.send(ClientMessage{Type: MsgCalza})
		}
		return m, nil

	case "backspace":
		if len(m.bidInput) > 0 {
			m.bidInput = m.bidInput[:len(m.bidInput)-1]
		}
		return m, nil

	case "enter":
		if !m.myTurn() {
			return m, nil
		}
		bid, err := parseBid(m.bidInput)
		if err != nil {
			m.statusText = err.Error()
			return m, nil
		}
		m.statusText = ""
		m.bidInput = ""
		m.client.send(ClientMessage{Type: MsgBid, Bid: &bid})
		return m, nil
	}

	if len(key) == 1 && (key[0] == 'x' || (key[0] >= '0' && key[0] <= '9')) && len(m.bidInput) < 5 {
		m.bidInput += key
	}
	return m, nil
}

// parseBid reads "COUNTxVALUE", e.g. "3x4" for three fours.
func parseBid(input string) (Bid, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(input)), "x", 2)
	if len(parts) != 2 {
		return Bid{}, fmt.Errorf("enter a bid as COUNTxVALUE, e.g. 3x4")
	}
	count, err1 := strconv.Atoi(parts[0])
	value, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return Bid{}, fmt.Errorf("enter a bid as COUNTxVALUE, e.g. 3x4")
	}
	return Bid{Count: count, Value: value}, nil
}

func (m tuiModel) View() string {
	if m.kicked != "" {
		return errStyle.Render(m.kicked) + "\n"
	}
	if m.disconnected {
		return errStyle.Render("Connection lost.") + "\n"
	}
	if m.state == nil {
		return dimStyle.Render("Connecting...") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Perudo — room "+m.state.Code) + "\n\n")

	sb.WriteString(m.renderPlayers())
	sb.WriteString("\n")

	switch m.state.Phase {
	case PhaseWaiting:
		sb.WriteString(m.renderLobby())
	case PhaseBidding, PhaseRolling, PhaseResolving:
		sb.WriteString(m.renderRound())
	case PhaseGameOver:
		sb.WriteString(m.renderGameOver())
	}

	if m.statusText != "" {
		sb.WriteString("\n" + errStyle.Render(m.statusText) + "\n")
	}
	sb.WriteString("\n" + dimStyle.Render("q: quit") + "\n")

	return sb.String()
}

func (m tuiModel) renderPlayers() string {
	var sb strings.Builder
	for _, p := range m.state.Players {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(tuiColors[p.Color]))

		line := fmt.Sprintf("%-12s %s", p.Name, strings.Repeat("⚄ ", p.DiceCount))
		switch {
		case p.IsEliminated:
			line = dimStyle.Render(fmt.Sprintf("%-12s out", p.Name))
		case !p.IsConnected:
			line = dimStyle.Render(line + " (away)")
		default:
			line = style.Render(line)
		}

		marks := ""
		if p.IsHost {
			marks += " ♔"
		}
		if p.ID == m.playerID {
			marks += " (you)"
		}
		if m.state.Round != nil && m.state.Round.CurrentTurnPlayerID == p.ID {
			marks += turnStyle.Render(" ◀")
		}
		sb.WriteString(line + marks + "\n")
	}
	return sb.String()
}

func (m tuiModel) renderLobby() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Waiting for players (%d/%d)...\n",
		len(m.state.Players), m.state.Settings.MaxPlayers))
	if m.isHost && len(m.state.Players) >= minPlayers {
		sb.WriteString(turnStyle.Render("Press s to start the game.") + "\n")
	}
	return sb.String()
}

func (m tuiModel) renderRound() string {
	var sb strings.Builder
	round := m.state.Round

	if m.lastResult != nil {
		sb.WriteString(m.renderResult())
	}

	if round != nil {
		if round.IsPalifico {
			sb.WriteString(turnStyle.Render("Palifico round — ones are not wild!") + "\n")
		}
		if round.CurrentBid != nil {
			sb.WriteString(fmt.Sprintf("Standing bid: %d × %d\n",
				round.CurrentBid.Count, round.CurrentBid.Value))
		} else {
			sb.WriteString("No bid yet.\n")
		}
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%d dice in play", round.TotalDice)) + "\n")
	}

	if len(m.hand) > 0 {
		sb.WriteString("\nYour dice: ")
		for _, die := range m.hand {
			sb.WriteString(dieStyle.Render(strconv.Itoa(die)))
		}
		sb.WriteString("\n")
	}

	if m.myTurn() {
		sb.WriteString("\n" + turnStyle.Render("Your turn.") + "\n")
		sb.WriteString(fmt.Sprintf("Bid (COUNTxVALUE): %s", m.bidInput))
		sb.WriteString(dimStyle.Render("  [enter: bid, d: dudo, c: calza]") + "\n")
	} else if round != nil {
		for _, p := range m.state.Players {
			if p.ID == round.CurrentTurnPlayerID {
				sb.WriteString("\n" + dimStyle.Render("Waiting on "+p.Name+"...") + "\n")
			}
		}
	}

	return sb.String()
}

func (m tuiModel) renderResult() string {
	res := m.lastResult
	call := "Dudo"
	if res.IsCalza {
		call = "Calza"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s on %d × %d — actual count: %d\n",
		call, res.Bid.Count, res.Bid.Value, res.ActualCount))
	if name := m.playerName(res.LoserID); name != "" {
		sb.WriteString(errStyle.Render(name+" loses a die.") + "\n")
	}
	if res.IsCalza && res.LoserID == "" {
		if name := m.playerName(res.WinnerID); name != "" {
			sb.WriteString(winnerStyle.Render(name+" called it exactly and regains a die!") + "\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func (m tuiModel) playerName(id string) string {
	if id == "" || m.state == nil {
		return ""
	}
	for _, p := range m.state.Players {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func (m tuiModel) renderGameOver() string {
	var sb strings.Builder
	if name := m.playerName(m.state.WinnerID); name != "" {
		sb.WriteString(winnerStyle.Render(name+" wins the game!") + "\n")
	} else {
		sb.WriteString("Game over.\n")
	}
	if m.isHost {
		sb.WriteString(turnStyle.Render("Press s to play again.") + "\n")
	}
	return sb.String()
}
