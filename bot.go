package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/fabulagame/fabula/internal/game"
	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// serverEnvelope is a loose decoding of every message the server sends,
// discriminated by Type. Cards stays raw because its element shape
// differs between hand and chosen-card messages.
type serverEnvelope struct {
	Type       string                `json:"type"`
	Success    bool                  `json:"success"`
	RoomID     string                `json:"roomId"`
	PlayerID   string                `json:"playerId"`
	PrivateID  string                `json:"privateId"`
	Players    []game.PlayerView     `json:"players"`
	Cards      json.RawMessage       `json:"cards"`
	Hint       string                `json:"hint"`
	Running    game.RunningStateView `json:"running"`
	TotalTurns int                   `json:"totalTurns"`
}

// bot joins a room and plays every phase with a trivial strategy. Useful
// to fill seats while developing or to poke a live server.
type bot struct {
	conn *websocket.Conn
	name string

	playerID  string
	privateID string

	hand   []game.Card
	chosen []game.ChosenCard
	me     game.PlayerView

	lastGiven string
}

func newBotCmd() *cobra.Command {
	var (
		server string
		room   string
		name   string
	)

	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Join a room as an autoplayer.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if room == "" {
				return fmt.Errorf("--room is required")
			}

			wsURL := strings.Replace(server, "http", "ws", 1) + "/room/" + room + "/ws"
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", wsURL, err)
			}
			defer conn.Close()

			b := &bot{conn: conn, name: name}
			return b.play()
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the fabula server")
	cmd.Flags().StringVar(&room, "room", "", "room id to join")
	cmd.Flags().StringVar(&name, "name", "Bot", "player name")

	return cmd
}

func (b *bot) play() error {
	if err := b.send(ClientMessage{
		Type: "join",
		Name: b.name,
		Avatar: &game.Avatar{
			Eyes:      rand.IntN(8),
			Hair:      rand.IntN(8),
			Accessory: rand.IntN(10),
		},
	}); err != nil {
		return err
	}

	for {
		var msg serverEnvelope
		if err := b.conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case "joined":
			if !msg.Success {
				return fmt.Errorf("join rejected, is the room open?")
			}
			b.playerID = msg.PlayerID
			b.privateID = msg.PrivateID
			pterm.Success.Printfln("Joined room %s as %s", msg.RoomID, b.name)

		case "gamestarted":
			pterm.Info.Printfln("Game started")
			if err := b.send(b.withCredentials(ClientMessage{Type: "getgameinfo"})); err != nil {
				return err
			}

		case "players":
			for _, p := range msg.Players {
				if p.ID == b.playerID {
					b.me = p
					break
				}
			}

		case "hand":
			if err := json.Unmarshal(msg.Cards, &b.hand); err != nil {
				return err
			}

		case "chosencards":
			if err := json.Unmarshal(msg.Cards, &b.chosen); err != nil {
				return err
			}

		case "hint":
			if msg.Hint != "" {
				pterm.Info.Printfln("Hint: %s", msg.Hint)
			}

		case "runningstate":
			if err := b.act(msg.Running); err != nil {
				return err
			}

		case "gamefinished":
			pterm.Success.Printfln("Game over, final score %d", b.me.Score.Total)
			return nil
		}
	}
}

// act answers a state change with the bot's move, when one is expected
// of it.
func (b *bot) act(running game.RunningStateView) error {
	switch running.State {
	case game.StateWaitForHint:
		if !b.me.Active || len(b.hand) == 0 {
			return nil
		}
		b.lastGiven = b.hand[0].ID
		pterm.Info.Printfln("Turn %d: giving a hint", running.CurrentTurn)
		return b.send(b.withCredentials(ClientMessage{
			Type: "givehint",
			Card: b.hand[0].ID,
			Hint: "Beep boop.",
		}))

	case game.StateWaitForCards:
		if b.me.Active || !b.me.Pending || len(b.hand) == 0 {
			return nil
		}
		b.lastGiven = b.hand[0].ID
		return b.send(b.withCredentials(ClientMessage{
			Type: "givecard",
			Card: b.hand[0].ID,
		}))

	case game.StateWaitForGuesses:
		if !b.me.Pending {
			return nil
		}
		for _, card := range b.chosen {
			if card.ID != b.lastGiven {
				return b.send(b.withCredentials(ClientMessage{
					Type: "guess",
					Card: card.ID,
				}))
			}
		}

	case game.StateEvaluation:
		pterm.Info.Printfln("Turn %d scored, %d points so far", running.CurrentTurn, b.me.Score.Total)
	}
	return nil
}

func (b *bot) withCredentials(msg ClientMessage) ClientMessage {
	msg.PlayerID = b.playerID
	msg.PrivateID = b.privateID
	return msg
}

func (b *bot) send(msg ClientMessage) error {
	return b.conn.WriteJSON(msg)
}
