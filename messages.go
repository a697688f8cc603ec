package main

import (
	"github.com/fabulagame/fabula/internal/game"
)

// ClientMessage is every message a client can send, discriminated by
// Type: "join", "reconnect", "startgame", "gofirst", "givehint",
// "givecard", "guess", "nextturn", "restartgame", "getgameinfo",
// "getplayers", "gethandcards". After joining, every message carries the
// player's public id and private credential.
type ClientMessage struct {
	Type      string `json:"type"`
	PlayerID  string `json:"playerId,omitempty"`
	PrivateID string `json:"privateId,omitempty"`

	Name   string       `json:"name,omitempty"`   // join
	Avatar *game.Avatar `json:"avatar,omitempty"` // join

	Turns int      `json:"turns,omitempty"` // startgame
	Decks []string `json:"decks,omitempty"` // startgame

	Card string `json:"card,omitempty"` // givehint / givecard / guess
	Hint string `json:"hint,omitempty"` // givehint
}

// JoinedMessage answers a join attempt. It is the only message that ever
// carries a private id, and only to its owner.
type JoinedMessage struct {
	Type      string `json:"type"` // "joined"
	Success   bool   `json:"success"`
	RoomID    string `json:"roomId,omitempty"`
	PlayerID  string `json:"playerId,omitempty"`
	PrivateID string `json:"privateId,omitempty"`
}

// ReconnectedMessage answers a reconnect attempt.
type ReconnectedMessage struct {
	Type    string `json:"type"` // "reconnected"
	Success bool   `json:"success"`
}

// PlayersMessage broadcasts the roster view.
type PlayersMessage struct {
	Type    string            `json:"type"` // "players"
	Players []game.PlayerView `json:"players"`
}

// RunningStateMessage broadcasts the turn sub-state.
type RunningStateMessage struct {
	Type    string                `json:"type"` // "runningstate"
	Running game.RunningStateView `json:"running"`
}

// HandMessage carries a player's own hand; never broadcast.
type HandMessage struct {
	Type  string      `json:"type"` // "hand"
	Cards []game.Card `json:"cards"`
}

// HintMessage broadcasts the active player's hint.
type HintMessage struct {
	Type string `json:"type"` // "hint"
	Hint string `json:"hint"`
}

// ChosenCardsMessage broadcasts the turn's card pool. Cards holds bare
// ids during guessing and the full owner/guess breakdown during
// evaluation; revealing owners early would defeat the game.
type ChosenCardsMessage struct {
	Type  string `json:"type"` // "chosencards"
	Cards any    `json:"cards"`
}

// GameInfoMessage answers a game info request.
type GameInfoMessage struct {
	Type       string `json:"type"` // "gameinfo"
	TotalTurns int    `json:"totalTurns"`
}

// SimpleMessage is for bare notifications: "gamestarted", "gamefinished",
// "gamerestarted".
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}
