package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fabulagame/fabula/internal/game"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

// Hub fans one room's notifications out to its connected clients and
// funnels every inbound action through a single mailbox, so no two
// mutations of the same session ever interleave.
type Hub struct {
	roomID string

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest
	done     chan struct{}

	mu sync.RWMutex

	lastActive time.Time

	cfg *Config
	reg *game.Registry
}

func newHub(cfg *Config, reg *game.Registry, roomID string) *Hub {
	return &Hub{
		roomID:     roomID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan actionRequest),
		done:       make(chan struct{}),
		lastActive: time.Now(),
		cfg:        cfg,
		reg:        reg,
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

			if c.playerID != "" {
				if session, ok := h.reg.Get(h.roomID); ok {
					session.SetConnected(c.playerID, false)
				}
				go h.scheduleDisconnectNotice(c.playerID)
			}

		case ar := <-h.actions:
			h.handleAction(ar.client, ar.msg)
		}
	}
}

// scheduleDisconnectNotice waits out the grace period and broadcasts the
// roster if the player has not come back. Disconnection never removes the
// player or advances the game; a pending player simply stalls the turn
// until they reconnect.
func (h *Hub) scheduleDisconnectNotice(playerID string) {
	time.Sleep(h.cfg.playerTimeout)

	h.mu.Lock()
	for client := range h.clients {
		if client.playerID == playerID {
			h.mu.Unlock()
			return
		}
	}
	h.mu.Unlock()

	session, ok := h.reg.Get(h.roomID)
	if !ok {
		return
	}
	player := session.Player(playerID)
	if player == nil || !player.Disconnected {
		return
	}
	h.broadcast(PlayersMessage{Type: "players", Players: session.PlayersView()})
}

func (h *Hub) handleAction(c *Client, msg ClientMessage) {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()

	switch msg.Type {
	case "join":
		h.handleJoin(c, msg)
	case "reconnect":
		h.handleReconnect(c, msg)
	case "startgame":
		h.handleStartGame(c, msg)
	case "gofirst":
		h.handleGoFirst(c, msg)
	case "givehint":
		h.handleGiveHint(c, msg)
	case "givecard":
		h.handleGiveCard(c, msg)
	case "guess":
		h.handleGuess(c, msg)
	case "nextturn":
		h.handleNextTurn(c, msg)
	case "restartgame":
		h.handleRestartGame(c, msg)
	case "getgameinfo":
		h.handleGetGameInfo(c, msg)
	case "getplayers":
		h.handleGetPlayers(c, msg)
	case "gethandcards":
		h.handleGetHandCards(c, msg)
	default:
		// ignore unknown types
	}
}

func (h *Hub) handleJoin(c *Client, msg ClientMessage) {
	session, ok := h.reg.Get(h.roomID)
	if !ok || session.Phase() != game.PhaseOpen || msg.Name == "" || msg.Avatar == nil {
		h.sendTo(c, JoinedMessage{Type: "joined"})
		return
	}

	player := game.NewPlayer(msg.Name, *msg.Avatar)
	if !session.Join(player) {
		h.sendTo(c, JoinedMessage{Type: "joined"})
		return
	}

	// The disconnect-notice goroutine scans playerID under h.mu.
	h.mu.Lock()
	c.playerID = player.ID
	h.mu.Unlock()

	logf(h.cfg, "GAMES: Player %q joined %s", player.Name, h.roomID)

	h.sendTo(c, JoinedMessage{
		Type:      "joined",
		Success:   true,
		RoomID:    h.roomID,
		PlayerID:  player.ID,
		PrivateID: player.PrivateID,
	})
	h.broadcast(PlayersMessage{Type: "players", Players: session.PlayersView()})
}

func (h *Hub) handleReconnect(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID,
		game.PhaseOpen, game.PhaseRunning)
	if !ok {
		h.sendTo(c, ReconnectedMessage{Type: "reconnected"})
		return
	}

	grant.Session.SetConnected(msg.PlayerID, true)

	h.mu.Lock()
	c.playerID = msg.PlayerID
	h.mu.Unlock()

	h.sendTo(c, ReconnectedMessage{Type: "reconnected", Success: true})
	h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
}

func (h *Hub) handleStartGame(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseOpen)
	if !ok {
		return
	}
	if !grant.Session.Start(context.Background(), msg.Turns, msg.Decks) {
		return
	}

	logf(h.cfg, "GAMES: Started game %s with %d turns", h.roomID, msg.Turns)
	h.broadcast(SimpleMessage{Type: "gamestarted"})
}

func (h *Hub) handleGoFirst(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	if !grant.Session.GoFirst(msg.PlayerID) {
		return
	}

	h.broadcast(RunningStateMessage{Type: "runningstate", Running: grant.Session.Running()})
	h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
}

func (h *Hub) handleGiveHint(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	if !grant.Session.GiveHint(msg.PlayerID, msg.Card, msg.Hint) {
		return
	}

	h.sendTo(c, HandMessage{Type: "hand", Cards: grant.Session.HandOf(msg.PlayerID)})
	h.broadcast(HintMessage{Type: "hint", Hint: grant.Session.HintText()})
	h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
	h.broadcast(RunningStateMessage{Type: "runningstate", Running: grant.Session.Running()})
}

func (h *Hub) handleGiveCard(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	if !grant.Session.GiveCard(msg.PlayerID, msg.Card) {
		return
	}

	h.sendTo(c, HandMessage{Type: "hand", Cards: grant.Session.HandOf(msg.PlayerID)})
	advanced := grant.Session.CheckLastCard()
	h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
	if !advanced {
		return
	}

	// Everyone has submitted; reveal the shuffled pool as bare ids.
	h.broadcast(ChosenCardsMessage{Type: "chosencards", Cards: grant.Session.ChosenIDs()})
	h.broadcast(RunningStateMessage{Type: "runningstate", Running: grant.Session.Running()})
}

func (h *Hub) handleGuess(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	if !grant.Session.Guess(msg.PlayerID, msg.Card) {
		return
	}

	if !grant.Session.CheckLastGuess() {
		h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
		return
	}

	// Last guess is in: score the turn and reveal owners and guessers.
	grant.Session.CalculateScore()
	h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
	h.broadcast(ChosenCardsMessage{Type: "chosencards", Cards: grant.Session.ChosenFull()})
	h.broadcast(RunningStateMessage{Type: "runningstate", Running: grant.Session.Running()})
}

func (h *Hub) handleNextTurn(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	if !grant.Session.NextTurn() {
		if grant.Session.Phase() == game.PhaseFinished {
			logf(h.cfg, "GAMES: Game %s finished", h.roomID)
			h.broadcast(SimpleMessage{Type: "gamefinished"})
		}
		return
	}

	h.broadcast(PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
	h.broadcast(ChosenCardsMessage{Type: "chosencards", Cards: []game.Card{}})
	h.broadcast(HintMessage{Type: "hint"})
	h.broadcast(RunningStateMessage{Type: "runningstate", Running: grant.Session.Running()})
}

func (h *Hub) handleRestartGame(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseFinished)
	if !ok {
		return
	}

	h.reg.Replace(h.roomID, grant.Session.Restart())
	logf(h.cfg, "GAMES: Restarted game %s", h.roomID)
	h.broadcast(SimpleMessage{Type: "gamerestarted"})
}

func (h *Hub) handleGetGameInfo(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	session := grant.Session

	h.sendTo(c, GameInfoMessage{Type: "gameinfo", TotalTurns: session.TotalTurns()})
	h.sendTo(c, HandMessage{Type: "hand", Cards: session.HandOf(msg.PlayerID)})
	h.sendTo(c, PlayersMessage{Type: "players", Players: session.PlayersView()})
	h.sendTo(c, RunningStateMessage{Type: "runningstate", Running: session.Running()})
	h.sendTo(c, HintMessage{Type: "hint", Hint: session.HintText()})

	switch session.Running().State {
	case game.StateWaitForGuesses:
		h.sendTo(c, ChosenCardsMessage{Type: "chosencards", Cards: session.ChosenIDs()})
	case game.StateEvaluation:
		h.sendTo(c, ChosenCardsMessage{Type: "chosencards", Cards: session.ChosenFull()})
	}
}

func (h *Hub) handleGetPlayers(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID,
		game.PhaseRunning, game.PhaseFinished)
	if !ok {
		h.sendTo(c, PlayersMessage{Type: "players"})
		return
	}
	h.sendTo(c, PlayersMessage{Type: "players", Players: grant.Session.PlayersView()})
}

func (h *Hub) handleGetHandCards(c *Client, msg ClientMessage) {
	grant, ok := game.Authorize(h.reg, h.roomID, msg.PlayerID, msg.PrivateID, game.PhaseRunning)
	if !ok {
		return
	}
	h.sendTo(c, HandMessage{Type: "hand", Cards: grant.Session.HandOf(msg.PlayerID)})
}

// sendTo queues a message for one client, dropping the client when its
// buffer is full.
func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast queues a message for every connected client.
func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this hub (used by the reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

// HubManager holds one hub per room so each room's clients and mailbox
// stay isolated.
type HubManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once

	cfg *Config
	reg *game.Registry
}

func newHubManager(cfg *Config, reg *game.Registry) *HubManager {
	hm := &HubManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
		done:        make(chan struct{}),
		cfg:         cfg,
		reg:         reg,
	}
	if hm.idleTimeout > 0 {
		go hm.reaperLoop()
	}
	return hm
}

func (hm *HubManager) getHub(roomID string) *Hub {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[roomID]; ok {
		return hub
	}

	hub := newHub(hm.cfg, hm.reg, roomID)
	hm.hubs[roomID] = hub
	go hub.run()
	return hub
}

// reaperLoop drops hubs that have been idle longer than the timeout. The
// registry reaps the sessions themselves on the same schedule.
func (hm *HubManager) reaperLoop() {
	ticker := time.NewTicker(hm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-hm.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-hm.idleTimeout)

			hm.mu.Lock()
			for id, hub := range hm.hubs {
				hub.mu.RLock()
				last := hub.lastActive
				hub.mu.RUnlock()

				if last.Before(cutoff) {
					delete(hm.hubs, id)
					close(hub.done)
					go hub.closeAll()
				}
			}
			hm.mu.Unlock()
		}
	}
}

// Close stops the reaper and every hub.
func (hm *HubManager) Close() {
	hm.closeOnce.Do(func() {
		close(hm.done)
	})

	hm.mu.Lock()
	defer hm.mu.Unlock()
	for id, hub := range hm.hubs {
		delete(hm.hubs, id)
		close(hub.done)
		go hub.closeAll()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and attaches the client to its room's
// hub.
func serveWS(cfg *Config, hm *HubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		hub := hm.getHub(roomID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		h.actions <- actionRequest{client: c, msg: msg}
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
