package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fabulagame/fabula/internal/game"
	"github.com/fabulagame/fabula/internal/storage/sqlite"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

func writeJSON(cfg *Config, w http.ResponseWriter, errs chan<- error, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		errs <- err
	}
}

// createGame allocates a fresh room id, registers an open session for it,
// and returns the id to the caller.
func createGame(cfg *Config, reg *game.Registry, store *sqlite.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		roomID := reg.NewRoomID()
		if _, ok := reg.Create(roomID, store, store); !ok {
			writeJSON(cfg, w, errs, map[string]any{"success": false})
			return
		}

		logf(cfg, "GAMES: Created game %s for %s in %s",
			roomID,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		writeJSON(cfg, w, errs, map[string]any{"success": true, "id": roomID})
	}
}

// gameState reports the lifecycle phase of a room, or "invalid" for an
// unknown one.
func gameState(cfg *Config, reg *game.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		state := "invalid"
		if session, ok := reg.Get(ps.ByName("id")); ok {
			state = string(session.Phase())
		}
		writeJSON(cfg, w, errs, map[string]any{"state": state})
	}
}

// gamePlayers reports the roster view of a room.
func gamePlayers(cfg *Config, reg *game.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		session, ok := reg.Get(ps.ByName("id"))
		if !ok {
			writeJSON(cfg, w, errs, map[string]any{"success": false})
			return
		}
		writeJSON(cfg, w, errs, map[string]any{
			"success":    true,
			"players":    session.PlayersView(),
			"maxPlayers": game.MaxPlayers,
		})
	}
}

// listSets returns every available deck with its card count.
func listSets(cfg *Config, store *sqlite.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		decks, err := store.ListDecks(r.Context())
		if err != nil {
			errs <- err
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if decks == nil {
			decks = []sqlite.Deck{}
		}
		writeJSON(cfg, w, errs, decks)
	}
}

// qrHandler generates a PNG QR code for the room URL so a session can be
// shared across the table.
func qrHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /room/:roomid/qr; strip trailing "/qr" to get the room URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: QR code for room %s (%s) to %s in %s",
			roomID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
