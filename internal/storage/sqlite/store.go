// Package sqlite persists game snapshots and holds the card pool the
// sessions sample their decks from.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fabulagame/fabula/internal/game"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS games (
	room TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	finished INTEGER NOT NULL DEFAULT 0,
	last_activity TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_games_last_activity ON games (last_activity);

CREATE TABLE IF NOT EXISTS decks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	artist TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cards (
	id TEXT PRIMARY KEY,
	deck_id TEXT NOT NULL REFERENCES decks (id),
	title TEXT NOT NULL DEFAULT '',
	file TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	year TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards (deck_id);
`

// Deck describes one card set available for play.
type Deck struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Description string `json:"description"`
	CardCount   int    `json:"noCards"`
}

// CardRecord is one card's pool metadata. Sessions only ever see the id;
// the rest serves galleries and attribution.
type CardRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	File   string `json:"file"`
	Artist string `json:"artist"`
	Year   string `json:"year"`
}

// Store is a SQLite-backed snapshot store and card pool.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the store at the given path, creating the schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveGame upserts a session snapshot keyed by room id.
func (s *Store) SaveGame(ctx context.Context, snap game.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snap.Room) == "" {
		return fmt.Errorf("room id is required")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	finished := 0
	if snap.Finished {
		finished = 1
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO games (room, snapshot, finished, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room) DO UPDATE SET
			snapshot = excluded.snapshot,
			finished = excluded.finished,
			last_activity = excluded.last_activity`,
		snap.Room, string(payload), finished, snap.LastActivity.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("save game %s: %w", snap.Room, err)
	}
	return nil
}

// LoadActive returns the snapshots of every game active since the given
// time, for crash-recovery bootstrap.
func (s *Store) LoadActive(ctx context.Context, since time.Time) ([]game.Snapshot, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT snapshot FROM games WHERE last_activity >= ?`,
		since.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("load active games: %w", err)
	}
	defer rows.Close()

	var snaps []game.Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		var snap game.Snapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteGamesBefore removes stored games whose last activity predates the
// cutoff and reports how many were deleted.
func (s *Store) DeleteGamesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM games WHERE last_activity < ?`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("delete old games: %w", err)
	}
	return res.RowsAffected()
}

// SampleCards returns up to count random cards drawn from the given
// decks. It may return fewer when the pool is too small; the session
// checks the length and refuses to start short.
func (s *Store) SampleCards(ctx context.Context, deckIDs []string, count int) ([]game.Card, error) {
	if len(deckIDs) == 0 || count <= 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(deckIDs)-1) + "?"
	args := make([]any, 0, len(deckIDs)+1)
	for _, id := range deckIDs {
		args = append(args, id)
	}
	args = append(args, count)

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id FROM cards WHERE deck_id IN (`+placeholders+`) ORDER BY RANDOM() LIMIT ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sample cards: %w", err)
	}
	defer rows.Close()

	var cards []game.Card
	for rows.Next() {
		var card game.Card
		if err := rows.Scan(&card.ID); err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// PutDeck inserts or updates a deck.
func (s *Store) PutDeck(ctx context.Context, deck Deck) error {
	if strings.TrimSpace(deck.ID) == "" {
		return fmt.Errorf("deck id is required")
	}
	if strings.TrimSpace(deck.Name) == "" {
		return fmt.Errorf("deck name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO decks (id, name, artist, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			artist = excluded.artist,
			description = excluded.description`,
		deck.ID, deck.Name, deck.Artist, deck.Description)
	if err != nil {
		return fmt.Errorf("put deck %s: %w", deck.ID, err)
	}
	return nil
}

// PutCards inserts or updates a deck's cards in one transaction.
func (s *Store) PutCards(ctx context.Context, deckID string, cards []CardRecord) error {
	if strings.TrimSpace(deckID) == "" {
		return fmt.Errorf("deck id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put cards: %w", err)
	}
	defer tx.Rollback()

	for _, card := range cards {
		if strings.TrimSpace(card.ID) == "" {
			return fmt.Errorf("card id is required")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, deck_id, title, file, artist, year)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				deck_id = excluded.deck_id,
				title = excluded.title,
				file = excluded.file,
				artist = excluded.artist,
				year = excluded.year`,
			card.ID, deckID, card.Title, card.File, card.Artist, card.Year); err != nil {
			return fmt.Errorf("put card %s: %w", card.ID, err)
		}
	}

	return tx.Commit()
}

// ListDecks returns every deck with its card count.
func (s *Store) ListDecks(ctx context.Context) ([]Deck, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT d.id, d.name, d.artist, d.description, COUNT(c.id)
		FROM decks d
		LEFT JOIN cards c ON c.deck_id = d.id
		GROUP BY d.id
		ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	var decks []Deck
	for rows.Next() {
		var deck Deck
		if err := rows.Scan(&deck.ID, &deck.Name, &deck.Artist, &deck.Description, &deck.CardCount); err != nil {
			return nil, fmt.Errorf("scan deck row: %w", err)
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

var (
	_ game.Saver      = (*Store)(nil)
	_ game.CardSource = (*Store)(nil)
)
