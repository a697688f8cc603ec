package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fabulagame/fabula/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

// deckManifest is the JSON shape of a deck import file:
//
//	{"decks": [{"id": "...", "name": "...", "artist": "...",
//	            "cards": [{"id": "...", "title": "...", "file": "..."}]}]}
type deckManifest struct {
	Decks []struct {
		sqlite.Deck
		Cards []sqlite.CardRecord `json:"cards"`
	} `json:"decks"`
}

func newSeedCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:           "seed <manifest.json>",
		Short:         "Import card decks from a JSON manifest into the card pool.",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var manifest deckManifest
			if err := json.Unmarshal(data, &manifest); err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
			if len(manifest.Decks) == 0 {
				return fmt.Errorf("manifest contains no decks")
			}

			store, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			total := 0
			for _, deck := range manifest.Decks {
				if err := store.PutDeck(ctx, deck.Deck); err != nil {
					return err
				}
				if err := store.PutCards(ctx, deck.ID, deck.Cards); err != nil {
					return err
				}
				total += len(deck.Cards)
			}

			fmt.Printf("Imported %d decks (%d cards) into %s\n", len(manifest.Decks), total, dbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "fabula.db", "path to the sqlite database (env: FABULA_DB)")

	return cmd
}
