package cli

import (
	"fmt"
	"log"

	"contest-service/internal/config"
	pgstore "contest-service/internal/infra/postgres"
	"github.com/spf13/cobra"
)

// NewSeedCmd provisions the lobby room and loads the starter question set
// into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Provision the lobby room and starter questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}

			db := openBunDB(cfg.Postgres.URL)
			defer db.Close()
			store := pgstore.NewStore(db)

			lobbyID := cfg.Contest.LobbyRoomID
			if lobbyID == 0 {
				lobbyID = 1
			}
			if err := store.EnsureRoom(ctx, lobbyID, "Lobby"); err != nil {
				return err
			}
			if err := store.AddQuestions(ctx, sampleQuestions()); err != nil {
				return err
			}
			log.Printf("seeded lobby room %d and %d questions", lobbyID, len(sampleQuestions()))
			return nil
		},
	}
}
