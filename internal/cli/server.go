package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/config"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"
	pgstore "contest-service/internal/infra/postgres"
	redisinfra "contest-service/internal/infra/redis"
	transport "contest-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the contest server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	slotTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Minute)
	catalogTTL := config.TTLDuration(cfg.Contest.CatalogTTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var store app.Store
	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(sampleQuestions())
	if pool != nil {
		db := openBunDB(cfg.Postgres.URL)
		store = pgstore.NewStore(db)
		loader = pgstore.NewCatalogLoader(pool)
	} else {
		memStore := memory.NewStore()
		// lobby room comes first so it lands on the configured id
		lobby := domain.Room{Title: "Lobby"}
		_ = memStore.CreateRoom(ctx, &lobby)
		store = memStore
	}

	var catalog app.QuestionCatalog
	if redisClient != nil {
		catalog = redisinfra.NewCatalogCache(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogCache(loader, catalogTTL)
	}

	var slots app.SlotStore
	if redisClient != nil {
		slots = redisinfra.NewSlotStore(redisClient, slotTTL)
	} else {
		slots = memory.NewSlotStore()
	}

	service := app.NewContestService(store, catalog, slots, app.Settings{
		MaxQuestions: cfg.Contest.MaxQuestions,
		LobbyRoomID:  cfg.Contest.LobbyRoomID,
	})
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting contest service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions provides a minimal question catalog for running without a
// database; the seed command loads the same set into Postgres.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:      1,
			Content: "What is 2 + 2?",
			Choice1: "3",
			Choice2: "5",
			Choice3: "22",
			Answer:  "4",
		},
		{
			ID:      2,
			Content: "Which planet is closest to the sun?",
			Choice1: "Venus",
			Choice2: "Earth",
			Choice3: "Mars",
			Answer:  "Mercury",
		},
		{
			ID:      3,
			Content: "How many legs does a spider have?",
			Choice1: "6",
			Choice2: "10",
			Choice3: "12",
			Answer:  "8",
		},
		{
			ID:      4,
			Content: "What color do you get by mixing blue and yellow?",
			Choice1: "Purple",
			Choice2: "Orange",
			Choice3: "Brown",
			Answer:  "Green",
		},
	}
}
