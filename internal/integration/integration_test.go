package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	pgstore "contest-service/internal/infra/postgres"
	pgmigrations "contest-service/internal/infra/postgres/migrations"
	infraredis "contest-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestContestEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()
	runMigrations(t, ctx, db)

	store := pgstore.NewStore(db)
	questions := sampleQuestions()
	if err := store.AddQuestions(ctx, questions); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	room := domain.Room{Title: "Alice  vs  Bob"}
	if err := store.CreateRoom(ctx, &room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	base := time.Now()
	alice := domain.User{ID: 1, Username: "Alice"}
	bob := domain.User{ID: 2, Username: "Bob"}
	mustSeedMember(t, ctx, store, room.ID, alice, base)
	mustSeedMember(t, ctx, store, room.ID, bob, base.Add(time.Second))
	if err := store.SaveProfile(ctx, domain.Profile{UserID: bob.ID, Grade: 3, Level: 2}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	catalog := infraredis.NewCatalogCache(redisClient, pgstore.NewCatalogLoader(pool), 5*time.Minute)
	slots := infraredis.NewSlotStore(redisClient, 5*time.Minute)
	service := app.NewContestService(store, catalog, slots, app.Settings{})

	// Both players confirm; only the second confirmation triggers the start.
	ready, err := service.ConfirmStart(ctx, alice, room)
	if err != nil || ready {
		t.Fatalf("first confirm should not start, got %v/%v", ready, err)
	}
	ready, err = service.ConfirmStart(ctx, bob, room)
	if err != nil || !ready {
		t.Fatalf("second confirm should start, got %v/%v", ready, err)
	}

	// Alice answers every dealt question correctly.
	answerByContent := make(map[string]string, len(questions))
	for _, q := range questions {
		answerByContent[q.Content] = q.Answer
	}
	for i := 0; i < 3; i++ {
		payload, err := service.DrawQuestion(ctx, room)
		if err != nil {
			t.Fatalf("draw %d: %v", i+1, err)
		}
		if payload == domain.ContestEnded {
			t.Fatalf("draw %d ended early", i+1)
		}
		parts := strings.Split(payload, domain.PayloadDelimiter)
		if len(parts) != 6 {
			t.Fatalf("expected 6 payload fields, got %q", payload)
		}
		answer := answerByContent[parts[4]]
		correctIndex := -1
		for j := 0; j < 4; j++ {
			if parts[j] == answer {
				correctIndex = j
			}
		}
		if correctIndex == -1 {
			t.Fatalf("answer %q not present in payload %q", answer, payload)
		}
		recordID, err := strconv.ParseInt(parts[5], 10, 64)
		if err != nil {
			t.Fatalf("parse record id: %v", err)
		}
		correct, err := service.CheckAnswer(ctx, recordID, correctIndex)
		if err != nil {
			t.Fatalf("check answer: %v", err)
		}
		if !correct {
			t.Fatalf("expected index %d to be correct for %q", correctIndex, parts[4])
		}
		if err := service.RecordAnswer(ctx, alice, recordID, correct); err != nil {
			t.Fatalf("record answer: %v", err)
		}
		if err := service.AddScore(ctx, alice, 1); err != nil {
			t.Fatalf("add score: %v", err)
		}
	}

	payload, err := service.DrawQuestion(ctx, room)
	if err != nil {
		t.Fatalf("fourth draw: %v", err)
	}
	if payload != domain.ContestEnded {
		t.Fatalf("expected contest end on fourth draw, got %q", payload)
	}

	if err := service.AddScore(ctx, bob, 1); err != nil {
		t.Fatalf("add score: %v", err)
	}

	verdict, err := service.JudgeOutcome(ctx, alice, room)
	if err != nil {
		t.Fatalf("judge alice: %v", err)
	}
	if verdict != domain.VerdictWin {
		t.Fatalf("expected Win for alice, got %q", verdict)
	}
	profile, err := store.Profile(ctx, alice.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Level != 1 {
		t.Fatalf("expected alice level 1, got %d", profile.Level)
	}

	verdict, err = service.JudgeOutcome(ctx, bob, room)
	if err != nil {
		t.Fatalf("judge bob: %v", err)
	}
	if verdict != domain.VerdictLose {
		t.Fatalf("expected Lose for bob, got %q", verdict)
	}
	profile, err = store.Profile(ctx, bob.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Level != 1 {
		t.Fatalf("expected bob level 1 after loss, got %d", profile.Level)
	}

	records, err := service.History(ctx, alice)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(records))
	}
}

func mustSeedMember(t *testing.T, ctx context.Context, store *pgstore.Store, roomID int64, user domain.User, joinedAt time.Time) {
	t.Helper()
	err := store.AddMembership(ctx, &domain.Membership{
		RoomID:   roomID,
		UserID:   user.ID,
		Username: user.Username,
		JoinedAt: joinedAt,
	})
	if err != nil {
		t.Fatalf("seed member %s: %v", user.Username, err)
	}
	if err := store.GrantAccess(ctx, roomID, user.ID); err != nil {
		t.Fatalf("grant %s: %v", user.Username, err)
	}
}

func runMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "contest", "POSTGRES_PASSWORD": "contestpass", "POSTGRES_DB": "contestdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://contest:contestpass@%s:%s/contestdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Content: "What is 2 + 2?", Choice1: "3", Choice2: "5", Choice3: "22", Answer: "4"},
		{ID: 2, Content: "Which planet is closest to the sun?", Choice1: "Venus", Choice2: "Earth", Choice3: "Mars", Answer: "Mercury"},
		{ID: 3, Content: "How many legs does a spider have?", Choice1: "6", Choice2: "10", Choice3: "12", Answer: "8"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
