package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	infrapg "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/protocol"
)

const testSecret = "integration-secret"

// captureSink collects broadcasts without a real websocket.
type captureSink struct{ ch chan protocol.Outbound }

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan protocol.Outbound, 64)}
}

func (s *captureSink) Send(msg protocol.Outbound) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *captureSink) next(t *testing.T, wantType string) protocol.Outbound {
	t.Helper()
	select {
	case msg := <-s.ch:
		if msg.Type != wantType {
			t.Fatalf("expected %s, got %s (%+v)", wantType, msg.Type, msg.Content)
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", wantType)
		return protocol.Outbound{}
	}
}

func TestQuizRoomEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, infrapg.NewQuizLoader(pool), 5*time.Minute)
	rooms := infraredis.NewRoomStore(redisClient, time.Hour)
	coordinator := app.NewCoordinator(
		rooms,
		quizRepo,
		auth.NewJWTVerifier(testSecret),
		app.Options{AnswerWindow: time.Minute},
		infraredis.NewResultsStore(redisClient, time.Hour),
		infrapg.NewResultsRepository(pool),
	)

	alice := newCaptureSink()
	aliceConn := coordinator.Connect("quiz-1", alice)
	if err := coordinator.Authenticate(ctx, aliceConn, mintToken(t, "u1", "Alice")); err != nil {
		t.Fatalf("authenticate alice: %v", err)
	}
	bob := newCaptureSink()
	bobConn := coordinator.Connect("quiz-1", bob)
	if err := coordinator.Authenticate(ctx, bobConn, mintToken(t, "u2", "Bob")); err != nil {
		t.Fatalf("authenticate bob: %v", err)
	}
	alice.next(t, protocol.TypeJoin)
	alice.next(t, protocol.TypeJoin)

	// The room marks itself live in Redis.
	if n, err := redisClient.Exists(ctx, "quiz:room:quiz-1").Result(); err != nil || n != 1 {
		t.Fatalf("expected room liveness marker, got n=%d err=%v", n, err)
	}

	if err := coordinator.Start(aliceConn); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Alice answers correctly, Bob wrongly, both questions.
	answers := map[string][2]int{
		"q1": {1, 0},
		"q2": {0, 1},
	}
	for i := 0; i < len(answers); i++ {
		question := alice.next(t, protocol.TypeQuestion).Content.(protocol.QuestionContent)
		pair := answers[question.ID]
		if err := coordinator.SubmitAnswer(aliceConn, question.ID, pair[0]); err != nil {
			t.Fatalf("alice answer %s: %v", question.ID, err)
		}
		if err := coordinator.SubmitAnswer(bobConn, question.ID, pair[1]); err != nil {
			t.Fatalf("bob answer %s: %v", question.ID, err)
		}
	}

	first := alice.next(t, protocol.TypeResult).Content.(protocol.ResultContent)
	second := alice.next(t, protocol.TypeResult).Content.(protocol.ResultContent)
	if first.UserID != "u1" || first.Score != 100 {
		t.Fatalf("unexpected leader: %+v", first)
	}
	if second.UserID != "u2" || second.Score != 0 || !second.Final {
		t.Fatalf("unexpected final result: %+v", second)
	}
	alice.next(t, protocol.TypeSummary)

	// Results persist asynchronously; poll both stores.
	waitFor(t, func() bool {
		members, err := redisClient.ZRevRange(ctx, "quiz:quiz-1:leaderboard", 0, -1).Result()
		return err == nil && len(members) == 2
	})
	members, err := redisClient.ZRevRange(ctx, "quiz:quiz-1:leaderboard", 0, -1).Result()
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if members[0] != "u1" || members[1] != "u2" {
		t.Fatalf("expected [u1 u2] ranking, got %v", members)
	}
	detail, err := redisClient.HGetAll(ctx, "quiz:quiz-1:result:u1").Result()
	if err != nil || detail["score"] != "100" {
		t.Fatalf("unexpected result detail: %v err=%v", detail, err)
	}

	waitFor(t, func() bool {
		var n int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM quiz_results WHERE quiz_id=$1`, "quiz-1").Scan(&n); err != nil {
			return false
		}
		return n == 2
	})
	var score int
	if err := pool.QueryRow(ctx, `SELECT score FROM quiz_results WHERE quiz_id=$1 AND user_id=$2`, "quiz-1", "u1").Scan(&score); err != nil {
		t.Fatalf("query result row: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected persisted score 100, got %d", score)
	}
}

func mintToken(t *testing.T, userID, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: 1},
			{ID: "q2", Text: "What is 3 + 3?", Options: []string{"6", "7"}, Correct: 0},
		},
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
