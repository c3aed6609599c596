package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/devconnector/internal/auth"
	"github.com/geocoder89/devconnector/internal/config"
	"github.com/geocoder89/devconnector/internal/db"
	apphttp "github.com/geocoder89/devconnector/internal/http"
	"github.com/geocoder89/devconnector/internal/http/handlers"
	"github.com/geocoder89/devconnector/internal/repo/memory"
	mongorepo "github.com/geocoder89/devconnector/internal/repo/mongo"
	"github.com/geocoder89/devconnector/internal/repo/postgres"
	"github.com/geocoder89/devconnector/internal/security"
	"github.com/geocoder89/devconnector/internal/workpool"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() config.Config {
	return config.Config{
		Env:          "test",
		JWTSecret:    "test-secret-key",
		JWTTTLHours:  100,
		StoreTimeout: 3 * time.Second,
	}
}

type stack struct {
	router http.Handler
	tokens *auth.Manager
}

func newRouter(t *testing.T, users apphttp.UserStore, profiles handlers.ProfilesRepository, checks map[string]handlers.Pinger) stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	pool := workpool.New(4, nil)
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL())

	r := apphttp.NewRouter(apphttp.Deps{
		Config:   cfg,
		Users:    users,
		Profiles: profiles,
		Hasher:   security.NewHasher(bcrypt.MinCost, pool),
		Tokens:   tokens,
		Pool:     pool,
		Checks:   checks,
	})

	return stack{router: r, tokens: tokens}
}

func newMemoryStack(t *testing.T) stack {
	t.Helper()

	st := memory.NewStore()
	return newRouter(t, st.Users(), st.Profiles(), map[string]handlers.Pinger{"store": st.Ping})
}

// newPostgresStack runs against TEST_DB_DSN and skips when it is unset.
func newPostgresStack(t *testing.T) stack {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()

	if err := db.Migrate(ctx, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	reset := func() {
		if _, err := pool.Exec(context.Background(), `TRUNCATE profiles, users CASCADE`); err != nil {
			t.Fatalf("failed to truncate tables: %v", err)
		}
	}
	reset()
	t.Cleanup(reset)

	return newRouter(t,
		postgres.NewUsersRepo(pool, nil),
		postgres.NewProfilesRepo(pool, nil),
		map[string]handlers.Pinger{"postgres": pool.Ping},
	)
}

// newMongoStack runs against MONGO_TEST_URI in a throwaway database and skips
// when it is unset.
func newMongoStack(t *testing.T) stack {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	name := "devconnector_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	client, mdb, err := db.NewMongo(context.Background(), uri, name)
	if err != nil {
		t.Fatalf("mongo connect: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mdb.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	return newRouter(t,
		mongorepo.NewUsersRepo(mdb, nil),
		mongorepo.NewProfilesRepo(mdb, nil),
		map[string]handlers.Pinger{"mongo": func(ctx context.Context) error { return client.Ping(ctx, nil) }},
	)
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type msgResponse struct {
	Msg string `json:"msg"`
}

type errorsResponse struct {
	Errors []handlers.FieldError `json:"errors"`
}

type profileResponse struct {
	ID   string `json:"_id"`
	User struct {
		ID     string `json:"_id"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"user"`
	Company    string   `json:"company"`
	Status     string   `json:"status"`
	Skills     []string `json:"skills"`
	Experience []struct {
		ID    string `json:"_id"`
		Title string `json:"title"`
	} `json:"experience"`
	Education []struct {
		ID     string `json:"_id"`
		School string `json:"school"`
	} `json:"education"`
	Social map[string]string `json:"social"`
}

func register(t *testing.T, s stack, name, email string) string {
	t.Helper()

	body := `{"name":"` + name + `","email":"` + email + `","password":"secret123"}`
	w := doRequest(s.router, http.MethodPost, "/api/users", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("register got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var tok tokenResponse
	mustReadJSON(t, w, &tok)
	if strings.TrimSpace(tok.Token) == "" {
		t.Fatalf("register expected token, got empty")
	}

	return tok.Token
}
