package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/devconnector/internal/config"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/http/handlers"
	"github.com/geocoder89/devconnector/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsersRepo struct {
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	getByIDFn    func(ctx context.Context, id string) (user.User, error)
	createFn     func(ctx context.Context, u user.User) (user.User, error)
	deleteFn     func(ctx context.Context, id string) error
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	return u, nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

// fakeHasher stores "hashed:<plain>" so tests stay fast.
type fakeHasher struct {
	verifies int
}

func (f *fakeHasher) Hash(_ context.Context, plain string) (string, error) {
	return "hashed:" + plain, nil
}

func (f *fakeHasher) Verify(_ context.Context, plain, hash string) (bool, error) {
	f.verifies++
	return hash == "hashed:"+plain, nil
}

type fakeTokens struct {
	issued []string
}

func (f *fakeTokens) Issue(userID string) (string, error) {
	f.issued = append(f.issued, userID)
	return "token-for-" + userID, nil
}

type fakeMetrics map[string]int

func (f fakeMetrics) AuthAttempt(kind, result string) { f[kind+":"+result]++ }

func testConfig() config.Config {
	return config.Config{StoreTimeout: time.Second}
}

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

// withUser fakes the auth middleware.
func withUser(userID string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(middlewares.CtxUserID, userID)
		h(ctx)
	}
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repo           *fakeUsersRepo
		wantStatusCode int
		wantMsg        string
		wantToken      bool
	}{
		{
			name:           "success",
			body:           `{"name":"Jane","email":"Jane@Example.com","password":"secret1"}`,
			repo:           &fakeUsersRepo{},
			wantStatusCode: http.StatusOK,
			wantToken:      true,
		},
		{
			name: "precheck_finds_existing_user",
			body: `{"name":"Jane","email":"jane@example.com","password":"secret1"}`,
			repo: &fakeUsersRepo{
				getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
					return user.User{ID: "u1", Email: email}, nil
				},
			},
			wantStatusCode: http.StatusBadRequest,
			wantMsg:        "User already exists",
		},
		{
			name: "unique_constraint_loses_race",
			body: `{"name":"Jane","email":"jane@example.com","password":"secret1"}`,
			repo: &fakeUsersRepo{
				createFn: func(ctx context.Context, u user.User) (user.User, error) {
					return user.User{}, user.ErrEmailTaken
				},
			},
			wantStatusCode: http.StatusBadRequest,
			wantMsg:        "User already exists",
		},
		{
			name: "store_failure",
			body: `{"name":"Jane","email":"jane@example.com","password":"secret1"}`,
			repo: &fakeUsersRepo{
				createFn: func(ctx context.Context, u user.User) (user.User, error) {
					return user.User{}, errors.New("connection reset")
				},
			},
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name:           "padded_invalid_email",
			body:           `{"name":"Jane","email":"  not-an-email ","password":"secret1"}`,
			repo:           &fakeUsersRepo{},
			wantStatusCode: http.StatusBadRequest,
			wantMsg:        "Please include a valid email",
		},
		{
			name:           "short_password",
			body:           `{"name":"Jane","email":"jane@example.com","password":"123"}`,
			repo:           &fakeUsersRepo{},
			wantStatusCode: http.StatusBadRequest,
			wantMsg:        "Please enter a password with 6 or more characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &fakeTokens{}
			h := handlers.NewAuthHandler(tt.repo, tt.repo, &fakeHasher{}, tokens, nil, testConfig())
			r := setupRouter(http.MethodPost, "/api/users", h.Register)

			w := serve(r, http.MethodPost, "/api/users", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantMsg != "" {
				var resp errorsResponse
				_ = json.Unmarshal(w.Body.Bytes(), &resp)
				if len(resp.Errors) == 0 || resp.Errors[0].Msg != tt.wantMsg {
					t.Fatalf("got errors %+v, want msg %q", resp.Errors, tt.wantMsg)
				}
			}

			if tt.wantToken != (len(tokens.issued) == 1) {
				t.Fatalf("issued tokens = %v, want token=%v", tokens.issued, tt.wantToken)
			}
		})
	}
}

func TestRegisterHandler_PersistsNormalisedUser(t *testing.T) {
	var saved user.User
	repo := &fakeUsersRepo{
		createFn: func(ctx context.Context, u user.User) (user.User, error) {
			saved = u
			return u, nil
		},
	}

	h := handlers.NewAuthHandler(repo, repo, &fakeHasher{}, &fakeTokens{}, nil, testConfig())
	r := setupRouter(http.MethodPost, "/api/users", h.Register)

	w := serve(r, http.MethodPost, "/api/users", `{"name":" Jane ","email":" Jane@Example.com","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if saved.Email != "jane@example.com" || saved.Name != "Jane" {
		t.Fatalf("unexpected saved user %+v", saved)
	}
	if saved.PasswordHash != "hashed:secret1" {
		t.Fatalf("password must be hashed, got %q", saved.PasswordHash)
	}
	if !strings.HasPrefix(saved.Avatar, "https://www.gravatar.com/avatar/") {
		t.Fatalf("avatar = %q", saved.Avatar)
	}
}

func TestLoginHandler_FailuresAreIndistinguishable(t *testing.T) {
	repo := &fakeUsersRepo{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			if email == "jane@example.com" {
				return user.User{ID: "u1", Email: email, PasswordHash: "hashed:secret1"}, nil
			}
			return user.User{}, user.ErrNotFound
		},
	}

	hasher := &fakeHasher{}
	metrics := fakeMetrics{}
	tokens := &fakeTokens{}
	h := handlers.NewAuthHandler(repo, repo, hasher, tokens, metrics, testConfig())
	r := setupRouter(http.MethodPost, "/api/auth", h.Login)

	wrongPassword := serve(r, http.MethodPost, "/api/auth", `{"email":"jane@example.com","password":"nope"}`)
	unknownEmail := serve(r, http.MethodPost, "/api/auth", `{"email":"ghost@example.com","password":"secret1"}`)

	if wrongPassword.Code != http.StatusBadRequest || unknownEmail.Code != http.StatusBadRequest {
		t.Fatalf("got %d and %d, want 400 twice", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("responses differ: %s vs %s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
	if hasher.verifies != 2 {
		t.Fatalf("both failures should run one password check, got %d", hasher.verifies)
	}
	if metrics["login:rejected"] != 2 {
		t.Fatalf("expected 2 rejected logins, got %v", metrics)
	}
	if len(tokens.issued) != 0 {
		t.Fatalf("no token may be issued on failure")
	}

	ok := serve(r, http.MethodPost, "/api/auth", `{"email":"jane@example.com","password":"secret1"}`)
	if ok.Code != http.StatusOK {
		t.Fatalf("login got %d, body=%s", ok.Code, ok.Body.String())
	}
	if !strings.Contains(ok.Body.String(), "token-for-u1") {
		t.Fatalf("unexpected body %s", ok.Body.String())
	}
}

// strictHasher fails when the context is done, like the worker pool does, and
// can be told to fail its next few Hash calls.
type strictHasher struct {
	failHashes int
	verified   []string
}

func (f *strictHasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.failHashes > 0 {
		f.failHashes--
		return "", errors.New("pool saturated")
	}
	return "hashed:" + plain, nil
}

func (f *strictHasher) Verify(_ context.Context, plain, hash string) (bool, error) {
	f.verified = append(f.verified, hash)
	return hash == "hashed:"+plain, nil
}

func TestLoginHandler_DecoySurvivesCancelledFirstCaller(t *testing.T) {
	hasher := &strictHasher{}
	h := handlers.NewAuthHandler(&fakeUsersRepo{}, &fakeUsersRepo{}, hasher, &fakeTokens{}, nil, testConfig())
	r := setupRouter(http.MethodPost, "/api/auth", h.Login)

	cctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"email":"ghost@example.com","password":"secret1"}`)).WithContext(cctx)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	serve(r, http.MethodPost, "/api/auth", `{"email":"ghost@example.com","password":"secret1"}`)

	if len(hasher.verified) != 2 {
		t.Fatalf("expected 2 password checks, got %d", len(hasher.verified))
	}
	for i, hash := range hasher.verified {
		if hash == "" {
			t.Fatalf("check %d ran against an empty decoy hash", i)
		}
	}
}

func TestLoginHandler_DecoyRetriedAfterFailure(t *testing.T) {
	hasher := &strictHasher{failHashes: 1}
	h := handlers.NewAuthHandler(&fakeUsersRepo{}, &fakeUsersRepo{}, hasher, &fakeTokens{}, nil, testConfig())
	r := setupRouter(http.MethodPost, "/api/auth", h.Login)

	first := serve(r, http.MethodPost, "/api/auth", `{"email":"ghost@example.com","password":"secret1"}`)
	second := serve(r, http.MethodPost, "/api/auth", `{"email":"ghost@example.com","password":"secret1"}`)

	if first.Code != http.StatusBadRequest || second.Code != http.StatusBadRequest {
		t.Fatalf("got %d and %d, want 400 twice", first.Code, second.Code)
	}
	if len(hasher.verified) != 2 || hasher.verified[1] != "hashed:decoy-password-never-matches" {
		t.Fatalf("decoy was not rebuilt after a failed attempt: %v", hasher.verified)
	}
}

func TestLoginHandler_AcceptsPaddedEmail(t *testing.T) {
	var looked string
	repo := &fakeUsersRepo{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			looked = email
			return user.User{ID: "u1", Email: "jane@example.com", PasswordHash: "hashed:secret1"}, nil
		},
	}
	h := handlers.NewAuthHandler(repo, repo, &fakeHasher{}, &fakeTokens{}, nil, testConfig())

	w := serve(setupRouter(http.MethodPost, "/api/auth", h.Login), http.MethodPost, "/api/auth", `{"email":"  Jane@Example.com ","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}
	if looked != "jane@example.com" {
		t.Fatalf("lookup used %q, want normalised email", looked)
	}
}

func TestLoginHandler_StoreFailureIsServerError(t *testing.T) {
	repo := &fakeUsersRepo{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			return user.User{}, context.DeadlineExceeded
		},
	}

	h := handlers.NewAuthHandler(repo, repo, &fakeHasher{}, &fakeTokens{}, nil, testConfig())
	r := setupRouter(http.MethodPost, "/api/auth", h.Login)

	w := serve(r, http.MethodPost, "/api/auth", `{"email":"jane@example.com","password":"secret1"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "deadline") {
		t.Fatalf("store error leaked: %s", w.Body.String())
	}
}

func TestMeHandler(t *testing.T) {
	repo := &fakeUsersRepo{
		getByIDFn: func(ctx context.Context, id string) (user.User, error) {
			if id == "u1" {
				return user.User{ID: "u1", Name: "Jane", PasswordHash: "hashed:x"}, nil
			}
			return user.User{}, user.ErrNotFound
		},
	}
	h := handlers.NewAuthHandler(repo, repo, &fakeHasher{}, &fakeTokens{}, nil, testConfig())

	w := serve(setupRouter(http.MethodGet, "/api/auth", withUser("u1", h.Me)), http.MethodGet, "/api/auth", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hashed") {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}

	w = serve(setupRouter(http.MethodGet, "/api/auth", withUser("gone", h.Me)), http.MethodGet, "/api/auth", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", w.Code)
	}
}
