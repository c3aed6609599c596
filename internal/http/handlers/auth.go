package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/geocoder89/devconnector/internal/config"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, u user.User) (user.User, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type AuthMetrics interface {
	AuthAttempt(kind, result string)
}

const invalidCredentials = "Invalid Credentials"

type AuthHandler struct {
	users        UserReader
	userWriter   UserWriter
	hasher       PasswordHasher
	jwt          TokenIssuer
	metrics      AuthMetrics
	storeTimeout time.Duration

	// decoy hash compared against when the email is unknown, so both login
	// failures cost one bcrypt comparison
	decoyMu sync.Mutex
	decoy   string
}

func NewAuthHandler(users UserReader, userWriter UserWriter, hasher PasswordHasher, jwt TokenIssuer, metrics AuthMetrics, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:        users,
		userWriter:   userWriter,
		hasher:       hasher,
		jwt:          jwt,
		metrics:      metrics,
		storeTimeout: cfg.StoreTimeout,
	}
}

func (h *AuthHandler) attempt(kind, result string) {
	if h.metrics != nil {
		h.metrics.AuthAttempt(kind, result)
	}
}

// Register creates an account and returns a session token.
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		h.attempt("register", "invalid")
		return
	}
	req.Email = user.NormalizeEmail(req.Email)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.storeTimeout)
	defer cancel()

	// fast path only; the unique index below is what actually guards the email
	_, err := h.users.GetByEmail(cctx, req.Email)
	switch {
	case err == nil:
		h.attempt("register", "exists")
		RespondBadRequest(ctx, "User already exists")
		return
	case !errors.Is(err, user.ErrNotFound):
		RespondInternal(ctx, "register lookup", err)
		return
	}

	// hashing runs under the request context, not the store deadline
	hash, err := h.hasher.Hash(ctx.Request.Context(), req.Password)
	if err != nil {
		RespondInternal(ctx, "hash password", err)
		return
	}

	wctx, wcancel := config.WithTimeout(ctx.Request.Context(), h.storeTimeout)
	defer wcancel()

	u, err := h.userWriter.Create(wctx, user.New(req.Name, req.Email, hash))
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.attempt("register", "exists")
			RespondBadRequest(ctx, "User already exists")
			return
		}
		RespondInternal(ctx, "create user", err)
		return
	}

	token, err := h.jwt.Issue(u.ID)
	if err != nil {
		RespondInternal(ctx, "issue token", err)
		return
	}

	h.attempt("register", "ok")
	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		h.attempt("login", "invalid")
		return
	}
	req.Email = user.NormalizeEmail(req.Email)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.storeTimeout)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		RespondInternal(ctx, "login lookup", err)
		return
	}

	hash := found.PasswordHash
	if err != nil {
		hash = h.decoyHash(ctx.Request.Context())
	}

	ok, verr := h.hasher.Verify(ctx.Request.Context(), req.Password, hash)
	if verr != nil && err == nil {
		RespondInternal(ctx, "verify password", verr)
		return
	}

	if err != nil || !ok {
		h.attempt("login", "rejected")
		RespondBadRequest(ctx, invalidCredentials)
		return
	}

	token, err := h.jwt.Issue(found.ID)
	if err != nil {
		RespondInternal(ctx, "issue token", err)
		return
	}

	h.attempt("login", "ok")
	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

// decoyHash is built once, detached from the caller's cancellation. A failed
// attempt is not cached; the next unknown-email login retries.
func (h *AuthHandler) decoyHash(ctx context.Context) string {
	h.decoyMu.Lock()
	defer h.decoyMu.Unlock()

	if h.decoy != "" {
		return h.decoy
	}

	hash, err := h.hasher.Hash(context.WithoutCancel(ctx), "decoy-password-never-matches")
	if err != nil {
		slog.ErrorContext(ctx, "build decoy hash", "err", err)
		return ""
	}

	h.decoy = hash
	return h.decoy
}

// Me returns the authenticated user without the password hash.
func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondMsg(ctx, http.StatusUnauthorized, "No token, authorization denied")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.storeTimeout)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "get current user", err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}
