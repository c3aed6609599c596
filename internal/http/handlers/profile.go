package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/devconnector/internal/config"
	"github.com/geocoder89/devconnector/internal/domain/profile"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/github"
	"github.com/geocoder89/devconnector/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type ProfilesRepository interface {
	GetByUserID(ctx context.Context, userID string) (profile.Profile, error)
	List(ctx context.Context) ([]profile.Profile, error)
	Upsert(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error)
	DeleteByUserID(ctx context.Context, userID string) error
	AddExperience(ctx context.Context, userID string, e profile.Experience) (profile.Profile, error)
	RemoveExperience(ctx context.Context, userID, entryID string) (profile.Profile, error)
	AddEducation(ctx context.Context, userID string, e profile.Education) (profile.Profile, error)
	RemoveEducation(ctx context.Context, userID, entryID string) (profile.Profile, error)
}

type UserDeleter interface {
	Delete(ctx context.Context, id string) error
}

type RepoLister interface {
	Repos(ctx context.Context, username string) ([]github.Repo, error)
}

const noProfile = "There is no profile for this user"

type ProfileHandler struct {
	profiles     ProfilesRepository
	users        UserDeleter
	github       RepoLister
	storeTimeout time.Duration
}

func NewProfileHandler(profiles ProfilesRepository, users UserDeleter, gh RepoLister, cfg config.Config) *ProfileHandler {
	return &ProfileHandler{
		profiles:     profiles,
		users:        users,
		github:       gh,
		storeTimeout: cfg.StoreTimeout,
	}
}

func (h *ProfileHandler) storeCtx(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return config.WithTimeout(ctx.Request.Context(), h.storeTimeout)
}

// currentUser reads the id set by the auth middleware; routes without it
// are a wiring bug, answered as unauthenticated.
func currentUser(ctx *gin.Context) (string, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondMsg(ctx, http.StatusUnauthorized, "No token, authorization denied")
	}
	return id, ok
}

func (h *ProfileHandler) Me(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.GetByUserID(cctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			RespondMsg(ctx, http.StatusBadRequest, noProfile)
			return
		}
		RespondInternal(ctx, "get own profile", err)
		return
	}

	ctx.JSON(http.StatusOK, p)
}

// Upsert creates the caller's profile or merges the supplied fields into it.
func (h *ProfileHandler) Upsert(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req profile.UpsertRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.Upsert(cctx, userID, req.Patch())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "upsert profile", err)
		return
	}

	ctx.JSON(http.StatusOK, p)
}

func (h *ProfileHandler) List(ctx *gin.Context) {
	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	list, err := h.profiles.List(cctx)
	if err != nil {
		RespondInternal(ctx, "list profiles", err)
		return
	}

	RespondProfilesWithETag(ctx, list)
}

func (h *ProfileHandler) GetByUserID(ctx *gin.Context) {
	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.GetByUserID(cctx, ctx.Param("user_id"))
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			RespondMsg(ctx, http.StatusBadRequest, "Profile not found")
			return
		}
		RespondInternal(ctx, "get profile", err)
		return
	}

	RespondProfileWithETag(ctx, p)
}

// Delete removes the caller's profile and then the account. The two steps
// are not atomic across every store; a failure between them is logged as a
// data-integrity event.
func (h *ProfileHandler) Delete(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	profileRemoved := true
	if err := h.profiles.DeleteByUserID(cctx, userID); err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			RespondInternal(ctx, "delete profile", err)
			return
		}
		profileRemoved = false
	}

	if err := h.users.Delete(cctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		if profileRemoved {
			slog.ErrorContext(ctx.Request.Context(), "data integrity: profile deleted but user delete failed",
				"user_id", userID,
				"err", err,
				"request_id", middlewares.RequestIDFrom(ctx),
			)
		}
		RespondInternal(ctx, "delete user", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"msg": "User removed"})
}

func (h *ProfileHandler) AddExperience(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req profile.ExperienceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	entry, err := req.Entry()
	if err != nil {
		respondDateError(ctx, err)
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.AddExperience(cctx, userID, entry)
	h.respondListMutation(ctx, "add experience", "Experience not found", p, err)
}

func (h *ProfileHandler) RemoveExperience(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.RemoveExperience(cctx, userID, ctx.Param("exp_id"))
	h.respondListMutation(ctx, "remove experience", "Experience not found", p, err)
}

func (h *ProfileHandler) AddEducation(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req profile.EducationRequest
	if !BindJSON(ctx, &req) {
		return
	}

	entry, err := req.Entry()
	if err != nil {
		respondDateError(ctx, err)
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.AddEducation(cctx, userID, entry)
	h.respondListMutation(ctx, "add education", "Education not found", p, err)
}

func (h *ProfileHandler) RemoveEducation(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	cctx, cancel := h.storeCtx(ctx)
	defer cancel()

	p, err := h.profiles.RemoveEducation(cctx, userID, ctx.Param("edu_id"))
	h.respondListMutation(ctx, "remove education", "Education not found", p, err)
}

func (h *ProfileHandler) respondListMutation(ctx *gin.Context, op, entryMissing string, p profile.Profile, err error) {
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, p)
	case errors.Is(err, profile.ErrNotFound):
		RespondMsg(ctx, http.StatusBadRequest, noProfile)
	case errors.Is(err, profile.ErrEntryNotFound):
		RespondNotFound(ctx, entryMissing)
	default:
		RespondInternal(ctx, op, err)
	}
}

func respondDateError(ctx *gin.Context, err error) {
	field := "from"

	var de *profile.DateError
	if errors.As(err, &de) {
		field = de.Field
	}

	RespondErrors(ctx, http.StatusBadRequest, FieldError{
		Msg:      "Please enter a valid date (YYYY-MM-DD)",
		Param:    field,
		Location: "body",
	})
}

// GitHubRepos proxies the public repository listing for a GitHub user.
func (h *ProfileHandler) GitHubRepos(ctx *gin.Context) {
	if h.github == nil {
		RespondNotFound(ctx, "No Github profile found")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	repos, err := h.github.Repos(cctx, ctx.Param("username"))
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			RespondNotFound(ctx, "No Github profile found")
			return
		}
		if errors.Is(err, github.ErrCircuitOpen) {
			RespondMsg(ctx, http.StatusServiceUnavailable, "GitHub is unavailable, please try again later")
			return
		}
		RespondInternal(ctx, "github repos", err)
		return
	}

	ctx.JSON(http.StatusOK, repos)
}
