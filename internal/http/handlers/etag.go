package handlers

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/geocoder89/devconnector/internal/domain/profile"
	"github.com/gin-gonic/gin"
)

// Profiles change only through writes that bump UpdatedAt, and owners are
// immutable, so id + UpdatedAt identifies a representation without
// serialising it twice.

func RespondProfileWithETag(ctx *gin.Context, p profile.Profile) {
	respondWithETag(ctx, profilesETag(p), p)
}

func RespondProfilesWithETag(ctx *gin.Context, list []profile.Profile) {
	respondWithETag(ctx, profilesETag(list...), list)
}

func respondWithETag(ctx *gin.Context, etag string, payload any) {
	ctx.Header("ETag", etag)

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(http.StatusOK, payload)
}

// profilesETag is a weak validator over the listed profiles in order. An
// empty list still gets a stable tag.
func profilesETag(list ...profile.Profile) string {
	h := sha256.New()
	var ts [8]byte

	for _, p := range list {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(ts[:], uint64(p.UpdatedAt.UnixNano()))
		h.Write(ts[:])
	}

	return `W/"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

func ifNoneMatchMatches(headerValue, currentETag string) bool {
	if strings.TrimSpace(headerValue) == "" {
		return false
	}

	if strings.TrimSpace(headerValue) == "*" {
		return true
	}

	current := normalizeETag(currentETag)

	for _, part := range strings.Split(headerValue, ",") {
		if normalizeETag(part) == current {
			return true
		}
	}

	return false
}

// weak comparison, so W/"x" matches "x"
func normalizeETag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "W/")
}
