package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/geocoder89/devconnector/internal/domain/profile"
)

const listKey = "profiles:all"

func userKey(userID string) string { return "profiles:user:" + userID }

// ProfileStore is the profile repository surface the decorator wraps.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (profile.Profile, error)
	List(ctx context.Context) ([]profile.Profile, error)
	Upsert(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error)
	DeleteByUserID(ctx context.Context, userID string) error
	AddExperience(ctx context.Context, userID string, e profile.Experience) (profile.Profile, error)
	RemoveExperience(ctx context.Context, userID, entryID string) (profile.Profile, error)
	AddEducation(ctx context.Context, userID string, e profile.Education) (profile.Profile, error)
	RemoveEducation(ctx context.Context, userID, entryID string) (profile.Profile, error)
}

type LookupRecorder interface {
	CacheLookup(result string)
}

// CachedProfiles serves profile reads from a Store and drops the affected
// keys after every successful write. Cache failures degrade to the
// underlying store.
type CachedProfiles struct {
	next  ProfileStore
	store Store
	rec   LookupRecorder
}

func NewCachedProfiles(next ProfileStore, store Store, rec LookupRecorder) *CachedProfiles {
	return &CachedProfiles{next: next, store: store, rec: rec}
}

func (c *CachedProfiles) record(result string) {
	if c.rec != nil {
		c.rec.CacheLookup(result)
	}
}

func (c *CachedProfiles) lookup(ctx context.Context, key string, out any) bool {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "cache get failed", "key", key, "err", err)
		c.record("error")
		return false
	}
	if !ok {
		c.record("miss")
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		c.record("error")
		return false
	}
	c.record("hit")
	return true
}

func (c *CachedProfiles) fill(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, b); err != nil {
		slog.WarnContext(ctx, "cache set failed", "key", key, "err", err)
	}
}

func (c *CachedProfiles) invalidate(ctx context.Context, userID string) {
	if err := c.store.Delete(ctx, listKey, userKey(userID)); err != nil {
		slog.WarnContext(ctx, "cache invalidate failed", "user_id", userID, "err", err)
	}
}

// cachedProfile keeps the owner id that the public JSON form hides.
type cachedProfile struct {
	profile.Profile
	UserID string `json:"userId"`
}

func wrap(p profile.Profile) cachedProfile {
	return cachedProfile{Profile: p, UserID: p.UserID}
}

func (cp cachedProfile) unwrap() profile.Profile {
	p := cp.Profile
	p.UserID = cp.UserID
	return p
}

func (c *CachedProfiles) GetByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	var hit cachedProfile
	if c.lookup(ctx, userKey(userID), &hit) {
		return hit.unwrap(), nil
	}

	p, err := c.next.GetByUserID(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}

	c.fill(ctx, userKey(userID), wrap(p))
	return p, nil
}

func (c *CachedProfiles) List(ctx context.Context) ([]profile.Profile, error) {
	var hit []cachedProfile
	if c.lookup(ctx, listKey, &hit) {
		out := make([]profile.Profile, 0, len(hit))
		for _, cp := range hit {
			out = append(out, cp.unwrap())
		}
		return out, nil
	}

	list, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}

	wrapped := make([]cachedProfile, 0, len(list))
	for _, p := range list {
		wrapped = append(wrapped, wrap(p))
	}
	c.fill(ctx, listKey, wrapped)

	return list, nil
}

func (c *CachedProfiles) Upsert(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error) {
	p, err := c.next.Upsert(ctx, userID, patch)
	if err == nil {
		c.invalidate(ctx, userID)
	}
	return p, err
}

func (c *CachedProfiles) DeleteByUserID(ctx context.Context, userID string) error {
	err := c.next.DeleteByUserID(ctx, userID)
	if err == nil {
		c.invalidate(ctx, userID)
	}
	return err
}

func (c *CachedProfiles) AddExperience(ctx context.Context, userID string, e profile.Experience) (profile.Profile, error) {
	p, err := c.next.AddExperience(ctx, userID, e)
	if err == nil {
		c.invalidate(ctx, userID)
	}
	return p, err
}

func (c *CachedProfiles) RemoveExperience(ctx context.Context, userID, entryID string) (profile.Profile, error) {
	p, err := c.next.RemoveExperience(ctx, userID, entryID)
	if err == nil {
		c.invalidate(ctx, userID)
	}
	return p, err
}

func (c *CachedProfiles) AddEducation(ctx context.Context, userID string, e profile.Education) (profile.Profile, error) {
	p, err := c.next.AddEducation(ctx, userID, e)
	if err == nil {
		c.invalidate(ctx, userID)
	}
	return p, err
}

func (c *CachedProfiles) RemoveEducation(ctx context.Context, userID, entryID string) (profile.Profile, error) {
	p, err := c.next.RemoveEducation(ctx, userID, entryID)
	if err == nil {
		c.invalidate(ctx, userID)
	}
	return p, err
}
