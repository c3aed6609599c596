package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/devconnector/internal/domain/profile"
	"github.com/geocoder89/devconnector/internal/domain/user"
)

// Store keeps users and profiles in process memory. A single lock makes
// every operation atomic, which is what the SQL and Mongo backends get from
// their conditional updates.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User       // {"id": user}
	byEmail  map[string]string          // {"email": id}
	profiles map[string]profile.Profile // {"userID": profile}
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]user.User),
		byEmail:  make(map[string]string),
		profiles: make(map[string]profile.Profile),
	}
}

func (s *Store) Users() *UsersRepo {
	return &UsersRepo{s: s}
}

func (s *Store) Profiles() *ProfilesRepo {
	return &ProfilesRepo{s: s}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type UsersRepo struct {
	s *Store
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.byEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	r.s.users[u.ID] = u
	r.s.byEmail[u.Email] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return r.s.users[id], nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

// Delete removes the user and, like the SQL foreign key, its profile.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.s.users, id)
	delete(r.s.byEmail, u.Email)
	delete(r.s.profiles, id)

	return nil
}

type ProfilesRepo struct {
	s *Store
}

// populate must be called with the lock held.
func (r *ProfilesRepo) populate(p profile.Profile) profile.Profile {
	u := r.s.users[p.UserID]
	p.User = profile.Owner{ID: p.UserID, Name: u.Name, Avatar: u.Avatar}
	return p
}

func (r *ProfilesRepo) GetByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}

	return r.populate(p), nil
}

func (r *ProfilesRepo) List(ctx context.Context) ([]profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]profile.Profile, 0, len(r.s.profiles))
	for _, p := range r.s.profiles {
		out = append(out, r.populate(p))
	}

	// stable ordering, oldest first like the SQL backend
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (r *ProfilesRepo) Upsert(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return profile.Profile{}, user.ErrNotFound
	}

	existing, ok := r.s.profiles[userID]

	var p profile.Profile
	if ok {
		p = profile.Apply(existing, patch)
		p.UpdatedAt = time.Now().UTC()
	} else {
		p = profile.New(userID, patch)
	}

	r.s.profiles[userID] = p

	return r.populate(p), nil
}

func (r *ProfilesRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[userID]; !ok {
		return profile.ErrNotFound
	}

	delete(r.s.profiles, userID)

	return nil
}

func (r *ProfilesRepo) mutate(ctx context.Context, userID string, fn func(*profile.Profile) error) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}

	if err := fn(&p); err != nil {
		return profile.Profile{}, err
	}

	p.UpdatedAt = time.Now().UTC()
	r.s.profiles[userID] = p

	return r.populate(p), nil
}

func (r *ProfilesRepo) AddExperience(ctx context.Context, userID string, e profile.Experience) (profile.Profile, error) {
	return r.mutate(ctx, userID, func(p *profile.Profile) error {
		p.Experience = profile.PrependExperience(p.Experience, e)
		return nil
	})
}

func (r *ProfilesRepo) RemoveExperience(ctx context.Context, userID, entryID string) (profile.Profile, error) {
	return r.mutate(ctx, userID, func(p *profile.Profile) error {
		list, err := profile.RemoveExperience(p.Experience, entryID)
		if err != nil {
			return err
		}
		p.Experience = list
		return nil
	})
}

func (r *ProfilesRepo) AddEducation(ctx context.Context, userID string, e profile.Education) (profile.Profile, error) {
	return r.mutate(ctx, userID, func(p *profile.Profile) error {
		p.Education = profile.PrependEducation(p.Education, e)
		return nil
	})
}

func (r *ProfilesRepo) RemoveEducation(ctx context.Context, userID, entryID string) (profile.Profile, error) {
	return r.mutate(ctx, userID, func(p *profile.Profile) error {
		list, err := profile.RemoveEducation(p.Education, entryID)
		if err != nil {
			return err
		}
		p.Education = list
		return nil
	})
}
