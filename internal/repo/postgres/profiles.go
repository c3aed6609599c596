package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/devconnector/internal/domain/profile"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Every write here is a single statement. The CTE returns the written row
// joined with its owner so callers get a populated profile in one round trip.

const profileColumns = `
	p.id, p.user_id, p.company, p.website, p.location, p.status, p.bio,
	p.githubusername, p.skills, p.social, p.experience, p.education,
	p.created_at, p.updated_at, u.name, u.avatar`

type ProfilesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewProfilesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ProfilesRepo {
	return &ProfilesRepo{pool: pool, prom: prom}
}

func (r *ProfilesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanProfile(row pgx.Row) (profile.Profile, error) {
	var p profile.Profile

	err := row.Scan(
		&p.ID, &p.UserID, &p.Company, &p.Website, &p.Location, &p.Status, &p.Bio,
		&p.GitHubUsername, &p.Skills, &p.Social, &p.Experience, &p.Education,
		&p.CreatedAt, &p.UpdatedAt, &p.User.Name, &p.User.Avatar,
	)
	if err != nil {
		return profile.Profile{}, err
	}

	p.User.ID = p.UserID
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Experience == nil {
		p.Experience = []profile.Experience{}
	}
	if p.Education == nil {
		p.Education = []profile.Education{}
	}

	return p, nil
}

func (r *ProfilesRepo) GetByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	var p profile.Profile

	err := r.observe("profiles.get_by_user", func() error {
		var e error
		p, e = scanProfile(r.pool.QueryRow(ctx,
			`SELECT `+profileColumns+`
			 FROM profiles p JOIN users u ON u.id = p.user_id
			 WHERE p.user_id = $1`,
			userID,
		))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	return p, nil
}

func (r *ProfilesRepo) List(ctx context.Context) (profiles []profile.Profile, err error) {
	var rows pgx.Rows

	err = r.observe("profiles.list", func() error {
		var e error
		rows, e = r.pool.Query(ctx,
			`SELECT `+profileColumns+`
			 FROM profiles p JOIN users u ON u.id = p.user_id
			 ORDER BY p.created_at ASC, p.id ASC`,
		)
		return e
	})

	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	defer rows.Close()

	profiles = make([]profile.Profile, 0)

	for rows.Next() {
		p, e := scanProfile(rows)
		if e != nil {
			return nil, fmt.Errorf("scan profile: %w", e)
		}
		profiles = append(profiles, p)
	}

	if e := rows.Err(); e != nil {
		if r.prom != nil {
			r.prom.DbErrorsTotal.WithLabelValues("profiles.list", "rows_err").Inc()
		}
		return nil, fmt.Errorf("list profiles: %w", e)
	}

	return profiles, nil
}

// Upsert inserts a profile or merges patch into the existing one. NULL
// parameters stand for absent patch fields and keep the stored column.
func (r *ProfilesRepo) Upsert(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error) {
	fresh := profile.New(userID, profile.Patch{})

	var skills any
	if patch.Skills != nil {
		skills = patch.Skills
	}

	social, err := json.Marshal(socialPatchDoc(patch.Social))
	if err != nil {
		return profile.Profile{}, fmt.Errorf("encode social: %w", err)
	}

	var p profile.Profile

	err = r.observe("profiles.upsert", func() error {
		var e error
		p, e = scanProfile(r.pool.QueryRow(ctx, `
		WITH p AS (
			INSERT INTO profiles AS cur (
				id, user_id, company, website, location, status, bio, githubusername,
				skills, social, created_at, updated_at
			)
			VALUES (
				$1, $2,
				COALESCE($3::text, ''), COALESCE($4::text, ''), COALESCE($5::text, ''),
				COALESCE($6::text, ''), COALESCE($7::text, ''), COALESCE($8::text, ''),
				COALESCE($9::text[], '{}'::text[]), $10::jsonb, $11, $11
			)
			ON CONFLICT (user_id) DO UPDATE SET
				company        = COALESCE($3::text, cur.company),
				website        = COALESCE($4::text, cur.website),
				location       = COALESCE($5::text, cur.location),
				status         = COALESCE($6::text, cur.status),
				bio            = COALESCE($7::text, cur.bio),
				githubusername = COALESCE($8::text, cur.githubusername),
				skills         = COALESCE($9::text[], cur.skills),
				social         = cur.social || $10::jsonb,
				updated_at     = $11
			RETURNING *
		)
		SELECT `+profileColumns+`
		FROM p JOIN users u ON u.id = p.user_id`,
			fresh.ID, userID,
			patch.Company, patch.Website, patch.Location,
			patch.Status, patch.Bio, patch.GitHubUsername,
			skills, string(social), time.Now().UTC(),
		))
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return profile.Profile{}, user.ErrNotFound
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Profile{}, user.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}

	return p, nil
}

// socialPatchDoc keeps only supplied providers so the jsonb || merge leaves
// the others alone.
func socialPatchDoc(s profile.SocialPatch) map[string]string {
	doc := make(map[string]string, 5)

	put := func(k string, v *string) {
		if v != nil {
			doc[k] = *v
		}
	}

	put("youtube", s.YouTube)
	put("twitter", s.Twitter)
	put("facebook", s.Facebook)
	put("linkedin", s.LinkedIn)
	put("instagram", s.Instagram)

	return doc
}

func (r *ProfilesRepo) DeleteByUserID(ctx context.Context, userID string) error {
	var tag pgconn.CommandTag

	err := r.observe("profiles.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
		return e
	})

	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}

	return nil
}

func (r *ProfilesRepo) AddExperience(ctx context.Context, userID string, e profile.Experience) (profile.Profile, error) {
	return r.prepend(ctx, "experience", userID, e)
}

func (r *ProfilesRepo) AddEducation(ctx context.Context, userID string, e profile.Education) (profile.Profile, error) {
	return r.prepend(ctx, "education", userID, e)
}

func (r *ProfilesRepo) RemoveExperience(ctx context.Context, userID, entryID string) (profile.Profile, error) {
	return r.remove(ctx, "experience", userID, entryID)
}

func (r *ProfilesRepo) RemoveEducation(ctx context.Context, userID, entryID string) (profile.Profile, error) {
	return r.remove(ctx, "education", userID, entryID)
}

// column is always one of the two literals above, never caller input.
func (r *ProfilesRepo) prepend(ctx context.Context, column, userID string, entry any) (profile.Profile, error) {
	doc, err := json.Marshal(entry)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("encode %s entry: %w", column, err)
	}

	var p profile.Profile
	op := "profiles.add_" + column

	err = r.observe(op, func() error {
		var e error
		p, e = scanProfile(r.pool.QueryRow(ctx, fmt.Sprintf(`
		WITH p AS (
			UPDATE profiles
			SET %[1]s = jsonb_build_array($2::jsonb) || %[1]s,
			    updated_at = now()
			WHERE user_id = $1
			RETURNING *
		)
		SELECT `+profileColumns+`
		FROM p JOIN users u ON u.id = p.user_id`, column),
			userID, string(doc),
		))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *ProfilesRepo) remove(ctx context.Context, column, userID, entryID string) (profile.Profile, error) {
	var p profile.Profile
	op := "profiles.remove_" + column

	// The containment check in WHERE makes a missing entry match no row
	// instead of silently rewriting the list.
	err := r.observe(op, func() error {
		var e error
		p, e = scanProfile(r.pool.QueryRow(ctx, fmt.Sprintf(`
		WITH p AS (
			UPDATE profiles
			SET %[1]s = COALESCE((
					SELECT jsonb_agg(t.e ORDER BY t.ord)
					FROM jsonb_array_elements(%[1]s) WITH ORDINALITY AS t(e, ord)
					WHERE t.e->>'_id' <> $2
				), '[]'::jsonb),
			    updated_at = now()
			WHERE user_id = $1
			  AND %[1]s @> jsonb_build_array(jsonb_build_object('_id', $2::text))
			RETURNING *
		)
		SELECT `+profileColumns+`
		FROM p JOIN users u ON u.id = p.user_id`, column),
			userID, entryID,
		))
		return e
	})

	if err == nil {
		return p, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	var exists bool
	err = r.observe(op+".check_profile", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE user_id = $1)`, userID).Scan(&exists)
	})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return profile.Profile{}, profile.ErrNotFound
	}
	return profile.Profile{}, profile.ErrEntryNotFound
}
