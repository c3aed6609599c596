package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/devconnector/internal/db"
	"github.com/geocoder89/devconnector/internal/domain/profile"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProfilesRepo struct {
	observer
	users    *mongo.Collection
	profiles *mongo.Collection
}

func NewProfilesRepo(mdb *mongo.Database, prom *observability.Prom) *ProfilesRepo {
	return &ProfilesRepo{
		observer: observer{prom: prom},
		users:    mdb.Collection(db.UsersCollection),
		profiles: mdb.Collection(db.ProfilesCollection),
	}
}

// populatedProfile is the shape produced by the $lookup pipeline.
type populatedProfile struct {
	profile.Profile `bson:",inline"`
	Owner           []profile.Owner `bson:"owner"`
}

func (pp populatedProfile) result() profile.Profile {
	p := normalize(pp.Profile)
	p.User = profile.Owner{ID: p.UserID}
	if len(pp.Owner) > 0 {
		p.User = pp.Owner[0]
	}
	return p
}

func normalize(p profile.Profile) profile.Profile {
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Experience == nil {
		p.Experience = []profile.Experience{}
	}
	if p.Education == nil {
		p.Education = []profile.Education{}
	}
	return p
}

func (r *ProfilesRepo) pipeline(match bson.D) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: db.UsersCollection},
			{Key: "localField", Value: "user"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "owner"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "owner.password", Value: 0},
			{Key: "owner.email", Value: 0},
			{Key: "owner.date", Value: 0},
		}}},
	}
}

func (r *ProfilesRepo) aggregate(ctx context.Context, op string, match bson.D) ([]profile.Profile, error) {
	var docs []populatedProfile

	err := r.observe(op, func() error {
		cur, e := r.profiles.Aggregate(ctx, r.pipeline(match))
		if e != nil {
			return e
		}
		return cur.All(ctx, &docs)
	})

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]profile.Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.result())
	}

	return out, nil
}

func (r *ProfilesRepo) GetByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	list, err := r.aggregate(ctx, "profiles.get_by_user", bson.D{{Key: "user", Value: userID}})
	if err != nil {
		return profile.Profile{}, err
	}

	if len(list) == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}

	return list[0], nil
}

func (r *ProfilesRepo) List(ctx context.Context) ([]profile.Profile, error) {
	return r.aggregate(ctx, "profiles.list", bson.D{})
}

// populate attaches the owner to a document returned by a write.
func (r *ProfilesRepo) populate(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	p = normalize(p)
	p.User = profile.Owner{ID: p.UserID}

	err := r.observe("profiles.populate_owner", func() error {
		return r.users.FindOne(ctx, bson.D{{Key: "_id", Value: p.UserID}},
			options.FindOne().SetProjection(bson.D{{Key: "name", Value: 1}, {Key: "avatar", Value: 1}}),
		).Decode(&p.User)
	})

	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return profile.Profile{}, fmt.Errorf("populate owner: %w", err)
	}

	return p, nil
}

// Upsert is one FindOneAndUpdate: $set carries the supplied fields and
// $setOnInsert seeds everything else for a brand new document.
func (r *ProfilesRepo) Upsert(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error) {
	var owners int64
	err := r.observe("profiles.upsert.check_user", func() error {
		var e error
		owners, e = r.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: userID}})
		return e
	})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	if owners == 0 {
		return profile.Profile{}, user.ErrNotFound
	}

	fresh := profile.New(userID, profile.Patch{})
	now := time.Now().UTC()

	set := bson.D{{Key: "updated_at", Value: now}}
	onInsert := bson.D{
		{Key: "_id", Value: fresh.ID},
		{Key: "experience", Value: bson.A{}},
		{Key: "education", Value: bson.A{}},
		{Key: "date", Value: now},
	}

	setField := func(key string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: key, Value: *v})
		}
	}

	setField("company", patch.Company)
	setField("website", patch.Website)
	setField("location", patch.Location)
	setField("status", patch.Status)
	setField("bio", patch.Bio)
	setField("githubusername", patch.GitHubUsername)
	setField("social.youtube", patch.Social.YouTube)
	setField("social.twitter", patch.Social.Twitter)
	setField("social.facebook", patch.Social.Facebook)
	setField("social.linkedin", patch.Social.LinkedIn)
	setField("social.instagram", patch.Social.Instagram)

	if patch.Skills != nil {
		set = append(set, bson.E{Key: "skills", Value: patch.Skills})
	} else {
		onInsert = append(onInsert, bson.E{Key: "skills", Value: bson.A{}})
	}

	var p profile.Profile

	err = r.observe("profiles.upsert", func() error {
		return r.profiles.FindOneAndUpdate(ctx,
			bson.D{{Key: "user", Value: userID}},
			bson.D{{Key: "$set", Value: set}, {Key: "$setOnInsert", Value: onInsert}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&p)
	})

	if err != nil {
		return profile.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}

	return r.populate(ctx, p)
}

func (r *ProfilesRepo) DeleteByUserID(ctx context.Context, userID string) error {
	var res *mongo.DeleteResult

	err := r.observe("profiles.delete", func() error {
		var e error
		res, e = r.profiles.DeleteOne(ctx, bson.D{{Key: "user", Value: userID}})
		return e
	})

	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	if res.DeletedCount == 0 {
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

func (r *ProfilesRepo) prepend(ctx context.Context, field, userID string, entry any) (profile.Profile, error) {
	var p profile.Profile
	op := "profiles.add_" + field

	err := r.observe(op, func() error {
		return r.profiles.FindOneAndUpdate(ctx,
			bson.D{{Key: "user", Value: userID}},
			bson.D{
				{Key: "$push", Value: bson.D{{Key: field, Value: bson.D{
					{Key: "$each", Value: bson.A{entry}},
					{Key: "$position", Value: 0},
				}}}},
				{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&p)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return r.populate(ctx, p)
}

func (r *ProfilesRepo) remove(ctx context.Context, field, userID, entryID string) (profile.Profile, error) {
	var p profile.Profile
	op := "profiles.remove_" + field

	// matching on the entry id makes a missing entry a miss, not a silent no-op
	err := r.observe(op, func() error {
		return r.profiles.FindOneAndUpdate(ctx,
			bson.D{{Key: "user", Value: userID}, {Key: field + "._id", Value: entryID}},
			bson.D{
				{Key: "$pull", Value: bson.D{{Key: field, Value: bson.D{{Key: "_id", Value: entryID}}}}},
				{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&p)
	})

	if err == nil {
		return r.populate(ctx, p)
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	var n int64
	err = r.observe(op+".check_profile", func() error {
		var e error
		n, e = r.profiles.CountDocuments(ctx, bson.D{{Key: "user", Value: userID}})
		return e
	})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	return profile.Profile{}, profile.ErrEntryNotFound
}
