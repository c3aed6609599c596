package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/devconnector/internal/db"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type observer struct {
	prom *observability.Prom
}

func (o observer) observe(op string, fn func() error) error {
	if o.prom != nil {
		return o.prom.ObserveDB(op, fn)
	}
	return fn()
}

type UsersRepo struct {
	observer
	users    *mongo.Collection
	profiles *mongo.Collection
}

func NewUsersRepo(mdb *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		observer: observer{prom: prom},
		users:    mdb.Collection(db.UsersCollection),
		profiles: mdb.Collection(db.ProfilesCollection),
	}
}

// Create relies on the unique email index to settle concurrent registrations.
func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, e := r.users.InsertOne(ctx, u)
		return e
	})

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_email", bson.D{{Key: "email", Value: user.NormalizeEmail(email)}})
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_id", bson.D{{Key: "_id", Value: id}})
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter bson.D) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		return r.users.FindOne(ctx, filter).Decode(&u)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// Delete removes the user and its profile; there is no foreign key to do it for us.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult

	err := r.observe("users.delete", func() error {
		if _, e := r.profiles.DeleteOne(ctx, bson.D{{Key: "user", Value: id}}); e != nil {
			return e
		}

		var e error
		res, e = r.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
		return e
	})

	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}

	return nil
}
