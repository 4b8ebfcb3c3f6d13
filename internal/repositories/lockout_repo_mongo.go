package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/internlink/auth-api/internal/database"
	"github.com/internlink/auth-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLockoutRepository is the document-store lockout backend. Expiry is
// delegated to a TTL index on created_at; the guard's staleness check covers
// the lag of the server's background expiry sweep.
type MongoLockoutRepository struct {
	coll *mongo.Collection
}

// NewMongoLockoutRepository creates a repository over the account_lockouts
// collection.
func NewMongoLockoutRepository(db *database.MongoDB) *MongoLockoutRepository {
	return &MongoLockoutRepository{coll: db.Database.Collection("account_lockouts")}
}

// EnsureIndexes creates the collection's indexes: the unique email key, the
// forensic (email, device_fingerprint) compound, and the TTL expiry on
// created_at. Safe to call repeatedly.
func (r *MongoLockoutRepository) EnsureIndexes(ctx context.Context) error {
	ttlSeconds := int32(models.LockoutWindow.Seconds())

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_lockouts_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "device_fingerprint", Value: 1}},
			Options: options.Index().SetName("idx_lockouts_email_fingerprint"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_lockouts_ttl").SetExpireAfterSeconds(ttlSeconds),
		},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// Get returns the lockout record for an email, or models.ErrNotFound
func (r *MongoLockoutRepository) Get(ctx context.Context, email string) (*models.LockoutRecord, error) {
	var rec models.LockoutRecord
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// RecordFailure creates or increments the record. This is a read-modify-write:
// two attempts racing here can both observe the pre-increment count, which
// the concurrency model accepts for a deterrence mechanism.
func (r *MongoLockoutRepository) RecordFailure(ctx context.Context, email, deviceFingerprint, userAgent string) (*models.LockoutRecord, error) {
	now := time.Now().UTC()

	existing, err := r.Get(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}

		rec := &models.LockoutRecord{
			Email:             email,
			Attempts:          1,
			LastAttempt:       now,
			DeviceFingerprint: deviceFingerprint,
			UserAgent:         userAgent,
			CreatedAt:         now,
		}
		if _, err := r.coll.InsertOne(ctx, rec); err != nil {
			// A concurrent first failure may have inserted already; fold
			// into the increment path.
			if mongo.IsDuplicateKeyError(err) {
				return r.increment(ctx, email, deviceFingerprint, userAgent, now)
			}
			return nil, err
		}
		return rec, nil
	}

	return r.incrementFrom(ctx, existing, deviceFingerprint, userAgent, now)
}

func (r *MongoLockoutRepository) increment(ctx context.Context, email, deviceFingerprint, userAgent string, now time.Time) (*models.LockoutRecord, error) {
	existing, err := r.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	return r.incrementFrom(ctx, existing, deviceFingerprint, userAgent, now)
}

func (r *MongoLockoutRepository) incrementFrom(ctx context.Context, existing *models.LockoutRecord, deviceFingerprint, userAgent string, now time.Time) (*models.LockoutRecord, error) {
	set := bson.M{
		"last_attempt":       now,
		"device_fingerprint": deviceFingerprint,
		"user_agent":         userAgent,
	}

	// The hard lock anchors to the record's creation, not to this attempt
	if existing.Attempts+1 >= models.MaxFailedAttempts && existing.LockedUntil == nil {
		set["locked_until"] = existing.CreatedAt.Add(models.LockoutWindow)
	}

	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)

	var rec models.LockoutRecord
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"email": existing.Email},
		bson.M{"$inc": bson.M{"attempts": 1}, "$set": set},
		opts,
	).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// TTL sweep removed the record mid-flight; surface as not found
			// so the caller logs it rather than inventing state.
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Delete removes the lockout record for an email; idempotent
func (r *MongoLockoutRepository) Delete(ctx context.Context, email string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"email": email})
	return err
}

// DeleteExpired sweeps records past the window. The TTL index normally owns
// expiry; this is the manual fallback when the index is absent or lagging.
func (r *MongoLockoutRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lte": time.Now().UTC().Add(-models.LockoutWindow)},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
