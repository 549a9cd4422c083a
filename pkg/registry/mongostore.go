package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoStore reads tenant descriptors from a MongoDB control plane, for
// deployments whose shared registry lives in Mongo rather than Postgres.
// The tenant databases themselves stay whatever the descriptors point at;
// only the control-plane storage differs.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the control-plane tenants collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("tenants")}
}

// mongoDescriptor is the document shape; the _id is the tenant UUID stored
// as its canonical string form.
type mongoDescriptor struct {
	ID        string           `bson:"_id"`
	Slug      string           `bson:"slug"`
	Target    ConnectionTarget `bson:"target"`
	Active    bool             `bson:"active"`
	Version   int64            `bson:"version"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

// FetchDescriptor implements Store.
func (s *MongoStore) FetchDescriptor(ctx context.Context, tenantID string) (*TenantDescriptor, error) {
	if tenantID == "" {
		return nil, ErrInvalidIdentifier
	}

	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "_id", Value: tenantID}},
		bson.D{{Key: "slug", Value: tenantID}},
	}}}

	var doc mongoDescriptor
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTenantNotFound
		}
		return nil, errors.Join(ErrRegistryUnavailable, err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, errors.Join(ErrRegistryUnavailable, err)
	}

	return &TenantDescriptor{
		ID:        id,
		Slug:      doc.Slug,
		Target:    doc.Target,
		Active:    doc.Active,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
