package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kaiin-app/authcore/internal/core/ports"
)

const auditCollection = "auth_events"

// AuditRepository persists the auth event trail (logins, logouts,
// provisioning outcomes, failures) consumed by the internal audit endpoint.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type auditEvent struct {
	SubjectID string    `bson:"subject_id" json:"subject_id"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Kind      string    `bson:"kind" json:"kind"`
	Detail    string    `bson:"detail,omitempty" json:"detail,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Record appends one auth event. Implements ports.ResolutionHook; invoked
// best-effort from the hook dispatcher.
func (r *AuditRepository) Record(ctx context.Context, res ports.Resolution) error {
	doc := auditEvent{
		SubjectID: res.SubjectID,
		Email:     res.Email,
		Kind:      string(res.Kind),
		Detail:    res.Detail,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

// AuditEntry is the read-side view returned to the internal endpoint.
type AuditEntry struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email,omitempty"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recent returns the latest limit events, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("audit find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []auditEvent
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("audit decode: %w", err)
	}

	entries := make([]AuditEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, AuditEntry{
			SubjectID: d.SubjectID,
			Email:     d.Email,
			Kind:      d.Kind,
			Detail:    d.Detail,
			CreatedAt: d.CreatedAt,
		})
	}
	return entries, nil
}
