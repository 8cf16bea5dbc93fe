package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"citizen-voice/internal/model"
)

type mongoAuditEntry struct {
	Action     string           `bson:"action"`
	OccurredAt time.Time        `bson:"occurred_at"`
	Actor      model.AuditActor `bson:"actor"`
	Status     string           `bson:"status"`
	Resource   string           `bson:"resource,omitempty"`
	Details    any              `bson:"details,omitempty"`
	Error      string           `bson:"error,omitempty"`
}

type MongoAuditRepository struct {
	entries *mongo.Collection
}

func NewMongoAuditRepository(ctx context.Context, db *mongo.Database) (*MongoAuditRepository, error) {
	entries := db.Collection("audit_entries")

	_, err := entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "actor.userid", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create audit indexes: %w", err)
	}

	return &MongoAuditRepository{entries: entries}, nil
}

func (r *MongoAuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	_, err = r.entries.InsertOne(ctx, mongoAuditEntry{
		Action:     entry.Action,
		OccurredAt: occurredAt,
		Actor:      entry.Actor,
		Status:     entry.Status,
		Resource:   entry.Resource,
		Details:    entry.Details,
		Error:      entry.Error,
	})
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

func (r *MongoAuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	filter := bson.M{}
	if action := strings.TrimSpace(query.Action); action != "" {
		filter["action"] = action
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		filter["actor.userid"] = actorID
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		filter["status"] = strings.ToLower(status)
	}

	window := bson.M{}
	if from, err := time.Parse(time.RFC3339, strings.TrimSpace(query.From)); err == nil {
		window["$gte"] = from
	}
	if to, err := time.Parse(time.RFC3339, strings.TrimSpace(query.To)); err == nil {
		window["$lte"] = to
	}
	if len(window) > 0 {
		filter["occurred_at"] = window
	}

	total, err := r.entries.CountDocuments(ctx, filter)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, int(total))

	cursor, err := r.entries.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetSkip(int64(meta.Offset())).
		SetLimit(int64(meta.Limit)))
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoAuditEntry
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, model.Meta{}, fmt.Errorf("decode audit entries: %w", err)
	}

	entries := make([]model.AuditEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, model.AuditEntry{
			Action:     d.Action,
			OccurredAt: d.OccurredAt.UTC().Format(time.RFC3339Nano),
			Actor:      d.Actor,
			Status:     d.Status,
			Resource:   d.Resource,
			Details:    d.Details,
			Error:      d.Error,
		})
	}
	return entries, meta, nil
}
