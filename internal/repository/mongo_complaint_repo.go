package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"citizen-voice/internal/model"
)

type mongoComplaint struct {
	ID             primitive.ObjectID        `bson:"_id,omitempty"`
	Title          string                    `bson:"title"`
	Description    string                    `bson:"description"`
	Category       model.Category            `bson:"category"`
	Location       string                    `bson:"location"`
	CitizenID      string                    `bson:"citizen"`
	AssignedAgency string                    `bson:"assigned_agency"`
	Status         model.ComplaintStatus     `bson:"status"`
	Responses      []model.ComplaintResponse `bson:"responses"`
	History        []model.ComplaintHistory  `bson:"history"`
	CreatedAt      time.Time                 `bson:"created_at"`
	UpdatedAt      time.Time                 `bson:"updated_at"`
}

func (d mongoComplaint) toModel() model.Complaint {
	c := model.Complaint{
		ID:             d.ID.Hex(),
		Title:          d.Title,
		Description:    d.Description,
		Category:       d.Category,
		Location:       d.Location,
		CitizenID:      d.CitizenID,
		AssignedAgency: d.AssignedAgency,
		Status:         d.Status,
		Responses:      d.Responses,
		History:        d.History,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if c.Responses == nil {
		c.Responses = []model.ComplaintResponse{}
	}
	if c.History == nil {
		c.History = []model.ComplaintHistory{}
	}
	return c
}

type MongoComplaintRepository struct {
	complaints *mongo.Collection
}

func NewMongoComplaintRepository(ctx context.Context, db *mongo.Database) (*MongoComplaintRepository, error) {
	complaints := db.Collection("complaints")

	_, err := complaints.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "citizen", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "assigned_agency", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "assigned_agency", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create complaint indexes: %w", err)
	}

	return &MongoComplaintRepository{complaints: complaints}, nil
}

func (r *MongoComplaintRepository) Create(ctx context.Context, c model.Complaint) (model.Complaint, error) {
	doc := mongoComplaint{
		ID:             primitive.NewObjectID(),
		Title:          c.Title,
		Description:    c.Description,
		Category:       c.Category,
		Location:       c.Location,
		CitizenID:      c.CitizenID,
		AssignedAgency: c.AssignedAgency,
		Status:         c.Status,
		Responses:      c.Responses,
		History:        c.History,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if doc.Responses == nil {
		doc.Responses = []model.ComplaintResponse{}
	}
	if doc.History == nil {
		doc.History = []model.ComplaintHistory{}
	}

	if _, err := r.complaints.InsertOne(ctx, doc); err != nil {
		return model.Complaint{}, fmt.Errorf("create complaint: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoComplaintRepository) FindByID(ctx context.Context, id string) (model.Complaint, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Complaint{}, model.ErrComplaintNotFound
	}

	var doc mongoComplaint
	err = r.complaints.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Complaint{}, model.ErrComplaintNotFound
	}
	if err != nil {
		return model.Complaint{}, fmt.Errorf("find complaint: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoComplaintRepository) List(ctx context.Context, filter model.ComplaintFilter) ([]model.Complaint, error) {
	query := bson.M{}
	if filter.CitizenID != "" {
		query["citizen"] = filter.CitizenID
	}
	if filter.AssignedAgency != "" {
		query["assigned_agency"] = filter.AssignedAgency
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}

	cursor, err := r.complaints.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoComplaint
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode complaints: %w", err)
	}

	out := make([]model.Complaint, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r *MongoComplaintRepository) Save(ctx context.Context, c model.Complaint) error {
	oid, err := primitive.ObjectIDFromHex(c.ID)
	if err != nil {
		return model.ErrComplaintNotFound
	}

	res, err := r.complaints.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"assigned_agency": c.AssignedAgency,
		"status":          c.Status,
		"responses":       c.Responses,
		"history":         c.History,
		"updated_at":      c.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("save complaint: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrComplaintNotFound
	}
	return nil
}

func (r *MongoComplaintRepository) AssignUnassigned(ctx context.Context, category model.Category, agencyID string) (int64, error) {
	res, err := r.complaints.UpdateMany(ctx,
		bson.M{"category": category, "assigned_agency": ""},
		bson.M{"$set": bson.M{"assigned_agency": agencyID, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("assign unassigned complaints: %w", err)
	}
	return res.ModifiedCount, nil
}
