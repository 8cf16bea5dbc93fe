package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"citizen-voice/internal/model"
)

type mongoUser struct {
	ID               primitive.ObjectID         `bson:"_id,omitempty"`
	Name             string                     `bson:"name"`
	Email            string                     `bson:"email"`
	PasswordHash     string                     `bson:"password_hash"`
	Role             model.Role                 `bson:"role"`
	Category         model.Category             `bson:"category,omitempty"`
	Status           model.Status               `bson:"status"`
	ResetTokenHash   string                     `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiry *time.Time                 `bson:"reset_token_expiry,omitempty"`
	RefreshTokens    []model.RefreshTokenRecord `bson:"refresh_tokens"`
	CreatedAt        time.Time                  `bson:"created_at"`
	UpdatedAt        time.Time                  `bson:"updated_at"`
}

func (d mongoUser) toModel() model.User {
	return model.User{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		Role:             d.Role,
		Category:         d.Category,
		Status:           d.Status,
		ResetTokenHash:   d.ResetTokenHash,
		ResetTokenExpiry: d.ResetTokenExpiry,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// MongoUserRepository keeps refresh-token records embedded in the user document.
type MongoUserRepository struct {
	users *mongo.Collection
}

func NewMongoUserRepository(ctx context.Context, db *mongo.Database) (*MongoUserRepository, error) {
	users := db.Collection("users")

	_, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "refresh_tokens.token_hash", Value: 1}}},
		{Keys: bson.D{{Key: "reset_token_hash", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "status", Value: 1}, {Key: "category", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}

	return &MongoUserRepository{users: users}, nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M, op string) (model.User, error) {
	var doc mongoUser
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.User{}, model.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid}, "find user by id")
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, bson.M{"email": model.NormalizeEmail(email)}, "find user by email")
}

func (r *MongoUserRepository) FindByResetTokenHash(ctx context.Context, hash string) (model.User, error) {
	if strings.TrimSpace(hash) == "" {
		return model.User{}, model.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"reset_token_hash": hash}, "find user by reset token")
}

func (r *MongoUserRepository) Create(ctx context.Context, u model.User) (model.User, error) {
	doc := mongoUser{
		ID:            primitive.NewObjectID(),
		Name:          u.Name,
		Email:         model.NormalizeEmail(u.Email),
		PasswordHash:  u.PasswordHash,
		Role:          u.Role,
		Category:      u.Category,
		Status:        u.Status,
		RefreshTokens: []model.RefreshTokenRecord{},
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, model.ErrDuplicateEmail
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoUserRepository) Save(ctx context.Context, u model.User) error {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return model.ErrUserNotFound
	}

	set := bson.M{
		"name":          u.Name,
		"email":         model.NormalizeEmail(u.Email),
		"password_hash": u.PasswordHash,
		"role":          u.Role,
		"category":      u.Category,
		"status":        u.Status,
		"updated_at":    u.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if u.ResetTokenHash != "" {
		set["reset_token_hash"] = u.ResetTokenHash
		set["reset_token_expiry"] = u.ResetTokenExpiry
	} else {
		update["$unset"] = bson.M{"reset_token_hash": "", "reset_token_expiry": ""}
	}

	res, err := r.users.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrDuplicateEmail
		}
		return fmt.Errorf("save user: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *MongoUserRepository) ListInstitutions(ctx context.Context, status model.Status) ([]model.User, error) {
	filter := bson.M{
		"role":   bson.M{"$in": []model.Role{model.RolePendingInstitution, model.RoleInstitution}},
		"status": status,
	}
	cursor, err := r.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoUser
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode institutions: %w", err)
	}

	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toModel())
	}
	return users, nil
}

func (r *MongoUserRepository) FindApprovedInstitution(ctx context.Context, category model.Category) (model.User, error) {
	var doc mongoUser
	err := r.users.FindOne(ctx,
		bson.M{"role": model.RoleInstitution, "status": model.StatusApproved, "category": category},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find approved institution: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoUserRepository) AppendRefreshToken(ctx context.Context, userID string, record model.RefreshTokenRecord) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return model.ErrUserNotFound
	}

	res, err := r.users.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$push": bson.M{"refresh_tokens": record}})
	if err != nil {
		return fmt.Errorf("append refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// ConsumeRefreshToken flips the matching record inactive with a single
// FindOneAndUpdate, so of two concurrent callers only one matches; the winner
// then pushes the replacement.
func (r *MongoUserRepository) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time, replacement model.RefreshTokenRecord) (model.User, error) {
	filter := bson.M{"refresh_tokens": bson.M{"$elemMatch": bson.M{
		"token_hash": tokenHash,
		"active":     true,
		"expires_at": bson.M{"$gt": now},
	}}}

	var doc mongoUser
	err := r.users.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"refresh_tokens.$.active": false}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, r.classifyUnusable(ctx, tokenHash, now)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("consume refresh token: %w", err)
	}

	if _, err := r.users.UpdateOne(ctx, bson.M{"_id": doc.ID},
		bson.M{"$push": bson.M{"refresh_tokens": replacement}}); err != nil {
		return model.User{}, fmt.Errorf("push rotated refresh token: %w", err)
	}

	return doc.toModel(), nil
}

func (r *MongoUserRepository) classifyUnusable(ctx context.Context, tokenHash string, now time.Time) error {
	var doc mongoUser
	err := r.users.FindOne(ctx, bson.M{"refresh_tokens": bson.M{"$elemMatch": bson.M{
		"token_hash": tokenHash,
		"active":     false,
		"expires_at": bson.M{"$gt": now},
	}}}, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ErrInvalidRefreshToken
	}
	if err != nil {
		return fmt.Errorf("inspect refresh token: %w", err)
	}
	return &model.RefreshReuseError{UserID: doc.ID.Hex()}
}

func (r *MongoUserRepository) DeactivateRefreshTokens(ctx context.Context, userID string, tokenHash string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return model.ErrUserNotFound
	}

	update := bson.M{"$set": bson.M{"refresh_tokens.$[t].active": false}}
	elem := bson.M{"t.active": true}
	if tokenHash != "" {
		elem["t.token_hash"] = tokenHash
	}

	_, err = r.users.UpdateOne(ctx, bson.M{"_id": oid}, update,
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: []any{elem}}))
	if err != nil {
		return fmt.Errorf("deactivate refresh tokens: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.users.UpdateMany(ctx,
		bson.M{"refresh_tokens.expires_at": bson.M{"$lte": now}},
		bson.M{"$pull": bson.M{"refresh_tokens": bson.M{"expires_at": bson.M{"$lte": now}}}})
	if err != nil {
		return 0, fmt.Errorf("prune refresh tokens: %w", err)
	}
	if res.ModifiedCount > 0 {
		slog.Debug("pruned refresh tokens", "users", res.ModifiedCount)
	}
	return res.ModifiedCount, nil
}
