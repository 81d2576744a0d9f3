package databases

// go generate: mockery --name ModerationDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codemeet/codemeet-api/models"
)

const moderationName = "moderation"

// ModerationDatabase contains the methods to use with the moderation database.
// Ban and mute writes are upserts keyed on (sessionID, userID, kind) so that
// repeating an action never duplicates an entry.
type ModerationDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.ModerationEntry, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.ModerationEntry, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultHelper, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error)
}

type moderationDatabase struct {
	db DatabaseHelper
}

// NewModerationDatabase initializes a new instance of moderation database with the provided db connection
func NewModerationDatabase(db DatabaseHelper) ModerationDatabase {
	return &moderationDatabase{
		db: db,
	}
}

func (m *moderationDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.ModerationEntry, error) {
	entry := &models.ModerationEntry{}
	err := m.db.Collection(moderationName).FindOne(ctx, filter, opts...).Decode(&entry)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (m *moderationDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.ModerationEntry, error) {
	var entries []models.ModerationEntry
	curr, err := m.db.Collection(moderationName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &entries)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *moderationDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return m.db.Collection(moderationName).CountDocuments(ctx, filter, opts...)
}

func (m *moderationDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultHelper, error) {
	return m.db.Collection(moderationName).UpdateOne(ctx, filter, update, opts...)
}

func (m *moderationDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error) {
	return m.db.Collection(moderationName).DeleteOne(ctx, filter, opts...)
}
