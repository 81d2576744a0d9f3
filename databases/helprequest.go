package databases

// go generate: mockery --name HelpRequestDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codemeet/codemeet-api/models"
)

const helpRequestName = "helprequests"

// HelpRequestDatabase contains the methods to use with the help request database
type HelpRequestDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.HelpRequest, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.HelpRequest, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultHelper, error)
}

type helpRequestDatabase struct {
	db DatabaseHelper
}

// NewHelpRequestDatabase initializes a new instance of help request database with the provided db connection
func NewHelpRequestDatabase(db DatabaseHelper) HelpRequestDatabase {
	return &helpRequestDatabase{
		db: db,
	}
}

func (h *helpRequestDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.HelpRequest, error) {
	req := &models.HelpRequest{}
	err := h.db.Collection(helpRequestName).FindOne(ctx, filter, opts...).Decode(&req)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (h *helpRequestDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.HelpRequest, error) {
	var requests []models.HelpRequest
	curr, err := h.db.Collection(helpRequestName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &requests)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (h *helpRequestDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return h.db.Collection(helpRequestName).CountDocuments(ctx, filter, opts...)
}

func (h *helpRequestDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res, err := h.db.Collection(helpRequestName).InsertOne(ctx, document, opts...)
	return res, err
}

func (h *helpRequestDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultHelper, error) {
	return h.db.Collection(helpRequestName).UpdateOne(ctx, filter, update, opts...)
}
