package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Help request statuses; resolved is terminal
const (
	HelpRequestStatusOpen     = "open"
	HelpRequestStatusResolved = "resolved"
)

// HelpRequest holds the structure for the helprequests collection in mongo
type HelpRequest struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details HelpRequestDetails `json:"helpRequest" bson:"helpRequest"`
	Version int32              `json:"__v" bson:"__v"`
}

// HelpRequestDetails holds the structure for the inner help request details.
// RequesterID always carries the real authenticated requester; it is nulled
// out only in the public projection.
type HelpRequestDetails struct {
	SessionID     string             `json:"sessionID" bson:"sessionID"`
	RequesterID   string             `json:"requesterID" bson:"requesterID"`
	RequesterName string             `json:"requesterName" bson:"requesterName"`
	IsAnonymous   bool               `json:"isAnonymous" bson:"isAnonymous"`
	Topic         string             `json:"topic" bson:"topic"`
	Details       string             `json:"details" bson:"details"`
	Status        string             `json:"status" bson:"status"`
	CreatedAt     primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt     primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// HelpRequestView is the public projection of a help request
type HelpRequestView struct {
	ID            string             `json:"_id"`
	SessionID     string             `json:"sessionID"`
	RequesterID   *string            `json:"requesterID"`
	RequesterName string             `json:"requesterName"`
	IsAnonymous   bool               `json:"isAnonymous"`
	Topic         string             `json:"topic"`
	Details       string             `json:"details"`
	Status        string             `json:"status"`
	CreatedAt     primitive.DateTime `json:"createdAt"`
	UpdatedAt     primitive.DateTime `json:"updatedAt"`
}

// Public hides the requester of anonymous help requests
func (h HelpRequest) Public() HelpRequestView {
	view := HelpRequestView{
		ID:            h.ID.Hex(),
		SessionID:     h.Details.SessionID,
		RequesterName: h.Details.RequesterName,
		IsAnonymous:   h.Details.IsAnonymous,
		Topic:         h.Details.Topic,
		Details:       h.Details.Details,
		Status:        h.Details.Status,
		CreatedAt:     h.Details.CreatedAt,
		UpdatedAt:     h.Details.UpdatedAt,
	}
	if !h.Details.IsAnonymous {
		requesterID := h.Details.RequesterID
		view.RequesterID = &requesterID
	}
	return view
}
