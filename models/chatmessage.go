package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ChatMessage holds the structure for the sessionchat collection in mongo
type ChatMessage struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details ChatMessageDetails `json:"chatMessage" bson:"chatMessage"`
	Version int32              `json:"__v" bson:"__v"`
}

// ChatMessageDetails holds the structure for the inner chat message details.
// SenderID always carries the real authenticated sender, even for anonymous
// posts; it is nulled out only in the public projection.
type ChatMessageDetails struct {
	SessionID   string             `json:"sessionID" bson:"sessionID"`
	SenderID    string             `json:"senderID" bson:"senderID"`
	SenderName  string             `json:"senderName" bson:"senderName"`
	IsAnonymous bool               `json:"isAnonymous" bson:"isAnonymous"`
	Body        string             `json:"body" bson:"body"`
	Voters      []string           `json:"voters" bson:"voters"`
	SentAt      primitive.DateTime `json:"sentAt" bson:"sentAt"`
}

// ChatMessageView is the public projection of a chat message
type ChatMessageView struct {
	ID          string             `json:"_id"`
	SessionID   string             `json:"sessionID"`
	SenderID    *string            `json:"senderID"`
	SenderName  string             `json:"senderName"`
	IsAnonymous bool               `json:"isAnonymous"`
	Body        string             `json:"body"`
	UpvoteCount int                `json:"upvoteCount"`
	SentAt      primitive.DateTime `json:"sentAt"`
}

// Public hides the sender of anonymous messages and derives the upvote
// count from the voter set
func (m ChatMessage) Public() ChatMessageView {
	view := ChatMessageView{
		ID:          m.ID.Hex(),
		SessionID:   m.Details.SessionID,
		SenderName:  m.Details.SenderName,
		IsAnonymous: m.Details.IsAnonymous,
		Body:        m.Details.Body,
		UpvoteCount: len(m.Details.Voters),
		SentAt:      m.Details.SentAt,
	}
	if !m.Details.IsAnonymous {
		senderID := m.Details.SenderID
		view.SenderID = &senderID
	}
	return view
}
