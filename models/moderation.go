package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Moderation entry kinds. A ban supersedes a mute: a banned user's mute
// status is irrelevant.
const (
	ModerationKindBan  = "ban"
	ModerationKindMute = "mute"
)

// ModerationEntry holds the structure for the moderation collection in mongo,
// one document per (session, user, kind)
type ModerationEntry struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details ModerationDetails  `json:"moderation" bson:"moderation"`
	Version int32              `json:"__v" bson:"__v"`
}

// ModerationDetails holds the structure for the inner moderation details
type ModerationDetails struct {
	SessionID   string             `json:"sessionID" bson:"sessionID"`
	UserID      string             `json:"userID" bson:"userID"`
	Kind        string             `json:"kind" bson:"kind"`
	Reason      string             `json:"reason" bson:"reason"`
	ModeratorID string             `json:"moderatorID" bson:"moderatorID"`
	CreatedAt   primitive.DateTime `json:"createdAt" bson:"createdAt"`
}
