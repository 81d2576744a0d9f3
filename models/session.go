package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Session lifecycle statuses derived from the startedAt/endedAt timestamps
const (
	SessionStatusScheduled = "scheduled"
	SessionStatusLive      = "live"
	SessionStatusEnded     = "ended"
)

// Session holds the structure for the sessions collection in mongo
type Session struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details SessionDetails     `json:"session" bson:"session"`
	Version int32              `json:"__v" bson:"__v"`
}

// SessionDetails holds the structure for the inner session details
type SessionDetails struct {
	HostID   string `json:"hostID" bson:"hostID"`
	HostName string `json:"hostName" bson:"hostName"`

	// Title for this session (e.g., "Graph algorithms study night")
	Title string `json:"title" bson:"title"`

	// RoomID is the unguessable media room identifier, generated at creation
	RoomID string `json:"roomID" bson:"roomID"`

	ScheduledFor *primitive.DateTime `json:"scheduledFor" bson:"scheduledFor"`

	// StartedAt/EndedAt drive the lifecycle: both nil means scheduled,
	// started without ended means live, ended means ended (terminal).
	StartedAt *primitive.DateTime `json:"startedAt" bson:"startedAt"`
	EndedAt   *primitive.DateTime `json:"endedAt" bson:"endedAt"`

	IsChatClosed bool `json:"isChatClosed" bson:"isChatClosed"`
	IsViewOnly   bool `json:"isViewOnly" bson:"isViewOnly"`
	IsStuck      bool `json:"isStuck" bson:"isStuck"`

	CodeContent  string `json:"codeContent" bson:"codeContent"`
	CodeLanguage string `json:"codeLanguage" bson:"codeLanguage"`

	RecordingURL string `json:"recordingURL" bson:"recordingURL"`
	ReminderSent bool   `json:"reminderSent" bson:"reminderSent"`

	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// Status derives the lifecycle state from the transition timestamps
func (d SessionDetails) Status() string {
	switch {
	case d.EndedAt != nil:
		return SessionStatusEnded
	case d.StartedAt != nil:
		return SessionStatusLive
	default:
		return SessionStatusScheduled
	}
}

// SessionView is the public projection of a session returned to clients
type SessionView struct {
	ID           string              `json:"_id"`
	HostID       string              `json:"hostID"`
	HostName     string              `json:"hostName"`
	Title        string              `json:"title"`
	RoomID       string              `json:"roomID"`
	Status       string              `json:"status"`
	ScheduledFor *primitive.DateTime `json:"scheduledFor"`
	StartedAt    *primitive.DateTime `json:"startedAt"`
	EndedAt      *primitive.DateTime `json:"endedAt"`
	IsChatClosed bool                `json:"isChatClosed"`
	IsViewOnly   bool                `json:"isViewOnly"`
	IsStuck      bool                `json:"isStuck"`
	CodeContent  string              `json:"codeContent"`
	CodeLanguage string              `json:"codeLanguage"`
	RecordingURL string              `json:"recordingURL"`
	CreatedAt    primitive.DateTime  `json:"createdAt"`
	UpdatedAt    primitive.DateTime  `json:"updatedAt"`
}

// Public returns the client-facing projection with the derived status
func (s Session) Public() SessionView {
	return SessionView{
		ID:           s.ID.Hex(),
		HostID:       s.Details.HostID,
		HostName:     s.Details.HostName,
		Title:        s.Details.Title,
		RoomID:       s.Details.RoomID,
		Status:       s.Details.Status(),
		ScheduledFor: s.Details.ScheduledFor,
		StartedAt:    s.Details.StartedAt,
		EndedAt:      s.Details.EndedAt,
		IsChatClosed: s.Details.IsChatClosed,
		IsViewOnly:   s.Details.IsViewOnly,
		IsStuck:      s.Details.IsStuck,
		CodeContent:  s.Details.CodeContent,
		CodeLanguage: s.Details.CodeLanguage,
		RecordingURL: s.Details.RecordingURL,
		CreatedAt:    s.Details.CreatedAt,
		UpdatedAt:    s.Details.UpdatedAt,
	}
}
