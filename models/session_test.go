package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSessionDetailsStatus(t *testing.T) {
	now := primitive.NewDateTimeFromTime(time.Now())

	assert.Equal(t, SessionStatusScheduled, SessionDetails{}.Status())
	assert.Equal(t, SessionStatusLive, SessionDetails{StartedAt: &now}.Status())
	assert.Equal(t, SessionStatusEnded, SessionDetails{StartedAt: &now, EndedAt: &now}.Status())

	// ended wins even if startedAt was never recorded
	assert.Equal(t, SessionStatusEnded, SessionDetails{EndedAt: &now}.Status())
}

func TestSessionPublicDerivesStatus(t *testing.T) {
	now := primitive.NewDateTimeFromTime(time.Now())
	s := Session{
		ID: primitive.NewObjectID(),
		Details: SessionDetails{
			HostID:    "host-1",
			Title:     "Graph algorithms study night",
			RoomID:    "room-abc",
			StartedAt: &now,
		},
	}

	view := s.Public()
	assert.Equal(t, s.ID.Hex(), view.ID)
	assert.Equal(t, SessionStatusLive, view.Status)
	assert.Equal(t, "room-abc", view.RoomID)
}

func TestRoleCanPublish(t *testing.T) {
	assert.True(t, RoleHost.CanPublish())
	assert.True(t, RolePublisher.CanPublish())
	assert.False(t, RoleSubscriber.CanPublish())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RolePublisher, ParseRole("publisher"))
	assert.Equal(t, RoleHost, ParseRole("host"))

	// anything unrecognized demotes to the receive-only role
	assert.Equal(t, RoleSubscriber, ParseRole("superuser"))
	assert.Equal(t, RoleSubscriber, ParseRole(""))
}

func TestChatMessagePublicHidesAnonymousSender(t *testing.T) {
	msg := ChatMessage{
		ID: primitive.NewObjectID(),
		Details: ChatMessageDetails{
			SenderID:    "viewer-1",
			SenderName:  "Guest-a1b2c3d4",
			Body:        "hello",
			IsAnonymous: true,
			Voters:      []string{"viewer-2", "viewer-3"},
		},
	}

	view := msg.Public()
	assert.Nil(t, view.SenderID)
	assert.Equal(t, "Guest-a1b2c3d4", view.SenderName)
	assert.Equal(t, 2, view.UpvoteCount)

	msg.Details.IsAnonymous = false
	view = msg.Public()
	assert.NotNil(t, view.SenderID)
	assert.Equal(t, "viewer-1", *view.SenderID)
}
