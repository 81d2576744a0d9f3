package models

// Role is the capability granted to a participant at join time. A host may
// take any role it asks for; a publisher may transmit audio/video/code; a
// subscriber may only receive (plus data-channel signals, which are always
// permitted).
type Role string

// The closed set of join roles
const (
	RoleHost       Role = "host"
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// CanPublish reports whether the role carries media publish rights
func (r Role) CanPublish() bool {
	return r == RoleHost || r == RolePublisher
}

// ParseRole maps a client-supplied role string onto the closed set, falling
// back to subscriber for anything unrecognized
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleHost:
		return RoleHost
	case RolePublisher:
		return RolePublisher
	default:
		return RoleSubscriber
	}
}
