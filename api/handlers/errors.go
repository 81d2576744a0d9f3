package handlers

import "errors"

// Sentinel errors for the authorization layer; config.ErrorStatus folds them
// into the response envelope
var (
	errUnauthenticated = errors.New("no verified caller identity on request")
	errNotHost         = errors.New("caller is not the session host")
	errBanned          = errors.New("caller is banned from this session")
	errMuted           = errors.New("caller is muted in this session")
	errChatClosed      = errors.New("chat is closed for this session")
	errViewOnly        = errors.New("session is in view-only mode")
	errRateLimited     = errors.New("rate limit exceeded")
	errSessionNotLive  = errors.New("session is not in the required lifecycle state")
	errMissingTarget   = errors.New("user_id path variable is empty")
)
