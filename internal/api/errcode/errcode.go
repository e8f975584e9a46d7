// Package errcode maps matchmaking errors to HTTP statuses and machine-readable
// codes and back, so the server and the remote client agree on one table.
package errcode

import (
	"errors"
	"net/http"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

const (
	AlreadyQueued         = "already_queued"
	AlreadyInConversation = "already_in_conversation"
	NotQueued             = "not_queued"
	NotParticipant        = "not_participant"
	ConversationNotFound  = "conversation_not_found"
	NoActiveConversation  = "no_active_conversation"
	InvalidFilter         = "invalid_filter"
	InvalidRequest        = "invalid_request"
	Unauthorized          = "unauthorized"
	RateLimited           = "rate_limited"
	Unavailable           = "unavailable"
)

type entry struct {
	err    error
	status int
	code   string
}

var table = []entry{
	{storage.ErrAlreadyQueued, http.StatusConflict, AlreadyQueued},
	{storage.ErrAlreadyInConversation, http.StatusConflict, AlreadyInConversation},
	{storage.ErrNotQueued, http.StatusConflict, NotQueued},
	{storage.ErrNotParticipant, http.StatusForbidden, NotParticipant},
	{storage.ErrConversationNotFound, http.StatusNotFound, ConversationNotFound},
	{storage.ErrNoActiveConversation, http.StatusConflict, NoActiveConversation},
	{models.ErrInvalidFilter, http.StatusBadRequest, InvalidFilter},
	{identity.ErrInvalidToken, http.StatusUnauthorized, Unauthorized},
	{identity.ErrNoIdentity, http.StatusUnauthorized, Unauthorized},
}

// Of classifies err. Anything unknown is an infrastructure failure the
// caller may retry.
func Of(err error) (status int, code string, retryable bool) {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.status, e.code, false
		}
	}
	return http.StatusServiceUnavailable, Unavailable, true
}

// Err returns the sentinel behind code, or nil when the code has none.
func Err(code string) error {
	for _, e := range table {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
