// Package identity maps a connecting client onto a stable actor id.
// Authenticated users are keyed by their user id, anonymous visitors by the
// uuid they persist on the client. The two namespaces never collide.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	userPrefix = "user:"
	anonPrefix = "anon:"
)

var (
	ErrNoIdentity     = errors.New("no identity supplied")
	ErrInvalidAnonID  = errors.New("anonymous id is not a valid uuid")
	ErrInvalidActorID = errors.New("malformed actor id")
)

// Actor is an identity participating in matchmaking.
type Actor struct {
	ID        string
	Anonymous bool
}

// Resolve picks the actor id for a client. A non-empty userID (from a verified
// session) always wins; otherwise anonID must be a well-formed uuid.
func Resolve(userID, anonID string) (Actor, error) {
	userID = strings.TrimSpace(userID)
	if userID != "" {
		return Actor{ID: userPrefix + userID}, nil
	}

	anonID = strings.TrimSpace(anonID)
	if anonID == "" {
		return Actor{}, ErrNoIdentity
	}
	parsed, err := uuid.Parse(anonID)
	if err != nil || parsed == uuid.Nil {
		return Actor{}, fmt.Errorf("%w: %q", ErrInvalidAnonID, anonID)
	}
	return Actor{ID: anonPrefix + parsed.String(), Anonymous: true}, nil
}

// UserID returns the profile id behind an authenticated actor id.
func UserID(actorID string) (string, bool) {
	if !strings.HasPrefix(actorID, userPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(actorID, userPrefix)
	return id, id != ""
}

// Parse validates an actor id produced by Resolve, e.g. one typed into the admin CLI.
func Parse(actorID string) (Actor, error) {
	switch {
	case strings.HasPrefix(actorID, userPrefix):
		return Resolve(strings.TrimPrefix(actorID, userPrefix), "")
	case strings.HasPrefix(actorID, anonPrefix):
		return Resolve("", strings.TrimPrefix(actorID, anonPrefix))
	default:
		return Actor{}, fmt.Errorf("%w: %q", ErrInvalidActorID, actorID)
	}
}
