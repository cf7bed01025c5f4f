package domain

import (
	"fmt"
	"strings"
)

// SessionIDPrefix marks anonymous session tokens.
const SessionIDPrefix = "anon_"

// PlayerIdentity is either an authenticated account or an anonymous session, never
// both. The unexported method seals the set of implementations.
type PlayerIdentity interface {
	// Key is a stable, printable key such as "user:42" or "session:anon_x".
	Key() string
	isPlayerIdentity()
}

type Authenticated struct {
	UserID string
}

func (a Authenticated) Key() string { return "user:" + a.UserID }

func (Authenticated) isPlayerIdentity() {}

type Anonymous struct {
	SessionID string
}

func (a Anonymous) Key() string { return "session:" + a.SessionID }

func (Anonymous) isPlayerIdentity() {}

// IdentityFromColumns rebuilds an identity from the two nullable storage columns.
func IdentityFromColumns(userID, sessionID *string) (PlayerIdentity, error) {
	switch {
	case userID != nil && sessionID != nil:
		return nil, fmt.Errorf("identity: both user %q and session %q set", *userID, *sessionID)
	case userID != nil:
		return Authenticated{UserID: *userID}, nil
	case sessionID != nil:
		return Anonymous{SessionID: *sessionID}, nil
	default:
		return nil, fmt.Errorf("identity: neither user nor session set")
	}
}

// IdentityColumns splits an identity into the two nullable storage columns.
func IdentityColumns(id PlayerIdentity) (userID, sessionID *string) {
	switch v := id.(type) {
	case Authenticated:
		return &v.UserID, nil
	case Anonymous:
		return nil, &v.SessionID
	default:
		return nil, nil
	}
}

// ValidSessionID reports whether s looks like an anonymous session token.
func ValidSessionID(s string) bool {
	return strings.HasPrefix(s, SessionIDPrefix) && len(s) > len(SessionIDPrefix)
}
