// Package identity resolves the caller of a request to a player identity: a signed-in
// account from a bearer token or an anonymous session id.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderSessionID     = "X-Session-ID"

	sessionIDLength = 21
)

type Config struct {
	// Secret signs and verifies HS256 account tokens.
	Secret []byte
	Issuer string
}

type Resolver struct {
	secret []byte
	issuer string
}

func NewResolver(c Config) *Resolver {
	return &Resolver{secret: c.Secret, issuer: c.Issuer}
}

// Resolve builds the identity from the Authorization and X-Session-ID header values.
// Exactly one of them must be present.
func (r *Resolver) Resolve(authorization, sessionID string) (domain.PlayerIdentity, error) {
	authorization, sessionID = strings.TrimSpace(authorization), strings.TrimSpace(sessionID)

	switch {
	case authorization != "" && sessionID != "":
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("send either a bearer token or a session id, not both"))
	case authorization != "":
		return r.authenticated(authorization)
	case sessionID != "":
		if !domain.ValidSessionID(sessionID) {
			return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("session id must start with %s", domain.SessionIDPrefix))
		}
		return domain.Anonymous{SessionID: sessionID}, nil
	default:
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("missing bearer token or session id"))
	}
}

func (r *Resolver) authenticated(header string) (domain.PlayerIdentity, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("authorization must be a bearer token"))
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, errors.ErrInvalidIdentity.With(
			errors.WithMessagef("invalid bearer token"),
			errors.WithCause(err),
		)
	}
	if claims.Subject == "" {
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("bearer token has no subject"))
	}

	return domain.Authenticated{UserID: claims.Subject}, nil
}

// Issue signs a token for userID, valid for ttl.
func (r *Resolver) Issue(userID string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    r.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}

	return s, nil
}

// NewSessionID mints an anonymous session id.
func NewSessionID() (string, error) {
	id, err := gonanoid.New(sessionIDLength)
	if err != nil {
		return "", fmt.Errorf("identity: generate session id: %w", err)
	}

	return domain.SessionIDPrefix + id, nil
}
