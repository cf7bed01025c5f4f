package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/victornm/wordroyale/internal/store"
)

func TestValidID(t *testing.T) {
	tests := map[string]struct {
		id   string
		want bool
	}{
		"uuid v7":       {id: "01961f3e-6a52-7c1e-9b2a-3f6d2c1e8a90", want: true},
		"empty":         {id: ""},
		"nanoid":        {id: "V1StGXR8_Z5jdHi6B-myT"},
		"truncated":     {id: "01961f3e-6a52-7c1e"},
		"sql injection": {id: "' OR 1=1 --"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, validID(tt.id))
		})
	}
}

func TestNotFound(t *testing.T) {
	tests := map[string]struct {
		err      error
		notFound bool
	}{
		"no rows":           {err: pgx.ErrNoRows, notFound: true},
		"invalid uuid text": {err: &pgconn.PgError{Code: codeInvalidText}, notFound: true},
		"unique violation":  {err: &pgconn.PgError{Code: codeUniqueViolation}},
		"connection":        {err: assert.AnError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := notFound(tt.err, "game %s", "g1")
			assert.Equal(t, tt.notFound, errors.Is(err, store.ErrNotFound))
		})
	}
}
