package internal

import (
	"context"

	"golang.org/x/oauth2"
)

type ClientSettings struct {
	ProjectID string

	Scopes          []string
	TokenSource     oauth2.TokenSource
	CredentialsFile string // if set, Token Source is ignored.
	CredentialsJSON []byte
	Endpoint        string
	EmulatorHost    string

	Logf func(ctx context.Context, format string, args ...interface{})
}

// LogfOrNop returns s.Logf, or a func that does nothing.
func (s *ClientSettings) LogfOrNop() func(ctx context.Context, format string, args ...interface{}) {
	if s.Logf != nil {
		return s.Logf
	}
	return func(ctx context.Context, format string, args ...interface{}) {}
}
