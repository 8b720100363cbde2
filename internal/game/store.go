package game

import (
	"context"
	"errors"

	"github.com/avialab/crashsync/internal/protocol"
)

// Store is the persistent client store collaborator. The core writes to it as
// a side effect of reconciliation but does not own its storage or lifecycle.
type Store interface {
	SetBalance(total float64)
	SetUser(user protocol.UserInfo)
	SetAuthToken(token string)
}

// NopStore discards all writes.
type NopStore struct{}

func (NopStore) SetBalance(float64)        {}
func (NopStore) SetUser(protocol.UserInfo) {}
func (NopStore) SetAuthToken(string)       {}

// ErrNoToken is returned when the identity provider has no credential.
var ErrNoToken = errors.New("no auth token available")

// TokenSource supplies the opaque bearer token issued by the identity
// provider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource around a fixed credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}
