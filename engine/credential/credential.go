// Package credential implements the Credential Store (C1): per-(user, app)
// OAuth token storage, consumed by the integration dispatcher and written
// only by the OAuth handshake collaborator (out of scope, §1) and the
// dispatcher's own refresh-on-expiry path.
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/pkg/config"
)

// ErrNotConnected is returned by Load when the user has no credential row
// for the given app — the dispatcher maps this to core.Error's
// NotConnected kind.
var ErrNotConnected = errors.New("credential: not connected")

// AppName is the closed set of integrations the engine supports.
type AppName string

const (
	AppGmail   AppName = "gmail"
	AppSlack   AppName = "slack"
	AppGitHub  AppName = "github"
	AppWebhook AppName = "webhook"
)

// Credential holds one user's OAuth grant for one app. AccessToken and
// RefreshToken are SensitiveString so logging or serializing a Credential
// never leaks them; Metadata is the raw provider response (e.g. the
// installing Slack user id) needed by some adapters.
type Credential struct {
	ID           core.ID                 `db:"id,pk"`
	UserID       core.ID                 `db:"user_id"`
	AppName      AppName                 `db:"app_name"`
	AccessToken  config.SensitiveString  `db:"access_token"`
	RefreshToken config.SensitiveString  `db:"refresh_token"`
	ExpiresAt    *time.Time              `db:"expires_at"`
	Metadata     map[string]any          `db:"metadata"`
	CreatedAt    time.Time               `db:"created_at"`
	UpdatedAt    time.Time               `db:"updated_at"`
}

// IsExpired reports whether the access token is past its expiry, in UTC as
// required by the data model invariant. Credentials with no ExpiresAt
// (providers that don't issue one) are never expired.
func (c *Credential) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.UTC().After(c.ExpiresAt.UTC())
}

// Store is the C1 Credential Store: load/save/update-access on a single
// table, the only writer of token rows.
type Store interface {
	// Load returns the full credential row, including sensitive fields.
	// Returns ErrNotConnected if the user has never connected app.
	Load(ctx context.Context, userID core.ID, app AppName) (*Credential, error)
	// Save upserts the credential for (userID, app): a fresh OAuth grant
	// from the handshake collaborator, or a refreshed token pair.
	Save(ctx context.Context, cred *Credential) error
	// UpdateAccess rewrites only the access token and expiry in place —
	// the path the Dispatcher takes after a successful refresh, so it
	// never has to read back the refresh token just to write it unchanged.
	UpdateAccess(ctx context.Context, userID core.ID, app AppName, accessToken string, expiresAt *time.Time) error
	// Delete removes the credential row, severing the connection.
	Delete(ctx context.Context, userID core.ID, app AppName) error
}
