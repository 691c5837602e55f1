package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/credential"
	"github.com/workflowd/workflowd/pkg/config"
)

// CredentialRepo implements credential.Store using pgxpool. It is the only
// writer of the credentials table — per spec.md §4.1, the OAuth handshake
// collaborator and the dispatcher's refresh path are its only callers.
type CredentialRepo struct {
	db *pgxpool.Pool
}

func NewCredentialRepo(db *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) Load(ctx context.Context, userID core.ID, app credential.AppName) (*credential.Credential, error) {
	const q = `SELECT id, user_id, app_name, access_token, refresh_token, expires_at, metadata, created_at, updated_at
		FROM credentials WHERE user_id = $1 AND app_name = $2`
	var (
		cred         credential.Credential
		accessToken  string
		refreshToken *string
		metadataJSON []byte
	)
	err := r.db.QueryRow(ctx, q, userID, app).Scan(
		&cred.ID, &cred.UserID, &cred.AppName, &accessToken, &refreshToken,
		&cred.ExpiresAt, &metadataJSON, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrNotConnected
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	cred.AccessToken = config.SensitiveString(accessToken)
	if refreshToken != nil {
		cred.RefreshToken = config.SensitiveString(*refreshToken)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cred.Metadata); err != nil {
			return nil, fmt.Errorf("decoding credential metadata: %w", err)
		}
	}
	return &cred, nil
}

func (r *CredentialRepo) Save(ctx context.Context, cred *credential.Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("credential: access_token is required")
	}
	metadataJSON, err := ToJSONB(cred.Metadata)
	if err != nil {
		return fmt.Errorf("encoding credential metadata: %w", err)
	}
	now := time.Now().UTC()
	cred.UpdatedAt = now
	if cred.ID == "" {
		id, err := core.NewID()
		if err != nil {
			return fmt.Errorf("generating credential id: %w", err)
		}
		cred.ID = id
		cred.CreatedAt = now
	}
	const q = `INSERT INTO credentials
		(id, user_id, app_name, access_token, refresh_token, expires_at, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, app_name) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`
	_, err = r.db.Exec(ctx, q,
		cred.ID, cred.UserID, cred.AppName,
		cred.AccessToken.Value(), nullableSensitive(cred.RefreshToken),
		cred.ExpiresAt, metadataJSON, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

func (r *CredentialRepo) UpdateAccess(
	ctx context.Context,
	userID core.ID,
	app credential.AppName,
	accessToken string,
	expiresAt *time.Time,
) error {
	const q = `UPDATE credentials SET access_token = $3, expires_at = $4, updated_at = now()
		WHERE user_id = $1 AND app_name = $2`
	tag, err := r.db.Exec(ctx, q, userID, app, accessToken, expiresAt)
	if err != nil {
		return fmt.Errorf("updating credential access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotConnected
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, userID core.ID, app credential.AppName) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE user_id = $1 AND app_name = $2`, userID, app)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotConnected
	}
	return nil
}

func nullableSensitive(s config.SensitiveString) *string {
	if s == "" {
		return nil
	}
	v := s.Value()
	return &v
}

var _ credential.Store = (*CredentialRepo)(nil)
