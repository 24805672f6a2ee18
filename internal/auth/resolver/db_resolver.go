package resolver

import (
	"context"
	"database/sql"
	"errors"

	"signin-service/internal/auth"
	"signin-service/internal/db"

	"github.com/google/uuid"
)

// DBResolver resolves identities using the database.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", errors.New("identity is nil")
	}

	// 1. Known identity (provider + provider_user_id)
	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM public.identities
		WHERE provider = $1
		  AND provider_user_id = $2
	`,
		identity.Provider,
		identity.ProviderUserID,
	).Scan(&userID)

	if err == nil {
		if identity.AccountID != "" {
			_, err = r.db.ExecContext(ctx, `
				UPDATE public.users
				SET firebase_uid = $1, updated_at = NOW()
				WHERE id = $2
				  AND firebase_uid IS NULL
			`,
				identity.AccountID,
				userID,
			)
			if err != nil {
				return "", err
			}
		}
		return userID.String(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	// 2. Existing or new user, then the identity mapping
	userID, err = r.ensureUser(ctx, identity.AccountID, identity)
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO public.identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_user_id) DO NOTHING
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	if err != nil {
		return "", err
	}

	return userID.String(), nil
}

func (r *DBResolver) Link(
	ctx context.Context,
	accountID string,
	identity *auth.Identity,
) error {

	if identity == nil {
		return errors.New("identity is nil")
	}
	if accountID == "" {
		return errors.New("account id is empty")
	}

	userID, err := r.ensureUser(ctx, accountID, identity)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO public.identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_user_id)
		DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = NOW()
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	return err
}

// ensureUser returns the user for accountID, creating it when missing. With
// no accountID it falls back to an email match.
func (r *DBResolver) ensureUser(
	ctx context.Context,
	accountID string,
	identity *auth.Identity,
) (uuid.UUID, error) {

	var userID uuid.UUID
	email := sql.NullString{String: identity.Email, Valid: identity.Email != ""}

	if accountID != "" {
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO public.users (firebase_uid, email, email_verified)
			VALUES ($1, $2, $3)
			ON CONFLICT (firebase_uid) WHERE firebase_uid IS NOT NULL
			DO UPDATE SET
				email = COALESCE(EXCLUDED.email, users.email),
				updated_at = NOW()
			RETURNING id
		`,
			accountID,
			email,
			identity.EmailVerified,
		).Scan(&userID)
		return userID, err
	}

	if email.Valid {
		err := r.db.QueryRowContext(ctx, `
			SELECT id
			FROM public.users
			WHERE LOWER(email) = LOWER($1)
			LIMIT 1
		`,
			identity.Email,
		).Scan(&userID)

		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, err
		}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO public.users (email, email_verified)
		VALUES ($1, $2)
		RETURNING id
	`,
		email,
		identity.EmailVerified,
	).Scan(&userID)
	return userID, err
}
