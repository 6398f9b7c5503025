package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"debtster-kpi/internal/domain"

	"github.com/sirupsen/logrus"
)

const userTokenableType = "App\\Infrastructure\\Persistence\\Models\\User"

var ErrTokenNotFound = errors.New("token not found")

type PersonalAccessTokenRepository struct {
	db  *sql.DB
	log *logrus.Entry
}

func NewPersonalAccessTokenRepository(db *sql.DB, log *logrus.Entry) *PersonalAccessTokenRepository {
	return &PersonalAccessTokenRepository{db: db, log: log.WithField("module", "token_repository")}
}

// splitToken separates an "id|secret" token. Tokens without a numeric id
// prefix are returned whole.
func splitToken(plain string) (id *int64, secret string) {
	idx := strings.Index(plain, "|")
	if idx <= 0 {
		return nil, plain
	}
	n, err := strconv.ParseInt(plain[:idx], 10, 64)
	if err != nil {
		return nil, plain[idx+1:]
	}
	return &n, plain[idx+1:]
}

func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

const tokenColumns = `id, token, tokenable_id, COALESCE(abilities, ''), expires_at`

func (r *PersonalAccessTokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, ErrTokenNotFound
	}

	tokenID, secret := splitToken(plainToken)
	hash := hashToken(secret)

	var pat domain.PersonalAccessToken
	scan := func(row *sql.Row) error {
		return row.Scan(&pat.ID, &pat.TokenHash, &pat.UserID, &pat.Abilities, &pat.ExpiresAt)
	}

	if tokenID != nil {
		query := `
			SELECT ` + tokenColumns + `
			FROM personal_access_tokens
			WHERE id = $1
			  AND tokenable_type = $2
			  AND (expires_at IS NULL OR expires_at > $3)
		`
		err := scan(r.db.QueryRowContext(ctx, query, *tokenID, userTokenableType, time.Now()))
		switch {
		case err == nil && (pat.TokenHash == hash || pat.TokenHash == secret):
			return &pat, nil
		case err == nil:
			r.log.WithField("token_id", *tokenID).Debug("token hash mismatch")
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	query := `
		SELECT ` + tokenColumns + `
		FROM personal_access_tokens
		WHERE tokenable_type = $1
		  AND token IN ($2, $3)
		  AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := scan(r.db.QueryRowContext(ctx, query, userTokenableType, hash, secret, time.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pat, nil
}
