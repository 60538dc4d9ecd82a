package repos

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"agritrade/internal/domain"
)

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.DB.GetContext(ctx, &u, `SELECT id,name,role,token_hash FROM users WHERE id=?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ByToken resolves a bearer token of the form "<user-id>:<secret>" against the
// stored bcrypt hash. The identity provider proper is out of scope; this is
// the narrow contract through which it supplies caller identity.
func (r *UserRepo) ByToken(ctx context.Context, token string) (*domain.User, error) {
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || secret == "" {
		return nil, domain.ErrNotFound
	}
	u, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.TokenHash), []byte(secret)) != nil {
		return nil, domain.ErrNotFound
	}
	return u, nil
}
