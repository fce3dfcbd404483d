package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"campusattend/internal/domain"
)

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) domain.UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, role, push_token, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query, u.ID, u.Email, u.Name, string(u.Role), u.PushToken, u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
	return translate(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, name, role, push_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	u := &domain.User{}
	var role string
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &role, &u.PushToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

// ListByIDs returns the users that exist, in the order of ids. Unknown ids are skipped.
func (r *userRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	query := `
		SELECT id, email, name, role, push_token, created_at, updated_at
		FROM users
		WHERE id = ANY($1)
	`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	byID := make(map[string]*domain.User, len(ids))
	for rows.Next() {
		u := &domain.User{}
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PushToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, translate(err)
		}
		u.Role = domain.Role(role)
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	users := make([]*domain.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
			delete(byID, id)
		}
	}
	return users, nil
}
