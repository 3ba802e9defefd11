package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-approval/internal/domain"
)

const userColumns = `id, name, username, email, role, COALESCE(org_id::text, ''), status, created_at, updated_at`

// UserRepository reads the identities tickets are routed between.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	ListByRole(ctx context.Context, role domain.UserRole, orgID string) ([]domain.User, error)
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[]) ORDER BY username`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListByRole returns active users holding role. An empty orgID matches
// every organization.
func (r *userRepository) ListByRole(ctx context.Context, role domain.UserRole, orgID string) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users
        WHERE role=$1 AND status=$2 AND ($3='' OR org_id::text=$3)
        ORDER BY username`
	rows, err := r.db.Query(ctx, query, role, domain.UserStatusActive, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	users, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for i := range users {
		names[users[i].ID] = users[i].String()
	}
	return names, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.OrgID,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}
