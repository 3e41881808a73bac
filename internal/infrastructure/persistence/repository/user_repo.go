package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/sqlite"
)

const userColumns = `id, username, email, role, assigned_projects, delegated_to, delegation_expires_at, created_at, updated_at`

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new user; a duplicate username is InvalidArgument
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	projects, err := encodeProjects(u.AssignedProjects)
	if err != nil {
		return err
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.Role,
		projects,
		nullString(u.DelegatedTo),
		nullTime(u.DelegationExpiresAt),
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return apperror.New(apperror.KindInvalidArgument, "username %q already exists", u.Username)
		}
		r.logger.Error("Failed to create user", zap.String("username", u.Username), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, "id", id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, "username", username)
}

func (r *UserRepository) getOne(ctx context.Context, column, value string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`

	u, err := scanUser(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "user %s not found", value)
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String(column, value), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Update applies the non-nil patch fields and returns the stored row
func (r *UserRepository) Update(ctx context.Context, id string, patch entity.UserPatch) (*entity.User, error) {
	var sets []string
	var args []interface{}

	if patch.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *patch.Role)
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.AssignedProjects != nil {
		projects, err := encodeProjects(*patch.AssignedProjects)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "assigned_projects = ?")
		args = append(args, projects)
	}
	switch {
	case patch.ClearDelegation:
		sets = append(sets, "delegated_to = NULL", "delegation_expires_at = NULL")
	default:
		if patch.DelegatedTo != nil {
			sets = append(sets, "delegated_to = ?")
			args = append(args, nullString(patch.DelegatedTo))
		}
		if patch.DelegationExpiresAt != nil {
			sets = append(sets, "delegation_expires_at = ?")
			args = append(args, patch.DelegationExpiresAt.UTC())
		}
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC(), id)

		query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.Error("Failed to update user", zap.String("user_id", id), zap.Error(err))
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return nil, apperror.New(apperror.KindNotFound, "user %s not found", id)
		}
	}

	return r.GetByID(ctx, id)
}

// FindDelegators returns users whose delegated_to is delegateID, expired or not
func (r *UserRepository) FindDelegators(ctx context.Context, delegateID string) ([]*entity.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE delegated_to = ? ORDER BY username`, delegateID)
}

// ListByRole returns users whose stored role equals role
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY username`, role)
}

// List returns users ordered by username
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username LIMIT ? OFFSET ?`, limit, offset)
}

func (r *UserRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*entity.User, error) {
	var u entity.User
	var projects string
	var delegatedTo sql.NullString
	var expires sql.NullTime

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Role,
		&projects,
		&delegatedTo,
		&expires,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(projects), &u.AssignedProjects); err != nil {
		return nil, fmt.Errorf("failed to decode assigned projects for %s: %w", u.ID, err)
	}
	u.DelegatedTo = stringPtr(delegatedTo)
	u.DelegationExpiresAt = timePtr(expires)
	return &u, nil
}

func encodeProjects(projects []string) (string, error) {
	if projects == nil {
		projects = []string{}
	}
	b, err := json.Marshal(projects)
	if err != nil {
		return "", fmt.Errorf("failed to encode assigned projects: %w", err)
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
