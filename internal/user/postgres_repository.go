package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Repository backed by the given connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// allColumns is the ordered list of columns read by scanUser.
const allColumns = `id, email, password_hash, google_id, name, avatar_url, provider,
	is_premium, is_admin, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.GoogleID,
		&u.Name, &u.AvatarURL, &u.Provider,
		&u.IsPremium, &u.IsAdmin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user row: %w", err)
	}
	return &u, nil
}

// translateUniqueViolation maps unique-index violations to domain errors.
func translateUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "google") {
			return ErrDuplicateGoogleID
		}
		return ErrDuplicateEmail
	}
	return nil
}

// Create inserts a new user record.
func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (email, password_hash, google_id, name, avatar_url, provider, is_premium, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		u.Email,
		u.PasswordHash,
		u.GoogleID,
		u.Name,
		u.AvatarURL,
		u.Provider,
		u.IsPremium,
		u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if domainErr := translateUniqueViolation(err); domainErr != nil {
			return domainErr
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a single user by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + allColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// FindByEmail retrieves a user by exact email match.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + allColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// FindByGoogleID retrieves a user by the linked Google subject.
func (r *PostgresRepository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	query := `SELECT ` + allColumns + ` FROM users WHERE google_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, googleID))
}

// Update applies a partial update in a single statement. COALESCE keeps the
// current value for every field the patch leaves nil.
func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, p Patch) (*User, error) {
	query := `
		UPDATE users SET
			name          = COALESCE($2, name),
			avatar_url    = COALESCE($3, avatar_url),
			password_hash = COALESCE($4, password_hash),
			google_id     = COALESCE($5, google_id),
			is_premium    = COALESCE($6, is_premium),
			is_admin      = COALESCE($7, is_admin),
			updated_at    = NOW()
		WHERE id = $1
		RETURNING ` + allColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query,
		id, p.Name, p.AvatarURL, p.PasswordHash, p.GoogleID, p.IsPremium, p.IsAdmin,
	))
	if err != nil {
		if domainErr := translateUniqueViolation(err); domainErr != nil {
			return nil, domainErr
		}
		return nil, err
	}
	return u, nil
}

// List retrieves all users ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	query := `SELECT ` + allColumns + ` FROM users ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}

	return users, nil
}

// CountAll returns the total number of users in the table.
func (r *PostgresRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}
