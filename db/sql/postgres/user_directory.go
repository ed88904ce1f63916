package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/adeilh/plot-auth/auth"
	"github.com/lib/pq"
)

var (
	ErrEmailInUse   = errors.New("postgres: email already in use")
	ErrInvalidInput = errors.New("postgres: invalid input")
	ErrUnknownRole  = errors.New("postgres: stored role is not recognized")
)

const (
	findByEmailQuery    = `SELECT id, email, name, password_hash, role, active FROM auth_find_user_by_email($1)`
	findByIDQuery       = `SELECT id, email, role, active FROM auth_find_user_by_id($1)`
	updatePasswordQuery = `SELECT auth_update_password_hash($1, $2)`
	createUserQuery     = `SELECT auth_create_user($1, $2, $3, $4)`
)

// NewUser describes an account to provision.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         auth.Role
}

// UserDirectory implements auth.UserDirectory on top of the stored
// functions installed by DefaultSchema.
type UserDirectory struct {
	db *sql.DB
}

var _ auth.UserDirectory = (*UserDirectory)(nil)

// NewUserDirectory wires a UserDirectory to an open *sql.DB.
func NewUserDirectory(db *sql.DB) (*UserDirectory, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &UserDirectory{db: db}, nil
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (auth.Credential, bool, error) {
	var (
		cred auth.Credential
		role string
	)
	err := d.db.QueryRowContext(ctx, findByEmailQuery, normalizeEmail(email)).
		Scan(&cred.UserID, &cred.Email, &cred.Name, &cred.PasswordHash, &role, &cred.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credential{}, false, nil
	}
	if err != nil {
		return auth.Credential{}, false, translateError("find user by email", err)
	}
	parsed, ok := auth.ParseRole(role)
	if !ok {
		return auth.Credential{}, false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	cred.Role = parsed
	return cred, true, nil
}

func (d *UserDirectory) FindByID(ctx context.Context, id int64) (auth.Principal, bool, error) {
	if id <= 0 {
		return auth.Principal{}, false, nil
	}
	var (
		p    auth.Principal
		role string
	)
	err := d.db.QueryRowContext(ctx, findByIDQuery, id).Scan(&p.ID, &p.Email, &role, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, false, nil
	}
	if err != nil {
		return auth.Principal{}, false, translateError("find user by id", err)
	}
	parsed, ok := auth.ParseRole(role)
	if !ok {
		return auth.Principal{}, false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	p.Role = parsed
	return p, true, nil
}

// UpdatePasswordHash replaces the stored hash. It returns auth.ErrUserNotFound
// when no account matches the email.
func (d *UserDirectory) UpdatePasswordHash(ctx context.Context, email, newHash string) error {
	if strings.TrimSpace(newHash) == "" {
		return fmt.Errorf("%w: empty password hash", ErrInvalidInput)
	}
	var affected int64
	if err := d.db.QueryRowContext(ctx, updatePasswordQuery, normalizeEmail(email), newHash).Scan(&affected); err != nil {
		return translateError("update password hash", err)
	}
	if affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// CreateUser inserts an account and returns its id.
func (d *UserDirectory) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	email := normalizeEmail(u.Email)
	if !auth.ValidateEmail(email) {
		return 0, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if !u.Role.IsValid() {
		return 0, fmt.Errorf("%w: role", ErrInvalidInput)
	}
	if strings.TrimSpace(u.PasswordHash) == "" {
		return 0, fmt.Errorf("%w: empty password hash", ErrInvalidInput)
	}
	var id int64
	err := d.db.QueryRowContext(ctx, createUserQuery, email, strings.TrimSpace(u.Name), u.PasswordHash, string(u.Role)).Scan(&id)
	if err != nil {
		return 0, translateError("create user", err)
	}
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func translateError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return ErrEmailInUse
		case "invalid_text_representation", "check_violation", "not_null_violation":
			return fmt.Errorf("%w: %s", ErrInvalidInput, pqErr.Message)
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
