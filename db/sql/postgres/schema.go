package postgres

// DefaultSchema creates the account table and the stored functions the
// UserDirectory calls. Every statement is idempotent.
var DefaultSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS citext`,
	`CREATE TABLE IF NOT EXISTS plot_users (
		id            BIGSERIAL PRIMARY KEY,
		email         CITEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('Owner', 'Manager', 'Employee')),
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE OR REPLACE FUNCTION auth_find_user_by_email(p_email TEXT)
	RETURNS TABLE (id BIGINT, email TEXT, name TEXT, password_hash TEXT, role TEXT, active BOOLEAN)
	LANGUAGE sql STABLE AS $$
		SELECT u.id, u.email::TEXT, u.name, u.password_hash, u.role, u.active
		FROM plot_users u
		WHERE u.email = p_email::CITEXT
	$$`,
	`CREATE OR REPLACE FUNCTION auth_find_user_by_id(p_id BIGINT)
	RETURNS TABLE (id BIGINT, email TEXT, role TEXT, active BOOLEAN)
	LANGUAGE sql STABLE AS $$
		SELECT u.id, u.email::TEXT, u.role, u.active
		FROM plot_users u
		WHERE u.id = p_id
	$$`,
	`CREATE OR REPLACE FUNCTION auth_update_password_hash(p_email TEXT, p_hash TEXT)
	RETURNS BIGINT
	LANGUAGE sql AS $$
		WITH updated AS (
			UPDATE plot_users
			SET password_hash = p_hash, updated_at = NOW()
			WHERE email = p_email::CITEXT
			RETURNING 1
		)
		SELECT COUNT(*) FROM updated
	$$`,
	`CREATE OR REPLACE FUNCTION auth_create_user(p_email TEXT, p_name TEXT, p_hash TEXT, p_role TEXT)
	RETURNS BIGINT
	LANGUAGE sql AS $$
		INSERT INTO plot_users (email, name, password_hash, role)
		VALUES (p_email::CITEXT, p_name, p_hash, p_role)
		RETURNING id
	$$`,
}
