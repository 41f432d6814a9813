// Package db provides the Postgres connection helper, schema migration, and the
// registry store backed by the registered_users table.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/match-tender/registry"
)

// Connect opens a Postgres connection for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	dbx.SetMaxOpenConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return dbx, nil
}

// UserStore implements registry.Store on the registered_users table.
// Save replaces the whole table inside one transaction so readers never observe
// a partial snapshot.
type UserStore struct {
	DB *sql.DB
}

// NewUserStore returns a UserStore using dbx.
func NewUserStore(dbx *sql.DB) *UserStore { return &UserStore{DB: dbx} }

// Load returns every registered user in registration order.
func (s *UserStore) Load(ctx context.Context) ([]registry.User, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id, steam_id, auto_notify, last_match_id FROM registered_users ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query registered users: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("failed to close rows", slog.Any("err", cerr), slog.String("component", "db"))
		}
	}()

	var users []registry.User
	for rows.Next() {
		var (
			u      registry.User
			lastID sql.NullInt64
		)
		if err := rows.Scan(&u.UserID, &u.SteamID, &u.AutoNotify, &lastID); err != nil {
			return nil, fmt.Errorf("scan registered user: %w", err)
		}
		if lastID.Valid {
			id := lastID.Int64
			u.LastMatchID = &id
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registered users: %w", err)
	}
	return users, nil
}

// Save replaces the table contents with users.
func (s *UserStore) Save(ctx context.Context, users []registry.User) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("rollback failed", slog.Any("err", rbErr), slog.String("component", "db"))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM registered_users`); err != nil {
		return fmt.Errorf("clear registered users: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO registered_users(user_id, steam_id, auto_notify, last_match_id, updated_at) VALUES($1,$2,$3,$4,NOW())`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range users {
		var lastID sql.NullInt64
		if u.LastMatchID != nil {
			lastID = sql.NullInt64{Int64: *u.LastMatchID, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, u.UserID, u.SteamID, u.AutoNotify, lastID); err != nil {
			return fmt.Errorf("insert user %s: %w", u.UserID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registry: %w", err)
	}
	return nil
}
