// Package postgres implements AppStore on PostgreSQL using sqlx. Uniqueness is
// enforced by table constraints (see internal/db/migrations); a violation is
// reported as *store.DuplicateError.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/db"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/store"
)

func init() {
	store.Register(config.BackendPostgres, func(_ context.Context, cfg *config.Config) (store.AppStore, error) {
		sqlDB, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(sqlDB, "up"); err != nil {
			sqlDB.Close()
			return nil, err
		}
		log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("postgres app store ready")
		return New(sqlx.NewDb(sqlDB, "postgres")), nil
	})
}

const uniqueViolation = "23505"

var constraintFields = map[string]string{
	"apps_app_name_key":     store.FieldAppName,
	"apps_sender_email_key": store.FieldSenderEmail,
	"apps_api_key_hash_key": store.FieldAPIKeyHash,
}

const appColumns = `id, app_name, sender_email, status, api_key_hash, external_key_id, key_created_at, created_at, updated_at`

// Store handles app record operations against PostgreSQL
type Store struct {
	db *sqlx.DB
}

// New creates a Store over an open connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// mapError converts unique violations into *store.DuplicateError.
func mapError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		if field, ok := constraintFields[pqErr.Constraint]; ok {
			return &store.DuplicateError{Field: field}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *Store) Insert(ctx context.Context, app *models.App) error {
	app.ID = uuid.New().String()

	query := `
		INSERT INTO apps (id, app_name, sender_email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		app.ID,
		app.AppName,
		app.SenderEmail,
		app.Status,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		app.ID = ""
		return mapError(err, "insert app")
	}
	return nil
}

func (s *Store) getOne(ctx context.Context, where string, arg interface{}) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE ` + where

	var app models.App
	err := s.db.GetContext(ctx, &app, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return &app, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.App, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}
	return s.getOne(ctx, "id = $1", id)
}

func (s *Store) FindByName(ctx context.Context, name string) (*models.App, error) {
	return s.getOne(ctx, "app_name = $1", name)
}

func (s *Store) FindBySenderEmail(ctx context.Context, email string) (*models.App, error) {
	return s.getOne(ctx, "sender_email = $1", email)
}

func (s *Store) FindByKeyHash(ctx context.Context, hash string) (*models.App, error) {
	if hash == "" {
		return nil, store.ErrNotFound
	}
	return s.getOne(ctx, "api_key_hash = $1", hash)
}

func (s *Store) List(ctx context.Context) ([]*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps ORDER BY created_at`

	var apps []*models.App
	if err := s.db.SelectContext(ctx, &apps, query); err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	if apps == nil {
		apps = []*models.App{}
	}
	return apps, nil
}

// ActivateKey guards the update with IS NOT DISTINCT FROM so an expected
// "no key" matches a NULL column.
func (s *Store) ActivateKey(ctx context.Context, id, expectedKeyID string, grant models.KeyGrant) error {
	expected := sql.NullString{String: expectedKeyID, Valid: expectedKeyID != ""}

	query := `
		UPDATE apps
		SET external_key_id = $2, api_key_hash = $3, key_created_at = $4, status = $5, updated_at = $4
		WHERE id = $1 AND external_key_id IS NOT DISTINCT FROM $6
	`
	res, err := s.db.ExecContext(ctx, query,
		id,
		grant.ExternalKeyID,
		grant.KeyHash,
		grant.CreatedAt,
		models.StatusActive,
		expected,
	)
	if err != nil {
		return mapError(err, "activate key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to activate key: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.missOrStale(ctx, id)
}

// missOrStale distinguishes a vanished row from a lost conditional update.
func (s *Store) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM apps WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check app: %w", err)
	}
	if exists {
		return store.ErrStaleKey
	}
	return store.ErrNotFound
}

func (s *Store) ClearKey(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE apps
		SET external_key_id = NULL, api_key_hash = NULL, key_created_at = NULL, status = $2, updated_at = $3
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, models.StatusInactive, now)
	if err != nil {
		return fmt.Errorf("failed to clear key: %w", err)
	}
	return requireRow(res, "clear key")
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	return requireRow(res, "delete app")
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}
