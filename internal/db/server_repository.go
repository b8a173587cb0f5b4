package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkoenig/pushdeck/internal/models"
)

// Server repository errors.
var (
	ErrServerNotFound  = errors.New("server not found")
	ErrDuplicateServer = errors.New("server already exists")
)

// ServerRepository handles relay server persistence.
type ServerRepository struct {
	db *DB
}

// NewServerRepository creates a new ServerRepository.
func NewServerRepository(db *DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// Create inserts a server. The URL is normalized first. The first
// server ever added becomes the default automatically.
func (r *ServerRepository) Create(ctx context.Context, server *models.Server) error {
	if err := models.ValidateServerURL(server.URL); err != nil {
		return err
	}

	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	server.URL = models.NormalizeURL(server.URL)

	return r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM servers`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count servers: %w", err)
		}
		if count == 0 {
			server.IsDefault = true
		}

		if server.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE servers SET is_default = 0`); err != nil {
				return fmt.Errorf("failed to clear default server: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO servers (id, url, is_default) VALUES (?, ?, ?)`,
			server.ID, server.URL, boolToInt(server.IsDefault),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateServer, server.URL)
			}
			return fmt.Errorf("failed to insert server: %w", err)
		}
		return nil
	})
}

// Get retrieves a server by ID.
func (r *ServerRepository) Get(ctx context.Context, id string) (models.Server, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, is_default FROM servers WHERE id = ?`, id,
	)
	return r.scanServer(row)
}

// GetByURL retrieves a server by its normalized URL.
func (r *ServerRepository) GetByURL(ctx context.Context, url string) (models.Server, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, is_default FROM servers WHERE url = ?`, models.NormalizeURL(url),
	)
	return r.scanServer(row)
}

// GetDefault retrieves the default server.
func (r *ServerRepository) GetDefault(ctx context.Context) (models.Server, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, is_default FROM servers WHERE is_default = 1 LIMIT 1`,
	)
	return r.scanServer(row)
}

// List returns all servers, default first.
func (r *ServerRepository) List(ctx context.Context) ([]models.Server, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, is_default FROM servers ORDER BY is_default DESC, url ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	var list []models.Server
	for rows.Next() {
		server, err := r.scanServer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating servers: %w", err)
	}

	return list, nil
}

// SetDefault marks the given server as the default.
func (r *ServerRepository) SetDefault(ctx context.Context, id string) error {
	return r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE servers SET is_default = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to set default server: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return ErrServerNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE servers SET is_default = 0 WHERE id != ?`, id,
		); err != nil {
			return fmt.Errorf("failed to clear default server: %w", err)
		}
		return nil
	})
}

// Delete removes a server. Its subscriptions, and their notifications,
// are removed by the foreign key cascade.
func (r *ServerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrServerNotFound
	}
	return nil
}

func (r *ServerRepository) scanServer(row rowScanner) (models.Server, error) {
	var (
		server    models.Server
		isDefault int
	)

	err := row.Scan(&server.ID, &server.URL, &isDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Server{}, ErrServerNotFound
		}
		return models.Server{}, fmt.Errorf("failed to scan server: %w", err)
	}

	server.IsDefault = isDefault != 0
	return server, nil
}
