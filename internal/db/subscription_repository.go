package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkoenig/pushdeck/internal/models"
)

// Subscription repository errors.
var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrDuplicateSubscription = errors.New("subscription already exists for this server and topic")
)

// SubscriptionRepository handles subscription persistence.
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// subscriptionSelect joins servers for the URL and computes the unread
// count and the most recent notification timestamp per subscription.
const subscriptionSelect = `
	SELECT s.id, s.topic, srv.url AS server_url, s.display_name, s.muted, s.last_sync,
	       (SELECT COUNT(*) FROM notifications n WHERE n.subscription_id = s.id AND n.read = 0) AS unread,
	       (SELECT MAX(n.timestamp) FROM notifications n WHERE n.subscription_id = s.id) AS last_notified
	FROM subscriptions s
	JOIN servers srv ON srv.id = s.server_id`

// Create inserts a subscription. The server is resolved from the
// subscription's ServerURL and must already exist.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if err := models.ValidateSubscription(sub.Topic, sub.ServerURL); err != nil {
		return err
	}

	serverURL := models.NormalizeURL(sub.ServerURL)
	var serverID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM servers WHERE url = ?`, serverURL,
	).Scan(&serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrServerNotFound, serverURL)
		}
		return fmt.Errorf("failed to resolve server: %w", err)
	}

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.ServerURL = serverURL

	var displayName *string
	if sub.DisplayName != "" {
		displayName = &sub.DisplayName
	}
	var lastSync *int64
	if sub.LastSync != 0 {
		lastSync = &sub.LastSync
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, server_id, topic, display_name, muted, last_sync)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		sub.ID,
		serverID,
		sub.Topic,
		displayName,
		boolToInt(sub.Muted),
		lastSync,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateSubscription, sub.Topic, serverURL)
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	return nil
}

// Get retrieves a subscription by ID.
func (r *SubscriptionRepository) Get(ctx context.Context, id string) (models.Subscription, error) {
	row := r.db.QueryRowContext(ctx, subscriptionSelect+` WHERE s.id = ?`, id)
	return r.scanSubscription(row)
}

// List returns all subscriptions, most recently notified first.
func (r *SubscriptionRepository) List(ctx context.Context) ([]models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, subscriptionSelect+` ORDER BY last_notified DESC NULLS LAST, s.topic ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var list []models.Subscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return list, nil
}

// ToggleMute flips the muted flag and returns the new state.
func (r *SubscriptionRepository) ToggleMute(ctx context.Context, id string) (bool, error) {
	var muted bool
	err := r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT muted FROM subscriptions WHERE id = ?`, id,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSubscriptionNotFound
			}
			return fmt.Errorf("failed to read muted flag: %w", err)
		}

		muted = current == 0
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET muted = ? WHERE id = ?`, boolToInt(muted), id,
		); err != nil {
			return fmt.Errorf("failed to update muted flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return muted, nil
}

// UpdateLastSync advances the poll cursor for a subscription.
func (r *SubscriptionRepository) UpdateLastSync(ctx context.Context, id string, lastSync int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_sync = ? WHERE id = ?`, lastSync, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Delete removes a subscription. Its notifications are removed by the
// foreign key cascade.
func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *SubscriptionRepository) scanSubscription(row rowScanner) (models.Subscription, error) {
	var (
		sub          models.Subscription
		displayName  sql.NullString
		muted        int
		lastSync     sql.NullInt64
		lastNotified sql.NullInt64
	)

	err := row.Scan(
		&sub.ID,
		&sub.Topic,
		&sub.ServerURL,
		&displayName,
		&muted,
		&lastSync,
		&sub.UnreadCount,
		&lastNotified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Subscription{}, ErrSubscriptionNotFound
		}
		return models.Subscription{}, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.DisplayName = displayName.String
	sub.Muted = muted != 0
	sub.LastSync = lastSync.Int64

	return sub, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
