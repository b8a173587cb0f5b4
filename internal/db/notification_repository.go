package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkoenig/pushdeck/internal/models"
)

// Notification repository errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidNotification  = errors.New("invalid notification")
)

// NotificationRepository handles notification persistence.
type NotificationRepository struct {
	db *DB
}

type notificationExecer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification. A missing ID is generated and a zero
// timestamp defaults to now.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.createWithExecutor(ctx, r.db, n)
}

// CreateUnique inserts a notification unless one with the same remote
// ID already exists. It reports whether the row was inserted. A
// notification without a remote ID is always inserted.
func (r *NotificationRepository) CreateUnique(ctx context.Context, n *models.Notification) (bool, error) {
	if n.RemoteID == "" {
		if err := r.Create(ctx, n); err != nil {
			return false, err
		}
		return true, nil
	}

	inserted := false
	err := r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		inserted = false
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notifications WHERE remote_id = ?`, n.RemoteID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check remote id: %w", err)
		}
		if exists > 0 {
			return nil
		}
		inserted = true
		return r.createWithExecutor(ctx, tx, n)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *NotificationRepository) createWithExecutor(ctx context.Context, execer notificationExecer, n *models.Notification) error {
	if n.TopicID == "" {
		return fmt.Errorf("%w: topic id is required", ErrInvalidNotification)
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}
	n.Priority = models.ParsePriority(int(n.Priority))

	tags, err := marshalJSONColumn(n.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	actions, err := marshalJSONColumn(n.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	attachments, err := marshalJSONColumn(n.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	var remoteID *string
	if n.RemoteID != "" {
		remoteID = &n.RemoteID
	}

	_, err = execer.ExecContext(ctx, `
		INSERT INTO notifications (
			id, subscription_id, remote_id, title, message, priority,
			tags, timestamp, read, favorite, expanded, actions, attachments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.TopicID,
		remoteID,
		n.Title,
		n.Message,
		int(n.Priority),
		tags,
		n.Timestamp,
		boolToInt(n.Read),
		boolToInt(n.Favorite),
		boolToInt(n.Expanded),
		actions,
		attachments,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ExistsByRemoteID reports whether any notification carries the given
// relay message ID.
func (r *NotificationRepository) ExistsByRemoteID(ctx context.Context, remoteID string) (bool, error) {
	if remoteID == "" {
		return false, nil
	}
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE remote_id = ?`, remoteID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check remote id: %w", err)
	}
	return count > 0, nil
}

// Get retrieves a notification by ID.
func (r *NotificationRepository) Get(ctx context.Context, id string) (models.Notification, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subscription_id, remote_id, title, message, priority,
		       tags, timestamp, read, favorite, expanded, actions, attachments
		FROM notifications WHERE id = ?
	`, id)
	return r.scanNotification(row)
}

// ListByTopic returns all notifications for a topic, newest first. Ties
// on timestamp are broken by ID so the order is stable.
func (r *NotificationRepository) ListByTopic(ctx context.Context, topicID string) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subscription_id, remote_id, title, message, priority,
		       tags, timestamp, read, favorite, expanded, actions, attachments
		FROM notifications
		WHERE subscription_id = ?
		ORDER BY timestamp DESC, id ASC
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return list, nil
}

// MarkRead marks a single notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	return r.updateFlag(ctx, id, "read", true)
}

// MarkTopicRead marks every notification in a topic as read.
func (r *NotificationRepository) MarkTopicRead(ctx context.Context, topicID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE subscription_id = ? AND read = 0`, topicID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark topic read: %w", err)
	}
	return nil
}

// SetFavorite sets the favorite flag on a notification.
func (r *NotificationRepository) SetFavorite(ctx context.Context, id string, favorite bool) error {
	return r.updateFlag(ctx, id, "favorite", favorite)
}

// SetExpanded sets the expanded flag on a notification.
func (r *NotificationRepository) SetExpanded(ctx context.Context, id string, expanded bool) error {
	return r.updateFlag(ctx, id, "expanded", expanded)
}

func (r *NotificationRepository) updateFlag(ctx context.Context, id, column string, value bool) error {
	// column is always one of the fixed flag names above
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE notifications SET %s = ? WHERE id = ?`, column),
		boolToInt(value), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Delete removes a notification.
func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// CountUnread returns the number of unread notifications in a topic.
func (r *NotificationRepository) CountUnread(ctx context.Context, topicID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE subscription_id = ? AND read = 0`, topicID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *NotificationRepository) scanNotification(row rowScanner) (models.Notification, error) {
	var (
		n           models.Notification
		remoteID    sql.NullString
		priority    int
		tags        string
		read        int
		favorite    int
		expanded    int
		actions     string
		attachments string
	)

	err := row.Scan(
		&n.ID,
		&n.TopicID,
		&remoteID,
		&n.Title,
		&n.Message,
		&priority,
		&tags,
		&n.Timestamp,
		&read,
		&favorite,
		&expanded,
		&actions,
		&attachments,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Notification{}, ErrNotificationNotFound
		}
		return models.Notification{}, fmt.Errorf("failed to scan notification: %w", err)
	}

	n.RemoteID = remoteID.String
	n.Priority = models.ParsePriority(priority)
	n.Read = read != 0
	n.Favorite = favorite != 0
	n.Expanded = expanded != 0

	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		r.db.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to parse tags")
	}
	if err := json.Unmarshal([]byte(actions), &n.Actions); err != nil {
		r.db.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to parse actions")
	}
	if err := json.Unmarshal([]byte(attachments), &n.Attachments); err != nil {
		r.db.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to parse attachments")
	}

	return n, nil
}

// marshalJSONColumn encodes a slice for a TEXT column, writing [] for
// nil so columns never hold SQL NULL.
func marshalJSONColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
