package storage

import (
	"database/sql"
	"errors"
	"time"

	"promolink/internal/model"
)

// sqliteTimeLayout matches what CURRENT_TIMESTAMP stores.
const sqliteTimeLayout = "2006-01-02 15:04:05"

const outboxColumns = `o.id,o.instance_id,o.group_id,o.body,o.status,o.attempts,COALESCE(o.error,''),o.created_at,o.sent_at`

// Enqueue adds a pending post for a group.
func (s *Store) Enqueue(instanceID, groupID, body string) (int64, error) {
	res, err := s.DB.Exec(`INSERT INTO outbox (instance_id,group_id,body,status,attempts,created_at)
		VALUES (?,?,?,'pending',0,CURRENT_TIMESTAMP)`, instanceID, groupID, body)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// NextPending returns the oldest pending post of the instance whose group is
// still a destination and has not received anything within minInterval.
// ErrNotFound when nothing is ready.
func (s *Store) NextPending(instanceID string, minInterval time.Duration) (model.OutboxItem, error) {
	row := s.DB.QueryRow(`SELECT `+outboxColumns+`
		FROM outbox o
		JOIN groups g ON g.instance_id=o.instance_id AND g.id=o.group_id
		WHERE o.instance_id=? AND o.status='pending' AND g.destination=1
			AND (g.last_sent_at IS NULL OR g.last_sent_at <= datetime('now', ?))
		ORDER BY o.id ASC
		LIMIT 1`, instanceID, sqliteOffset(minInterval))
	item, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OutboxItem{}, ErrNotFound
	}
	return item, err
}

func (s *Store) ListOutbox(status string, limit int) ([]model.OutboxItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.DB.Query(`SELECT `+outboxColumns+` FROM outbox o
		WHERE (?='' OR o.status=?) ORDER BY o.id DESC LIMIT ?`, status, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.OutboxItem{}
	for rows.Next() {
		item, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) MarkOutboxSent(id int64) error {
	res, err := s.DB.Exec(`UPDATE outbox SET status='sent', attempts=attempts+1, error=NULL, sent_at=CURRENT_TIMESTAMP WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) MarkOutboxFailed(id int64, errMsg string) error {
	res, err := s.DB.Exec(`UPDATE outbox SET status='failed', attempts=attempts+1, error=? WHERE id=?`, errMsg, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// FailPendingForGroup drops everything still queued for a group.
func (s *Store) FailPendingForGroup(instanceID, groupID, reason string) (int64, error) {
	res, err := s.DB.Exec(`UPDATE outbox SET status='failed', error=? WHERE instance_id=? AND group_id=? AND status='pending'`,
		reason, instanceID, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountSentSince counts posts the instance delivered at or after since.
func (s *Store) CountSentSince(instanceID string, since time.Time) (int64, error) {
	var n int64
	err := s.DB.QueryRow(`SELECT COUNT(1) FROM outbox
		WHERE instance_id=? AND status='sent' AND sent_at >= datetime(?)`,
		instanceID, since.UTC().Format(sqliteTimeLayout)).Scan(&n)
	return n, err
}

func scanOutbox(r rowScanner) (model.OutboxItem, error) {
	var item model.OutboxItem
	var sentAt sql.NullTime
	if err := r.Scan(&item.ID, &item.InstanceID, &item.GroupID, &item.Body, &item.Status, &item.Attempts, &item.Error, &item.CreatedAt, &sentAt); err != nil {
		return model.OutboxItem{}, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		item.SentAt = &t
	}
	return item, nil
}
