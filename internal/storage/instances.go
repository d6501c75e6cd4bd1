package storage

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"promolink/internal/model"
)

const instanceColumns = `id,label,COALESCE(msisdn,''),COALESCE(device_jid,''),enabled,daily_limit,status,COALESCE(last_error,''),created_at,updated_at`

// CreateInstance inserts a new instance and returns its generated ID.
func (s *Store) CreateInstance(label, msisdn string, enabled bool, dailyLimit int) (string, error) {
	if dailyLimit <= 0 {
		dailyLimit = 100
	}
	id := uuid.NewString()
	_, err := s.DB.Exec(`INSERT INTO instances (id,label,msisdn,enabled,daily_limit,status,last_error,created_at,updated_at)
		VALUES (?,?,?,?,?,'inactive','',CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
		id, label, msisdn, btoi(enabled), dailyLimit)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListInstances returns all instances, newest first.
func (s *Store) ListInstances() ([]model.Instance, error) {
	rows, err := s.DB.Query(`SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Instance{}
	for rows.Next() {
		a, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// GetInstance returns ErrNotFound for unknown IDs.
func (s *Store) GetInstance(id string) (model.Instance, error) {
	a, err := scanInstance(s.DB.QueryRow(`SELECT `+instanceColumns+` FROM instances WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Instance{}, ErrNotFound
	}
	return a, err
}

func (s *Store) InstanceExists(id string) (bool, error) {
	var n int
	if err := s.DB.QueryRow(`SELECT COUNT(1) FROM instances WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateInstance overwrites label, msisdn, enabled and daily_limit.
func (s *Store) UpdateInstance(id, label, msisdn string, enabled bool, dailyLimit int) error {
	if dailyLimit <= 0 {
		dailyLimit = 100
	}
	res, err := s.DB.Exec(`UPDATE instances
		SET label=?, msisdn=?, enabled=?, daily_limit=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=?`,
		label, msisdn, btoi(enabled), dailyLimit, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// UpdateInstanceStatus records a lifecycle change. A non-empty msisdn
// replaces the stored number.
func (s *Store) UpdateInstanceStatus(id, status, lastError string, msisdnOpt *string) error {
	if msisdnOpt != nil {
		_, err := s.DB.Exec(`UPDATE instances SET status=?, last_error=?, msisdn=COALESCE(NULLIF(?, ''), msisdn), updated_at=CURRENT_TIMESTAMP WHERE id=?`,
			status, lastError, *msisdnOpt, id)
		return err
	}
	_, err := s.DB.Exec(`UPDATE instances SET status=?, last_error=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		status, lastError, id)
	return err
}

// SetDeviceJID binds the whatsmeow device to the instance; empty clears it.
func (s *Store) SetDeviceJID(id, jid string) error {
	_, err := s.DB.Exec(`UPDATE instances SET device_jid=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, nullStr(jid), id)
	return err
}

// DeleteInstance removes the instance; groups and outbox rows cascade.
func (s *Store) DeleteInstance(id string) error {
	res, err := s.DB.Exec(`DELETE FROM instances WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(r rowScanner) (model.Instance, error) {
	var a model.Instance
	var enabled int
	if err := r.Scan(&a.ID, &a.Label, &a.Msisdn, &a.DeviceJID, &enabled, &a.DailyLimit, &a.Status, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Instance{}, err
	}
	a.Enabled = enabled == 1
	return a, nil
}
