package storage

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"promolink/internal/model"
)

const templateColumns = `id,name,body,enabled,is_default,created_at,updated_at`

func (s *Store) CreateTemplate(name, body string, enabled bool) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.Exec(`INSERT INTO templates (id,name,body,enabled,is_default,created_at,updated_at)
		VALUES (?,?,?,?,0,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`, id, name, body, btoi(enabled))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListTemplates() ([]model.Template, error) {
	rows, err := s.DB.Query(`SELECT ` + templateColumns + ` FROM templates ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTemplate(id string) (model.Template, error) {
	t, err := scanTemplate(s.DB.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	return t, err
}

func (s *Store) UpdateTemplate(id, name, body string, enabled bool) error {
	res, err := s.DB.Exec(`UPDATE templates SET name=?, body=?, enabled=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		name, body, btoi(enabled), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) DeleteTemplate(id string) error {
	res, err := s.DB.Exec(`DELETE FROM templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// SetDefaultTemplate makes id the only default template.
func (s *Store) SetDefaultTemplate(id string) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE templates SET is_default=1, updated_at=CURRENT_TIMESTAMP WHERE id=?`, id)
	if err != nil {
		return err
	}
	if err := affected(res); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE templates SET is_default=0 WHERE id<>?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveTemplate returns the enabled default template, falling back to the
// most recently updated enabled one. ErrNotFound when none is enabled.
func (s *Store) ActiveTemplate() (model.Template, error) {
	t, err := scanTemplate(s.DB.QueryRow(`SELECT ` + templateColumns + ` FROM templates
		WHERE enabled=1 ORDER BY is_default DESC, updated_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	return t, err
}

func scanTemplate(r rowScanner) (model.Template, error) {
	var t model.Template
	var enabled, isDefault int
	if err := r.Scan(&t.ID, &t.Name, &t.Body, &enabled, &isDefault, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Template{}, err
	}
	t.Enabled = enabled == 1
	t.IsDefault = isDefault == 1
	return t, nil
}
