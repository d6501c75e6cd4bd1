package storage

import (
	"database/sql"
	"errors"

	"promolink/internal/model"
)

const groupColumns = `id,instance_id,COALESCE(name,''),monitored,destination,last_sent_at,risk_score,created_at`

// UpsertGroup inserts/updates group record for an instance. Flags survive re-syncs.
func (s *Store) UpsertGroup(instanceID, groupID, name string) error {
	_, err := s.DB.Exec(`
		INSERT INTO groups (id, instance_id, name, created_at)
		VALUES (?,?,?, CURRENT_TIMESTAMP)
		ON CONFLICT(instance_id, id) DO UPDATE SET
			name=COALESCE(NULLIF(excluded.name,''), groups.name)
	`, groupID, instanceID, name)
	return err
}

// ListGroups lists groups of one instance, or all groups when instanceID is empty.
func (s *Store) ListGroups(instanceID string) ([]model.Group, error) {
	var rows *sql.Rows
	var err error
	if instanceID != "" {
		rows, err = s.DB.Query(`SELECT `+groupColumns+` FROM groups WHERE instance_id=? ORDER BY name, id`, instanceID)
	} else {
		rows, err = s.DB.Query(`SELECT ` + groupColumns + ` FROM groups ORDER BY name, id`)
	}
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

// ListDestinations returns the destination groups of an instance.
func (s *Store) ListDestinations(instanceID string) ([]model.Group, error) {
	rows, err := s.DB.Query(`SELECT `+groupColumns+` FROM groups WHERE instance_id=? AND destination=1 ORDER BY name, id`, instanceID)
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

func (s *Store) GetGroup(instanceID, groupID string) (model.Group, error) {
	g, err := scanGroup(s.DB.QueryRow(`SELECT `+groupColumns+` FROM groups WHERE instance_id=? AND id=?`, instanceID, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, ErrNotFound
	}
	return g, err
}

// IsMonitored reports whether links posted in the group should be relayed.
func (s *Store) IsMonitored(instanceID, groupID string) (bool, error) {
	var n int
	err := s.DB.QueryRow(`SELECT COUNT(1) FROM groups WHERE instance_id=? AND id=? AND monitored=1`, instanceID, groupID).Scan(&n)
	return n > 0, err
}

// DestinationDisabled is the error recorded on posts dropped because their
// group stopped being a destination.
const DestinationDisabled = "destination disabled"

// SetGroupFlags updates the flags that are non-nil. Re-enabling a
// destination clears its risk score; disabling one fails its pending posts.
func (s *Store) SetGroupFlags(instanceID, groupID string, monitored, destination *bool) error {
	if _, err := s.GetGroup(instanceID, groupID); err != nil {
		return err
	}
	if monitored != nil {
		if _, err := s.DB.Exec(`UPDATE groups SET monitored=? WHERE instance_id=? AND id=?`, btoi(*monitored), instanceID, groupID); err != nil {
			return err
		}
	}
	if destination != nil {
		q := `UPDATE groups SET destination=? WHERE instance_id=? AND id=?`
		if *destination {
			q = `UPDATE groups SET destination=?, risk_score=0 WHERE instance_id=? AND id=?`
		}
		if _, err := s.DB.Exec(q, btoi(*destination), instanceID, groupID); err != nil {
			return err
		}
		if !*destination {
			if _, err := s.FailPendingForGroup(instanceID, groupID, DestinationDisabled); err != nil {
				return err
			}
		}
	}
	return nil
}

// GroupName returns "" when the group is unknown.
func (s *Store) GroupName(instanceID, groupID string) string {
	var name sql.NullString
	_ = s.DB.QueryRow(`SELECT name FROM groups WHERE instance_id=? AND id=?`, instanceID, groupID).Scan(&name)
	return name.String
}

// MarkGroupSent stamps last_sent_at for cadence enforcement.
func (s *Store) MarkGroupSent(instanceID, groupID string) error {
	_, err := s.DB.Exec(`UPDATE groups SET last_sent_at=CURRENT_TIMESTAMP WHERE instance_id=? AND id=?`, instanceID, groupID)
	return err
}

// BumpRisk increments the risk score and stops using the group as a
// destination once it reaches threshold. It reports whether the group was disabled.
func (s *Store) BumpRisk(instanceID, groupID string, threshold int) (bool, error) {
	if _, err := s.DB.Exec(`UPDATE groups SET risk_score = risk_score + 1 WHERE instance_id=? AND id=?`, instanceID, groupID); err != nil {
		return false, err
	}
	res, err := s.DB.Exec(`UPDATE groups SET destination=0 WHERE instance_id=? AND id=? AND destination=1 AND risk_score >= ?`, instanceID, groupID, threshold)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func collectGroups(rows *sql.Rows) ([]model.Group, error) {
	defer rows.Close()
	res := []model.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func scanGroup(r rowScanner) (model.Group, error) {
	var g model.Group
	var monitored, destination int
	var lastSent sql.NullTime
	if err := r.Scan(&g.ID, &g.InstanceID, &g.Name, &monitored, &destination, &lastSent, &g.RiskScore, &g.CreatedAt); err != nil {
		return model.Group{}, err
	}
	g.Monitored = monitored == 1
	g.Destination = destination == 1
	if lastSent.Valid {
		t := lastSent.Time
		g.LastSentAt = &t
	}
	return g, nil
}
