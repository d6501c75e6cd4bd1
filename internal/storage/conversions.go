package storage

import (
	"fmt"
	"time"

	"promolink/internal/model"
)

// LogConversion appends an audit row and returns its ID.
func (s *Store) LogConversion(c model.Conversion) (int64, error) {
	res, err := s.DB.Exec(`INSERT INTO conversions (ts,instance_id,source_group,marketplace,original_url,affiliate_url,status,error)
		VALUES (CURRENT_TIMESTAMP,?,?,?,?,?,?,?)`,
		nullStr(c.InstanceID), nullStr(c.SourceGroup), c.Marketplace, c.OriginalURL, nullStr(c.AffiliateURL), c.Status, nullStr(c.Error))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListConversions returns the latest conversions, newest first.
func (s *Store) ListConversions(instanceID string, limit int) ([]model.Conversion, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.DB.Query(`SELECT id,ts,COALESCE(instance_id,''),COALESCE(source_group,''),marketplace,original_url,COALESCE(affiliate_url,''),status,COALESCE(error,'')
		FROM conversions
		WHERE (?='' OR instance_id=?)
		ORDER BY id DESC LIMIT ?`, instanceID, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Conversion{}
	for rows.Next() {
		var c model.Conversion
		if err := rows.Scan(&c.ID, &c.TS, &c.InstanceID, &c.SourceGroup, &c.Marketplace, &c.OriginalURL, &c.AffiliateURL, &c.Status, &c.Error); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentlyRelayed reports whether the instance already relayed originalURL
// within window.
func (s *Store) RecentlyRelayed(instanceID, originalURL string, window time.Duration) (bool, error) {
	var n int
	err := s.DB.QueryRow(`SELECT COUNT(1) FROM conversions
		WHERE instance_id=? AND original_url=? AND status IN (?,?) AND ts >= datetime('now', ?)`,
		instanceID, originalURL, model.ConversionConverted, model.ConversionCached, sqliteOffset(window)).Scan(&n)
	return n > 0, err
}

// StatsToday aggregates conversions and outbox activity since midnight UTC.
func (s *Store) StatsToday() (model.Stats, error) {
	var st model.Stats
	err := s.DB.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status='failed' THEN 1 ELSE 0 END), 0)
		FROM conversions
		WHERE ts >= datetime('now','start of day')`).Scan(&st.ConversionsTotal, &st.ConversionsFailed)
	if err != nil {
		return model.Stats{}, err
	}
	err = s.DB.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status='sent' AND sent_at >= datetime('now','start of day') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='failed' AND created_at >= datetime('now','start of day') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='pending' THEN 1 ELSE 0 END), 0)
		FROM outbox`).Scan(&st.PostsSent, &st.PostsFailed, &st.PostsPending)
	if err != nil {
		return model.Stats{}, err
	}
	return st, nil
}

func sqliteOffset(d time.Duration) string {
	return fmt.Sprintf("-%d seconds", int64(d/time.Second))
}
