package state_managers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/benmeehan/action-verifier/internal/models"
)

const auditBucket = "verified_results"

// AuditStateManager keeps an append-only trail of verified results in a bbolt file.
type AuditStateManager struct {
	db     *bolt.DB
	logger zerolog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewAuditStateManager opens (or creates) the audit file at path.
func NewAuditStateManager(path string, logger zerolog.Logger) (*AuditStateManager, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(auditBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", auditBucket, err)
	}

	return &AuditStateManager{db: db, logger: logger, now: time.Now}, nil
}

// recordKey orders records of one correlation id chronologically. The id is escaped
// so a '/' inside it cannot make one id a key prefix of another.
func recordKey(correlationID string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d", recordPrefix(correlationID), at.UnixNano()))
}

func recordPrefix(correlationID string) string {
	return url.PathEscape(correlationID) + "/"
}

// Append stores record. RecordedAt is set when zero.
func (sm *AuditStateManager) Append(record models.AuditRecord) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if record.RecordedAt.IsZero() {
		record.RecordedAt = sm.now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		sm.logger.Error().Err(err).Msg("Failed to marshal audit record")
		return err
	}

	return sm.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		key := recordKey(record.CorrelationID, record.RecordedAt)
		// Two records in the same nanosecond keep both entries.
		for b.Get(key) != nil {
			record.RecordedAt = record.RecordedAt.Add(time.Nanosecond)
			key = recordKey(record.CorrelationID, record.RecordedAt)
		}
		return b.Put(key, data)
	})
}

// List returns the records of correlationID in the order they were appended.
// An empty correlationID lists every record.
func (sm *AuditStateManager) List(correlationID string) ([]models.AuditRecord, error) {
	records := make([]models.AuditRecord, 0)
	prefix := []byte(recordPrefix(correlationID))
	if correlationID == "" {
		prefix = nil
	}

	err := sm.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(auditBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record models.AuditRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal audit record %s: %w", string(k), err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		sm.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to read audit trail")
		return nil, err
	}
	return records, nil
}

// Close releases the audit file.
func (sm *AuditStateManager) Close() error {
	return sm.db.Close()
}
