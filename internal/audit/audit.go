package audit

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/pftpd/pftpd-core/internal/database"
	"github.com/pftpd/pftpd-core/internal/logutil"
)

const (
	EventFingerprintsGenerated = "fingerprints_generated"
	EventFingerprintChanged    = "fingerprint_changed"
	EventKeyAdded              = "key_added"
	EventKeyRemoved            = "key_removed"
	EventKeyAbsent             = "key_absent"
	EventKeysImported          = "keys_imported"
	EventPathClamped           = "path_clamped"
)

// DefaultRetentionDays is the default number of days to keep audit logs.
const DefaultRetentionDays = 90

// Recorder accepts audit events.
type Recorder interface {
	Record(eventType, subject, details string) error
}

// Auditor writes audit events to the database.
type Auditor struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time
}

// NewAuditor creates an Auditor on db and migrates the audit table.
// If retentionDays is 0, DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int) (*Auditor, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if err := db.AutoMigrate(&database.AuditLog{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}, nil
}

// Record stores an event. Subject and details are sanitized before logging.
func (a *Auditor) Record(eventType, subject, details string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := database.AuditLog{
		EventType: eventType,
		Subject:   subject,
		Details:   details,
		CreatedAt: a.nowFn(),
	}
	if err := a.db.Create(&entry).Error; err != nil {
		log.Printf("[audit] failed to write audit log: %v", err)
		return err
	}

	log.Printf("[audit] %s subject=%s details=%s",
		eventType,
		logutil.SanitizeForLog(subject),
		logutil.SanitizeForLog(details),
	)
	return nil
}

// QueryOptions specifies filters for retrieving audit logs.
type QueryOptions struct {
	EventType string
	Subject   string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains audit log entries and pagination metadata.
type QueryResult struct {
	Entries []database.AuditLog `json:"entries" yaml:"entries"`
	Total   int64               `json:"total" yaml:"total"`
	Limit   int                 `json:"limit" yaml:"limit"`
	Offset  int                 `json:"offset" yaml:"offset"`
}

// Query retrieves audit log entries matching opts, newest first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx := a.db.Model(&database.AuditLog{})
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Subject != "" {
		tx = tx.Where("subject = ?", opts.Subject)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var entries []database.AuditLog
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan removes entries older than days, or than the configured
// retention period when days is 0. It returns the number of deleted rows.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.AuditLog{})
	if result.Error != nil {
		log.Printf("[audit] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[audit] purged %d audit log entries older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc sets the clock function used for testing.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nowFn = fn
}

// Record sends an event to r if r is not nil. Failures are logged only.
func Record(r Recorder, eventType, subject, details string) {
	if r == nil {
		return
	}
	if err := r.Record(eventType, subject, details); err != nil {
		log.Printf("[audit] dropping %s event: %v", eventType, err)
	}
}
