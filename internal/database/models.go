package database

import "time"

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HostKey holds one algorithm's key pair. PrivateKey is a fernet token.
type HostKey struct {
	Algorithm  string    `gorm:"primaryKey;size:32" json:"algorithm"`
	PublicKey  string    `gorm:"type:text;not null" json:"public_key"`
	PrivateKey string    `gorm:"type:text;not null" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FingerprintSnapshot is one generation pass of the fingerprint registry.
type FingerprintSnapshot struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	GeneratedAt time.Time `gorm:"not null;index" json:"generated_at"`
	Present     bool      `gorm:"not null" json:"present"`

	Entries []FingerprintEntry `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE" json:"entries"`
}

type FingerprintEntry struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	SnapshotID string `gorm:"not null;size:36;uniqueIndex:idx_snap_alg_hash" json:"-"`
	Algorithm  string `gorm:"not null;size:32;uniqueIndex:idx_snap_alg_hash" json:"algorithm"`
	HashKind   string `gorm:"not null;size:16;uniqueIndex:idx_snap_alg_hash" json:"hash"`
	Hex        string `gorm:"not null" json:"hex"`
	Base64     string `gorm:"not null" json:"base64"`
}

type AuditLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id" yaml:"id"`
	EventType string    `gorm:"not null;index;size:32" json:"event_type" yaml:"event_type"`
	Subject   string    `gorm:"index;size:255" json:"subject" yaml:"subject"`
	Details   string    `gorm:"type:text" json:"details" yaml:"details"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at" yaml:"created_at"`
}
