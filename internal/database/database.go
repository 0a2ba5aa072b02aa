package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Models lists every table managed by this package.
var Models = []interface{}{&Setting{}, &HostKey{}, &FingerprintSnapshot{}, &FingerprintEntry{}, &AuditLog{}}

func Init(dbPath string) error {
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// GetHostKey returns the stored key pair for algorithm, or
// gorm.ErrRecordNotFound.
func GetHostKey(algorithm string) (*HostKey, error) {
	var k HostKey
	if err := DB.Where("algorithm = ?", algorithm).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// SaveHostKey inserts or replaces the key pair of k.Algorithm.
func SaveHostKey(k *HostKey) error {
	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "algorithm"}},
		DoUpdates: clause.AssignmentColumns([]string{"public_key", "private_key", "updated_at"}),
	}).Create(k).Error
}

// ResealHostKeys replaces every stored private key token with reseal(token).
// All rows are updated in one transaction after every token was resealed.
func ResealHostKeys(reseal func(token string) (string, error)) (int, error) {
	var keys []HostKey
	if err := DB.Find(&keys).Error; err != nil {
		return 0, fmt.Errorf("list host keys: %w", err)
	}
	sealed := make([]string, len(keys))
	for i, k := range keys {
		tok, err := reseal(k.PrivateKey)
		if err != nil {
			return 0, fmt.Errorf("reseal %s: %w", k.Algorithm, err)
		}
		sealed[i] = tok
	}

	err := DB.Transaction(func(tx *gorm.DB) error {
		for i, k := range keys {
			if err := tx.Model(&HostKey{}).Where("algorithm = ?", k.Algorithm).Update("private_key", sealed[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update host keys: %w", err)
	}
	return len(keys), nil
}

func DeleteHostKey(algorithm string) error {
	return DB.Where("algorithm = ?", algorithm).Delete(&HostKey{}).Error
}

// SaveSnapshot stores a snapshot together with its entries in one
// transaction.
func SaveSnapshot(snap *FingerprintSnapshot) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(snap).Error
	})
}

// LatestSnapshot returns the most recent snapshot with its entries, or nil if
// none has been stored yet.
func LatestSnapshot() (*FingerprintSnapshot, error) {
	var snap FingerprintSnapshot
	err := DB.Preload("Entries").Order("generated_at DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func PruneSnapshots(keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	var ids []string
	if err := DB.Model(&FingerprintSnapshot{}).Order("generated_at DESC").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	if len(ids) <= keep {
		return 0, nil
	}
	ids = ids[keep:]
	var deleted int64
	err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("snapshot_id IN ?", ids).Delete(&FingerprintEntry{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&FingerprintSnapshot{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return deleted, nil
}
