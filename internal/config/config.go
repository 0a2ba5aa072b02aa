package config

import (
	"log"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:"/var/lib/pftpd"`
	KeyDir       string `envconfig:"KEY_DIR" default:""`
	KeyStore     string `envconfig:"KEY_STORE" default:"dir"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`

	// Sandbox settings
	SandboxRoot string `envconfig:"SANDBOX_ROOT" default:"/srv/pftpd"`
	HomeDir     string `envconfig:"HOME_DIR" default:"/"`

	// Fingerprint rotation watcher
	RotationSchedule   string `envconfig:"ROTATION_SCHEDULE" default:"@every 1h"`
	SnapshotsToKeep    int    `envconfig:"SNAPSHOTS_TO_KEEP" default:"20"`
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`

	OutputFormat string `envconfig:"OUTPUT_FORMAT" default:"text"`
}

var Cfg Settings

func Load() {
	if err := Process(&Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// Process fills s from PFTPD_* environment variables and derives the paths
// left empty from DataPath.
func Process(s *Settings) error {
	if err := envconfig.Process("PFTPD", s); err != nil {
		return err
	}
	if s.KeyDir == "" {
		s.KeyDir = filepath.Join(s.DataPath, "keys")
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "pftpd.db")
	}
	return nil
}
