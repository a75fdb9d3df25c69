package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Gallery    GalleryConfig    `mapstructure:"gallery"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Session    SessionConfig    `mapstructure:"session"`
	Attendance AttendanceConfig `mapstructure:"attendance"`
	Camera     CameraConfig     `mapstructure:"camera"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	DataDir     string `mapstructure:"data_dir"`
	TemplateDir string `mapstructure:"template_dir"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
	SnapshotURL string `mapstructure:"snapshot_url"`
	Timezone    string `mapstructure:"timezone"`
	// SessionSecret signs the session cookie. Empty means a random secret
	// is generated at startup, so cookies do not survive a restart.
	SessionSecret string `mapstructure:"session_secret"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds the SQLite sighting database settings.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// GalleryConfig holds the enrolled-face gallery persistence settings.
type GalleryConfig struct {
	File         string `mapstructure:"file"`          // gallery blob
	ReferenceDir string `mapstructure:"reference_dir"` // full-frame JPEG per identity
}

// MatcherConfig holds face-matching settings.
type MatcherConfig struct {
	// Threshold is the mean-intensity-difference cutoff (0-255 scale);
	// lower is stricter.
	Threshold float64 `mapstructure:"threshold"`
}

// SessionConfig holds recognition-session settings.
type SessionConfig struct {
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
	FrameIntervalMs int `mapstructure:"frame_interval_ms"`
}

// AttendanceConfig holds attendance ledger settings.
type AttendanceConfig struct {
	Dir       string `mapstructure:"dir"`
	ExportDir string `mapstructure:"export_dir"`
}

// CameraConfig holds capture and face-detection settings.
type CameraConfig struct {
	// DeviceIndex selects the capture device; -1 scans indexes 0-4 and
	// takes the first that opens.
	DeviceIndex  int     `mapstructure:"device_index"`
	CascadeFile  string  `mapstructure:"cascade_file"`
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	MinSize      int     `mapstructure:"min_size"`
}

// MQTTConfig holds the MQTT client settings.
type MQTTConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	Broker        string              `mapstructure:"broker"`
	Port          int                 `mapstructure:"port"`
	Username      string              `mapstructure:"username"`
	Password      string              `mapstructure:"password"`
	ClientID      string              `mapstructure:"client_id"`
	Topic         string              `mapstructure:"topic"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
}

// HomeAssistantConfig holds the Home Assistant discovery settings.
type HomeAssistantConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// CleanupConfig holds sighting/snapshot retention settings. The attendance
// ledger itself is never cleaned up.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// I18nConfig holds localization settings for API and UI messages.
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
	LocalesDir      string `mapstructure:"locales_dir"`
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ATTENDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.template_dir", "./web/templates")
	v.SetDefault("server.snapshot_dir", "./data/snapshots")
	v.SetDefault("server.snapshot_url", "/snapshots")
	v.SetDefault("server.timezone", "")
	v.SetDefault("server.session_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./data/logs/attendance.log")

	v.SetDefault("db.file", "./data/attendance.db")

	v.SetDefault("gallery.file", "./data/gallery/gallery.gob")
	v.SetDefault("gallery.reference_dir", "./data/reference_images")

	v.SetDefault("matcher.threshold", 30.0)

	v.SetDefault("session.cooldown_seconds", 5)
	v.SetDefault("session.frame_interval_ms", 100)

	v.SetDefault("attendance.dir", "./data/attendance_records")
	v.SetDefault("attendance.export_dir", "./data/exports")

	v.SetDefault("camera.device_index", -1)
	v.SetDefault("camera.cascade_file", "./data/haarcascade_frontalface_default.xml")
	v.SetDefault("camera.scale_factor", 1.1)
	v.SetDefault("camera.min_neighbors", 4)
	v.SetDefault("camera.min_size", 60)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "smart-attendance")
	v.SetDefault("mqtt.topic", "attendance/events")
	v.SetDefault("mqtt.homeassistant.enabled", false)
	v.SetDefault("mqtt.homeassistant.discovery_prefix", "homeassistant")

	v.SetDefault("cleanup.retention_days", 30)

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.locales_dir", "./web/locales")
}

func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.Server.DataDir,
		cfg.Server.SnapshotDir,
		cfg.Attendance.Dir,
		cfg.Attendance.ExportDir,
		cfg.Gallery.ReferenceDir,
		filepath.Dir(cfg.Gallery.File),
		filepath.Dir(cfg.Log.File),
		filepath.Dir(cfg.DB.File),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
