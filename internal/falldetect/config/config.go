// Package config loads and defaults the fall detector's configuration
// tree from YAML, with a fixed set of environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for cmd/falldetectd.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Model     ModelConfig     `yaml:"model"`
	Detection DetectionConfig `yaml:"detection"`
	Saver     SaverConfig     `yaml:"saver"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Logging   LoggingConfig   `yaml:"logging"`
	NATS      NATSConfig      `yaml:"nats"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Status    StatusConfig    `yaml:"status"`
	HUD       HUDConfig       `yaml:"hud"`
}

// CameraConfig selects and shapes the camera source.
type CameraConfig struct {
	Source        string `yaml:"source"`
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	FPS           int    `yaml:"fps"`
	InferenceFPS  int    `yaml:"inference_fps"`
	CameraID      string `yaml:"camera_id"`
}

// ModelConfig selects and configures the pose estimation backend.
type ModelConfig struct {
	Backend    string `yaml:"backend"`
	ModelPath  string `yaml:"model_path"`
	NumThreads int    `yaml:"num_threads"`
}

// DetectionConfig carries the fall-logic FSM thresholds.
type DetectionConfig struct {
	MinConfJoints     int     `yaml:"min_conf_joints"`
	AngleDegTh        float64 `yaml:"angle_deg_th"`
	RatioTh           float64 `yaml:"ratio_th"`
	TPoseSec          float64 `yaml:"T_pose_sec"`
	HipDropPxTh       float64 `yaml:"hip_drop_px_th"`
	TDropSec          float64 `yaml:"T_drop_sec"`
	TStillSec         float64 `yaml:"T_still_sec"`
	VStillPxPerFrame  float64 `yaml:"v_still_px_per_frame"`
	MinPersonHeightPx float64 `yaml:"min_person_height_px"`
	CooldownSec       float64 `yaml:"cooldown_sec"`
	CGraceSec         float64 `yaml:"C_grace_sec"`
}

// VideoClipConfig controls the optional video clip saved alongside
// stills.
type VideoClipConfig struct {
	Enabled    bool    `yaml:"enabled"`
	FPS        int     `yaml:"fps"`
	MaxSeconds float64 `yaml:"max_seconds"`
	Codec      string  `yaml:"codec"`
}

// SaverConfig controls where and how an event's frames/metadata are
// written to disk.
type SaverConfig struct {
	BaseDir       string          `yaml:"base_dir"`
	SaveAnnotated bool            `yaml:"save_annotated"`
	SaveRaw       bool            `yaml:"save_raw"`
	PreSeconds    float64         `yaml:"pre_seconds"`
	PostSeconds   float64         `yaml:"post_seconds"`
	ImageFormat   string          `yaml:"image_format"`
	JPEGQuality   int             `yaml:"jpeg_quality"`
	VideoClip     VideoClipConfig `yaml:"video_clip"`
}

// PrivacyConfig controls on-disk data minimization.
type PrivacyConfig struct {
	FaceBlur       bool `yaml:"face_blur"`
	BlurKernel     int  `yaml:"blur_kernel"`
	EncryptAtRest  bool `yaml:"encrypt_at_rest"`
	RetentionDays  int  `yaml:"retention_days"`
	RedactMetadata bool `yaml:"redact_metadata"`
}

// LoggingConfig selects log level and format, with an optional file
// sink and Prometheus toggle.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	File             string `yaml:"file"`
	ExportPrometheus bool   `yaml:"export_prometheus"`
}

// NATSConfig optionally publishes a best-effort "event saved"
// notification; the detection hot path never depends on it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// PostgresConfig optionally indexes saved events for querying; no
// embeddings or recognition, just event metadata.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Name)
}

// StatusConfig exposes the read-only diagnostics HTTP server.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// HUDConfig exposes the browser-facing --display viewer.
type HUDConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads cfg from a YAML file and applies environment overrides
// and defaults, in that order.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	// Booleans that default to on are seeded before parsing:
	// yaml.Unmarshal leaves absent keys untouched, and an explicit
	// false in the file still wins.
	cfg.Saver.SaveAnnotated = true
	cfg.Saver.VideoClip.Enabled = true
	cfg.Privacy.FaceBlur = true
	cfg.Privacy.RedactMetadata = true
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 1280
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 720
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Camera.InferenceFPS == 0 {
		cfg.Camera.InferenceFPS = 12
	}
	if cfg.Camera.CameraID == "" {
		cfg.Camera.CameraID = "cam01"
	}

	if cfg.Model.Backend == "" {
		cfg.Model.Backend = "onnx"
	}
	if cfg.Model.NumThreads == 0 {
		cfg.Model.NumThreads = 2
	}

	if cfg.Detection.MinConfJoints == 0 {
		cfg.Detection.MinConfJoints = 8
	}
	if cfg.Detection.AngleDegTh == 0 {
		cfg.Detection.AngleDegTh = 55.0
	}
	if cfg.Detection.RatioTh == 0 {
		cfg.Detection.RatioTh = 0.6
	}
	if cfg.Detection.TPoseSec == 0 {
		cfg.Detection.TPoseSec = 0.5
	}
	if cfg.Detection.HipDropPxTh == 0 {
		cfg.Detection.HipDropPxTh = 40
	}
	if cfg.Detection.TDropSec == 0 {
		cfg.Detection.TDropSec = 0.4
	}
	if cfg.Detection.TStillSec == 0 {
		cfg.Detection.TStillSec = 1.0
	}
	if cfg.Detection.VStillPxPerFrame == 0 {
		cfg.Detection.VStillPxPerFrame = 0.5
	}
	if cfg.Detection.MinPersonHeightPx == 0 {
		cfg.Detection.MinPersonHeightPx = 120
	}
	if cfg.Detection.CooldownSec == 0 {
		cfg.Detection.CooldownSec = 5.0
	}
	if cfg.Detection.CGraceSec == 0 {
		cfg.Detection.CGraceSec = 0.6
	}

	if cfg.Saver.BaseDir == "" {
		cfg.Saver.BaseDir = "./falls"
	}
	if cfg.Saver.PreSeconds == 0 {
		cfg.Saver.PreSeconds = 2.0
	}
	if cfg.Saver.PostSeconds == 0 {
		cfg.Saver.PostSeconds = 3.0
	}
	if cfg.Saver.ImageFormat == "" {
		cfg.Saver.ImageFormat = "jpg"
	}
	if cfg.Saver.JPEGQuality == 0 {
		cfg.Saver.JPEGQuality = 90
	}
	if cfg.Saver.VideoClip.FPS == 0 {
		cfg.Saver.VideoClip.FPS = 15
	}
	if cfg.Saver.VideoClip.MaxSeconds == 0 {
		cfg.Saver.VideoClip.MaxSeconds = 6.0
	}
	if cfg.Saver.VideoClip.Codec == "" {
		cfg.Saver.VideoClip.Codec = "mp4v"
	}

	if cfg.Privacy.BlurKernel == 0 {
		cfg.Privacy.BlurKernel = 31
	}
	if cfg.Privacy.RetentionDays == 0 {
		cfg.Privacy.RetentionDays = 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Status.Port == 0 {
		cfg.Status.Port = 8090
	}
	if cfg.HUD.Port == 0 {
		cfg.HUD.Port = 8091
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = 5
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FALLDETECT_CAMERA_SOURCE"); v != "" {
		cfg.Camera.Source = v
	}
	if v := os.Getenv("FALLDETECT_CAMERA_ID"); v != "" {
		cfg.Camera.CameraID = v
	}
	if v := os.Getenv("FALLDETECT_MODEL_BACKEND"); v != "" {
		cfg.Model.Backend = v
	}
	if v := os.Getenv("FALLDETECT_MODEL_PATH"); v != "" {
		cfg.Model.ModelPath = v
	}
	if v := os.Getenv("FALLDETECT_SAVER_BASE_DIR"); v != "" {
		cfg.Saver.BaseDir = v
	}
	if v := os.Getenv("FALLDETECT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FALLDETECT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FALLDETECT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FALLDETECT_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FALLDETECT_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FALLDETECT_STATUS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Status.Port = n
		}
	}
}

// Seconds converts a config duration field (expressed in fractional
// seconds, as the YAML schema does throughout) to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
