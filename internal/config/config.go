package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode   `yaml:"mode"`
	HTTPAddr  string `yaml:"http_addr"`
	PublicURL string `yaml:"public_url"`
	LogMode   string `yaml:"log_mode"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	BlobDriver    string `yaml:"blob_driver"`     // fs|gcs
	BlobBasePath  string `yaml:"blob_base_path"`  // fs only
	BlobPublicURL string `yaml:"blob_public_url"` // fs only, prefix for returned URLs

	GCSBucket          string `yaml:"gcs_bucket"`
	GCSCDNDomain       string `yaml:"gcs_cdn_domain"`
	GCSEmulatorHost    string `yaml:"gcs_emulator_host"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`

	Limits    Limits    `yaml:"limits"`
	Transcode Transcode `yaml:"transcode"`

	ParserCommand string        `yaml:"parser_command"` // empty disables the external parser
	ParserTimeout time.Duration `yaml:"parser_timeout"`

	SessionTTL   time.Duration `yaml:"session_ttl"`
	SessionSweep time.Duration `yaml:"session_sweep"`
	ScratchDir   string        `yaml:"scratch_dir"`

	AuthHMACSecret  string `yaml:"-"`
	EnableLocalAuth bool   `yaml:"enable_local_auth"`
	AdminUser       string `yaml:"admin_user"`
	AdminPassHash   string `yaml:"-"` // bcrypt

	CORSOriginsOnline  []string `yaml:"cors_origins_online"`
	CORSOriginsOffline []string `yaml:"cors_origins_offline"`
}

// Limits bounds the sizes accepted at the import boundary.
type Limits struct {
	MaxMediaBytes    int64 `yaml:"max_media_bytes"`
	MaxDocumentBytes int64 `yaml:"max_document_bytes"`
	MaxPackageBytes  int64 `yaml:"max_package_bytes"`
}

type Transcode struct {
	Images    bool `yaml:"images"`
	MaxWidth  int  `yaml:"max_width"`
	MaxHeight int  `yaml:"max_height"`
	Quality   int  `yaml:"quality"`
}

const (
	MiB = 1 << 20

	DefaultMaxMediaBytes    = 10 * MiB
	DefaultMaxDocumentBytes = 50 * MiB
	DefaultMaxPackageBytes  = 100 * MiB
)

// FromEnv reads configuration from the environment, then applies the YAML
// file named by CONFIG_FILE on top when one is given.
func FromEnv() (Config, error) {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	cfg := Config{
		Mode:          mode,
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		PublicURL:     os.Getenv("PUBLIC_URL"),
		LogMode:       envOr("LOG_MODE", "development"),
		DBDriver:      envOr("DB_DRIVER", "sqlite"),
		DBDSN:         envOr("DB_DSN", ""),
		BlobDriver:    envOr("BLOB_DRIVER", "fs"),
		BlobBasePath:  envOr("BLOB_BASE_PATH", "./data"),
		BlobPublicURL: envOr("BLOB_PUBLIC_URL", "/assets"),

		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCDNDomain:       os.Getenv("GCS_CDN_DOMAIN"),
		GCSEmulatorHost:    os.Getenv("STORAGE_EMULATOR_HOST"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),

		Limits: Limits{
			MaxMediaBytes:    envInt64("MAX_MEDIA_BYTES", DefaultMaxMediaBytes),
			MaxDocumentBytes: envInt64("MAX_DOCUMENT_BYTES", DefaultMaxDocumentBytes),
			MaxPackageBytes:  envInt64("MAX_PACKAGE_BYTES", DefaultMaxPackageBytes),
		},
		Transcode: Transcode{
			Images:    envBool("TRANSCODE_IMAGES", true),
			MaxWidth:  int(envInt64("IMAGE_MAX_WIDTH", 1200)),
			MaxHeight: int(envInt64("IMAGE_MAX_HEIGHT", 800)),
			Quality:   int(envInt64("IMAGE_QUALITY", 85)),
		},

		ParserCommand: os.Getenv("PARSER_COMMAND"),
		ParserTimeout: envDuration("PARSER_TIMEOUT", 60*time.Second),
		SessionTTL:    envDuration("SESSION_TTL", 30*time.Minute),
		SessionSweep:  envDuration("SESSION_SWEEP", 5*time.Minute),
		ScratchDir:    os.Getenv("SCRATCH_DIR"),

		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://lms.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010,http://localhost:3020"),
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.Overlay(b); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// Overlay decodes YAML onto cfg. Keys absent from the document keep their
// current values.
func (c *Config) Overlay(doc []byte) error {
	if err := yaml.Unmarshal(doc, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.BlobDriver {
	case "fs":
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("BLOB_DRIVER=gcs requires GCS_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported BLOB_DRIVER %q", c.BlobDriver)
	}
	if c.Limits.MaxMediaBytes <= 0 || c.Limits.MaxDocumentBytes <= 0 || c.Limits.MaxPackageBytes <= 0 {
		return fmt.Errorf("size limits must be positive")
	}
	if c.Transcode.Quality < 1 || c.Transcode.Quality > 100 {
		return fmt.Errorf("IMAGE_QUALITY must be within 1..100, got %d", c.Transcode.Quality)
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt64(k string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(k), 10, 64)
	if err != nil {
		return def
	}
	return v
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
