package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/arqgene/moldock/pkg/log"
)

// Config holds all application configuration
// Includes tool paths, external database endpoints, and workspace layout
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Server Configuration:
// - LISTEN_ADDR: Address the HTTP server binds to (default: :5000)
// - STATIC_DIR: Directory with the single-page viewer assets (default: static)
// - UI_ENABLED: Serve the static viewer (default: true)
// - SESSION_SECRET: Secret used to sign session tokens (required outside dev)
//
// Workspace Configuration:
// - DATA_DIR: Working directory for uploads and intermediates (default: data)
// - POSES_DIR: Directory for generated pose files (default: data/poses)
// - MAX_UPLOAD_MB: Upload size limit in MiB (default: 50)
// - DB_PATH: SQLite database path (default: data/moldock.db)
// - CLEANUP_CRON_EXPR: Schedule for the stale-file sweep (default: 0 3 * * *)
// - RETENTION_HOURS: Batch artifact retention in hours (default: 72)
//
// Tool Configuration:
// - SMINA_BIN: Smina executable (default: smina)
// - OBABEL_BIN: OpenBabel executable (default: obabel)
// - CONVERT_TIMEOUT: Conversion timeout in seconds (default: 60)
// - DOCK_TIMEOUT: Docking timeout in seconds (default: 300)
//
// External Database Configuration:
// - UNIPROT_API_URL: UniProt REST base URL
// - ALPHAFOLD_API_URL: AlphaFold file server base URL
// - PUBCHEM_API_URL: PubChem PUG REST base URL
// - ESMFOLD_API_URL: ESMFold fold endpoint
// - FETCH_TIMEOUT: External API timeout in seconds (default: 30)
//
// Docking Configuration:
// - DOCK_NUM_MODES: Pose count per run (default: 9)
// - DOCK_EXHAUSTIVENESS: Search exhaustiveness (default: 8)
// - BATCH_EXHAUSTIVENESS: Exhaustiveness for batch runs (default: 1)
// - BATCH_WORKERS: Batch queue worker count (default: 2)

type Config struct {
	// Server Configuration
	Server ServerConfig `json:"server"`

	// Workspace Configuration
	Workspace WorkspaceConfig `json:"workspace"`

	// External Tool Configuration
	Tools ToolsConfig `json:"tools"`

	// External Database Configuration
	Databases DatabasesConfig `json:"databases"`

	// Docking Configuration
	Docking DockingConfig `json:"docking"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	ListenAddr    string `json:"listen_addr"`
	StaticDir     string `json:"static_dir"`
	UIEnabled     bool   `json:"ui_enabled"`
	SessionSecret string `json:"-"`
}

// WorkspaceConfig holds the filesystem layout for job artifacts
type WorkspaceConfig struct {
	DataDir         string `json:"data_dir"`
	PosesDir        string `json:"poses_dir"`
	MaxUploadBytes  int64  `json:"max_upload_bytes"`
	DBPath          string `json:"db_path"`
	CleanupCronExpr string `json:"cleanup_cron_expr"`
	RetentionHours  int    `json:"retention_hours"`
}

// ToolsConfig holds the chemistry binary configuration
type ToolsConfig struct {
	SminaBin       string        `json:"smina_bin"`
	ObabelBin      string        `json:"obabel_bin"`
	ConvertTimeout time.Duration `json:"convert_timeout"`
	DockTimeout    time.Duration `json:"dock_timeout"`
}

// DatabasesConfig holds the external REST API endpoints
type DatabasesConfig struct {
	UniProtURL   string        `json:"uniprot_url"`
	AlphaFoldURL string        `json:"alphafold_url"`
	PubChemURL   string        `json:"pubchem_url"`
	ESMFoldURL   string        `json:"esmfold_url"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// DockingConfig holds the search parameters passed to the engine
type DockingConfig struct {
	NumModes            int     `json:"num_modes"`
	Exhaustiveness      int     `json:"exhaustiveness"`
	BatchExhaustiveness int     `json:"batch_exhaustiveness"`
	BatchWorkers        int     `json:"batch_workers"`
	BoxPadding          float64 `json:"box_padding"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			ListenAddr:    getEnvString("LISTEN_ADDR", ":5000"),
			StaticDir:     getEnvString("STATIC_DIR", "static"),
			UIEnabled:     getEnvBool("UI_ENABLED", true),
			SessionSecret: getEnvString("SESSION_SECRET", ""),
		},
		Workspace: WorkspaceConfig{
			DataDir:         getEnvString("DATA_DIR", "data"),
			PosesDir:        getEnvString("POSES_DIR", "data/poses"),
			MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
			DBPath:          getEnvString("DB_PATH", "data/moldock.db"),
			CleanupCronExpr: getEnvString("CLEANUP_CRON_EXPR", "0 3 * * *"),
			RetentionHours:  getEnvInt("RETENTION_HOURS", 72),
		},
		Tools: ToolsConfig{
			SminaBin:       getEnvString("SMINA_BIN", "smina"),
			ObabelBin:      getEnvString("OBABEL_BIN", "obabel"),
			ConvertTimeout: time.Duration(getEnvInt("CONVERT_TIMEOUT", 60)) * time.Second,
			DockTimeout:    time.Duration(getEnvInt("DOCK_TIMEOUT", 300)) * time.Second,
		},
		Databases: DatabasesConfig{
			UniProtURL:   getEnvString("UNIPROT_API_URL", "https://rest.uniprot.org/uniprotkb"),
			AlphaFoldURL: getEnvString("ALPHAFOLD_API_URL", "https://alphafold.ebi.ac.uk/files"),
			PubChemURL:   getEnvString("PUBCHEM_API_URL", "https://pubchem.ncbi.nlm.nih.gov/rest/pug"),
			ESMFoldURL:   getEnvString("ESMFOLD_API_URL", "https://api.esmatlas.com/foldSequence/v1/pdb/"),
			FetchTimeout: time.Duration(getEnvInt("FETCH_TIMEOUT", 30)) * time.Second,
		},
		Docking: DockingConfig{
			NumModes:            getEnvInt("DOCK_NUM_MODES", 9),
			Exhaustiveness:      getEnvInt("DOCK_EXHAUSTIVENESS", 8),
			BatchExhaustiveness: getEnvInt("BATCH_EXHAUSTIVENESS", 1),
			BatchWorkers:        getEnvInt("BATCH_WORKERS", 2),
			BoxPadding:          getEnvFloat("DOCK_BOX_PADDING", 8.0),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: data_dir=%s poses_dir=%s smina=%s obabel=%s",
		config.Workspace.DataDir, config.Workspace.PosesDir,
		config.Tools.SminaBin, config.Tools.ObabelBin)

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Workspace.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Workspace.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.Docking.NumModes <= 0 || c.Docking.NumModes > 9 {
		return fmt.Errorf("DOCK_NUM_MODES must be between 1 and 9")
	}
	if c.Docking.Exhaustiveness <= 0 {
		return fmt.Errorf("DOCK_EXHAUSTIVENESS must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
