// Package config loads the workflow conductor's configuration from a YAML
// file with environment-variable overrides, matching the teacher's
// yaml.v3 + env-override convention.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MongoConfig holds the State Store's connection settings.
type MongoConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"auth_source"`
}

// SchedulerConfig holds the Scheduler Gateway's settings.
type SchedulerConfig struct {
	URL            string `yaml:"url"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Placeholder    bool   `yaml:"placeholder"`
}

// WorkspaceConfig holds the Workspace Probe's settings.
type WorkspaceConfig struct {
	CheckOutputFileConflicts bool `yaml:"check_output_file_conflicts"`
	MaxOutputFileAttempts    int  `yaml:"max_output_file_attempts"`
}

// ExecutorConfig holds the Execution Loop's settings.
type ExecutorConfig struct {
	PollIntervalSeconds        int  `yaml:"poll_interval_seconds"`
	MaxParallelStepsPerWorkflow int `yaml:"max_parallel_steps_per_workflow"`
	AutoResume                  bool `yaml:"auto_resume"`
}

// APIConfig holds the HTTP surface's bind address.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig holds logger settings, matching internal/log.Config's fields.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Dir       string `yaml:"dir"`
	AddSource bool   `yaml:"add_source"`
}

// Config is the top-level configuration document.
type Config struct {
	MongoDB   MongoConfig     `yaml:"mongodb"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Executor  ExecutorConfig  `yaml:"executor"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a Config populated with the same defaults as
// original_source/config/config.py: a 10s poll interval, 3-way per-workflow
// parallelism, and output-conflict checking on with a 100-attempt cap.
func Default() *Config {
	return &Config{
		MongoDB: MongoConfig{
			Host:       "localhost",
			Port:       27017,
			Database:   "workflow_engine_db",
			Collection: "workflows",
			AuthSource: "admin",
		},
		Scheduler: SchedulerConfig{
			URL:            "https://p3.theseed.org/services/AppService",
			BaseURL:        "https://www.bv-brc.org",
			TimeoutSeconds: 30,
			Placeholder:    false,
		},
		Workspace: WorkspaceConfig{
			CheckOutputFileConflicts: true,
			MaxOutputFileAttempts:    100,
		},
		Executor: ExecutorConfig{
			PollIntervalSeconds:         10,
			MaxParallelStepsPerWorkflow: 3,
			AutoResume:                  true,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Dir:    "logs/workflows",
		},
	}
}

// Load reads a YAML config file (if path is non-empty and exists) layered
// over Default(), then applies environment variable overrides. Env vars
// always win over the file, matching spec §6: "Configuration file
// overrides are overridden by env vars."
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strEnv(&cfg.MongoDB.Host, "MONGODB_HOST")
	intEnv(&cfg.MongoDB.Port, "MONGODB_PORT")
	strEnv(&cfg.MongoDB.Database, "MONGODB_DATABASE")
	strEnv(&cfg.MongoDB.Username, "MONGODB_USERNAME")
	strEnv(&cfg.MongoDB.Password, "MONGODB_PASSWORD")

	strEnv(&cfg.API.Host, "API_HOST")
	intEnv(&cfg.API.Port, "API_PORT")

	boolEnv(&cfg.Workspace.CheckOutputFileConflicts, "CHECK_OUTPUT_FILE_CONFLICTS")
	intEnv(&cfg.Workspace.MaxOutputFileAttempts, "MAX_OUTPUT_FILE_ATTEMPTS")

	intEnv(&cfg.Executor.PollIntervalSeconds, "POLL_INTERVAL_SECONDS")
	intEnv(&cfg.Executor.MaxParallelStepsPerWorkflow, "MAX_PARALLEL_STEPS_PER_WORKFLOW")

	strEnv(&cfg.Log.Level, "LOG_LEVEL")
	strEnv(&cfg.Log.Format, "LOG_FORMAT")
}

func strEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func intEnv(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolEnv(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
