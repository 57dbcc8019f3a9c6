package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvName(t *testing.T) {
	if got := EnvName("max-batch-bytes"); got != "DOCSHIP_MAX_BATCH_BYTES" {
		t.Errorf("EnvName() = %v, want DOCSHIP_MAX_BATCH_BYTES", got)
	}
}

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		changed map[string]bool
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"DOCSHIP_URL":             "https://es-1:9200, https://es-2:9200",
				"DOCSHIP_PASSWORD":        "secret",
				"DOCSHIP_BATCH_SIZE":      "100",
				"DOCSHIP_MAX_BATCH_BYTES": "1MiB",
				"DOCSHIP_REQUEST_TIMEOUT": "10s",
				"DOCSHIP_MAX_RPS":         "50.5",
				"DOCSHIP_COMPRESSION":     "true",
				"DOCSHIP_KAFKA_TOPICS":    "orders,refunds",
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if len(cfg.URLs) != 2 || cfg.URLs[1] != "https://es-2:9200" {
					t.Errorf("URLs = %v", cfg.URLs)
				}
				if cfg.Password != "secret" {
					t.Errorf("Password = %v, want secret", cfg.Password)
				}
				if cfg.MaxBatchCount != 100 {
					t.Errorf("MaxBatchCount = %v, want 100", cfg.MaxBatchCount)
				}
				if cfg.MaxBatchBytes != 1<<20 {
					t.Errorf("MaxBatchBytes = %v, want 1MiB", cfg.MaxBatchBytes)
				}
				if cfg.RequestTimeout != 10*time.Second {
					t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
				}
				if cfg.MaxRequestsPerSecond != 50.5 {
					t.Errorf("MaxRequestsPerSecond = %v, want 50.5", cfg.MaxRequestsPerSecond)
				}
				if !cfg.Compression {
					t.Error("Compression = false, want true")
				}
				if len(cfg.KafkaTopics) != 2 {
					t.Errorf("KafkaTopics = %v", cfg.KafkaTopics)
				}
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"DOCSHIP_USERNAME": "env-user",
				"DOCSHIP_WORKERS":  "9",
			},
			changed: map[string]bool{"username": true},
			check: func(t *testing.T, cfg Config) {
				if cfg.Username != "" {
					t.Errorf("Username = %v, want unchanged", cfg.Username)
				}
				if cfg.Workers != 9 {
					t.Errorf("Workers = %v, want 9", cfg.Workers)
				}
			},
		},
		{
			name: "empty algorithm disables hostname verification",
			envVars: map[string]string{
				"DOCSHIP_SSL_ENDPOINT_IDENTIFICATION_ALGORITHM": "",
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if cfg.EndpointIdentAlgo != "" {
					t.Errorf("EndpointIdentAlgo = %q, want empty", cfg.EndpointIdentAlgo)
				}
			},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"DOCSHIP_LINGER": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"DOCSHIP_HIGH_WATERMARK": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid float",
			envVars: map[string]string{"DOCSHIP_MAX_RPS": "fast"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid size",
			envVars: map[string]string{"DOCSHIP_MAX_BATCH_BYTES": "huge"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := Config{EndpointIdentAlgo: "https"}
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOCSHIP_INDEX=from-dotenv\nDOCSHIP_USERNAME=dotenv-user\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	// already set variables win over the file
	t.Setenv("DOCSHIP_USERNAME", "shell-user")
	t.Setenv("DOCSHIP_INDEX", "")
	os.Unsetenv("DOCSHIP_INDEX")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("DOCSHIP_INDEX"); got != "from-dotenv" {
		t.Errorf("DOCSHIP_INDEX = %q, want from-dotenv", got)
	}
	if got := os.Getenv("DOCSHIP_USERNAME"); got != "shell-user" {
		t.Errorf("DOCSHIP_USERNAME = %q, want shell-user", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv(missing) error = %v", err)
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		URLs:        []string{"http://file:9200"},
		Username:    "file-user",
		Compression: &trueVal,
		Kafka:       KafkaFileConfig{GroupID: "file-group", Index: ""},
	}

	t.Setenv("DOCSHIP_URL", "http://env:9200")
	t.Setenv("DOCSHIP_USERNAME", "env-user")
	t.Setenv("DOCSHIP_KAFKA_GROUP", "env-group")

	changed := map[string]bool{
		"url": true,
	}

	cfg := DefaultConfig()
	cfg.URLs = []string{"http://cli:9200"}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.URLs[0] != "http://cli:9200" {
		t.Errorf("URLs = %v, want cli (CLI should win)", cfg.URLs)
	}
	if cfg.Username != "env-user" {
		t.Errorf("Username = %v, want env-user (env should override file)", cfg.Username)
	}
	if cfg.KafkaGroupID != "env-group" {
		t.Errorf("KafkaGroupID = %v, want env-group", cfg.KafkaGroupID)
	}
	if !cfg.Compression {
		t.Errorf("Compression = %v, want true (file should set)", cfg.Compression)
	}
}
