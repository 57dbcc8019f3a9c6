package cliconfig

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SecurityProtocol != "PLAINTEXT" {
		t.Errorf("SecurityProtocol = %v, want PLAINTEXT", cfg.SecurityProtocol)
	}
	if cfg.EndpointIdentAlgo != "https" {
		t.Errorf("EndpointIdentAlgo = %v, want https", cfg.EndpointIdentAlgo)
	}
	if cfg.MaxBatchCount != 500 {
		t.Errorf("MaxBatchCount = %v, want 500", cfg.MaxBatchCount)
	}
	if cfg.MaxBatchBytes != 5<<20 {
		t.Errorf("MaxBatchBytes = %v, want 5MiB", cfg.MaxBatchBytes)
	}
	if cfg.WriteMethod != WriteInsert {
		t.Errorf("WriteMethod = %v, want %v", cfg.WriteMethod, WriteInsert)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid minimal config",
			mutate:  func(c *Config) { c.URLs = []string{"http://localhost:9200"} },
			wantErr: false,
		},
		{
			name:    "missing url",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "bad log format",
			mutate: func(c *Config) {
				c.URLs = []string{"http://localhost:9200"}
				c.LogFormat = "xml"
			},
			wantErr: true,
		},
		{
			name: "write method is case insensitive",
			mutate: func(c *Config) {
				c.URLs = []string{"http://localhost:9200"}
				c.WriteMethod = "UPSERT"
			},
			wantErr: false,
		},
		{
			name: "unknown write method",
			mutate: func(c *Config) {
				c.URLs = []string{"http://localhost:9200"}
				c.WriteMethod = "replace"
			},
			wantErr: true,
		},
		{
			name: "negative linger",
			mutate: func(c *Config) {
				c.URLs = []string{"http://localhost:9200"}
				c.Linger = -time.Second
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Library(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URLs = []string{"https://es:9200"}
	cfg.EndpointIdentAlgo = ""
	cfg.MaxBatchBytes = 1 << 20
	cfg.Workers = 3

	lib := cfg.Library()
	if lib.EndpointIdentificationAlgorithm == nil || *lib.EndpointIdentificationAlgorithm != "" {
		t.Errorf("EndpointIdentificationAlgorithm = %v, want empty string", lib.EndpointIdentificationAlgorithm)
	}
	if lib.MaxBatchBytes != 1<<20 {
		t.Errorf("MaxBatchBytes = %v, want 1MiB", lib.MaxBatchBytes)
	}
	if lib.Workers != 3 {
		t.Errorf("Workers = %v, want 3", lib.Workers)
	}
}

func TestConfig_Kafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"k:9092"}
	cfg.KafkaTopics = []string{"orders"}
	cfg.WriteMethod = WriteUpsert

	kc := cfg.Kafka()
	if !kc.Mapper.Upsert {
		t.Error("Mapper.Upsert = false, want true")
	}
	if kc.GroupID != "docship" {
		t.Errorf("GroupID = %v, want docship", kc.GroupID)
	}
	if err := cfg.ValidateKafka(); err != nil {
		t.Errorf("ValidateKafka() error = %v", err)
	}

	cfg.KafkaTopics = nil
	if err := cfg.ValidateKafka(); err == nil {
		t.Error("ValidateKafka() expected error without topics")
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Config{Username: "writer", Password: "secret", TruststorePassword: "changeit"}
	r := cfg.Redacted()

	if r.Password != "*****" || r.TruststorePassword != "*****" {
		t.Errorf("secrets not masked: %+v", r)
	}
	if r.KeyPassword != "" {
		t.Errorf("KeyPassword = %q, want empty", r.KeyPassword)
	}
	if r.Username != "writer" {
		t.Errorf("Username = %q, want writer", r.Username)
	}
	if cfg.Password != "secret" {
		t.Error("Redacted modified the original")
	}
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"5MB", 5000000, false},
		{"5MiB", 5 << 20, false},
		{"512 KiB", 512 << 10, false},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b ByteSize
			err := b.Set(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if b != tt.want {
				t.Errorf("Set(%q) = %d, want %d", tt.in, b, tt.want)
			}
		})
	}

	b := ByteSize(5 << 20)
	if b.String() != "5.0 MiB" {
		t.Errorf("String() = %q, want 5.0 MiB", b.String())
	}
}
