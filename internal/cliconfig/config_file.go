package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations and sizes to
// make TOML and YAML friendly.
type FileConfig struct {
	URLs     []string `toml:"urls" yaml:"urls"`
	Username string   `toml:"username" yaml:"username"`
	Password string   `toml:"password" yaml:"password"`

	SecurityProtocol   string  `toml:"security_protocol" yaml:"security_protocol"`
	KeystoreLocation   string  `toml:"keystore_location" yaml:"keystore_location"`
	KeystorePassword   string  `toml:"keystore_password" yaml:"keystore_password"`
	KeyPassword        string  `toml:"key_password" yaml:"key_password"`
	TruststoreLocation string  `toml:"truststore_location" yaml:"truststore_location"`
	TruststorePassword string  `toml:"truststore_password" yaml:"truststore_password"`
	EndpointIdentAlgo  *string `toml:"endpoint_identification_algorithm" yaml:"endpoint_identification_algorithm"`

	MaxBatchCount int    `toml:"batch_size" yaml:"batch_size"`
	MaxBatchBytes string `toml:"max_batch_bytes" yaml:"max_batch_bytes"`
	Linger        string `toml:"linger" yaml:"linger"`
	HighWatermark int    `toml:"high_watermark" yaml:"high_watermark"`
	SubmitTimeout string `toml:"submit_timeout" yaml:"submit_timeout"`

	MaxRetries      int    `toml:"max_retries" yaml:"max_retries"`
	RetryBackoff    string `toml:"retry_backoff" yaml:"retry_backoff"`
	RetryBackoffMax string `toml:"retry_backoff_max" yaml:"retry_backoff_max"`

	MaxConnsPerEndpoint  int     `toml:"max_conns_per_endpoint" yaml:"max_conns_per_endpoint"`
	AcquireTimeout       string  `toml:"acquire_timeout" yaml:"acquire_timeout"`
	RequestTimeout       string  `toml:"request_timeout" yaml:"request_timeout"`
	ConnectionRetries    int     `toml:"connection_retries" yaml:"connection_retries"`
	MaxRequestsPerSecond float64 `toml:"max_requests_per_second" yaml:"max_requests_per_second"`
	Compression          *bool   `toml:"compression" yaml:"compression"`

	Workers               int    `toml:"workers" yaml:"workers"`
	ShutdownTimeout       string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	ExternalVersioning    *bool  `toml:"external_versioning" yaml:"external_versioning"`
	VersionConflictPolicy string `toml:"version_conflict_policy" yaml:"version_conflict_policy"`

	Kafka KafkaFileConfig `toml:"kafka" yaml:"kafka"`

	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	LogFormat   string `toml:"log_format" yaml:"log_format"`
}

// KafkaFileConfig is the [kafka] section of the config file.
type KafkaFileConfig struct {
	Brokers        []string `toml:"brokers" yaml:"brokers"`
	Topics         []string `toml:"topics" yaml:"topics"`
	GroupID        string   `toml:"group_id" yaml:"group_id"`
	DLQTopic       string   `toml:"dlq_topic" yaml:"dlq_topic"`
	Index          string   `toml:"index" yaml:"index"`
	KeyIgnore      *bool    `toml:"key_ignore" yaml:"key_ignore"`
	WriteMethod    string   `toml:"write_method" yaml:"write_method"`
	NullValues     string   `toml:"null_values" yaml:"null_values"`
	CommitInterval string   `toml:"commit_interval" yaml:"commit_interval"`
}

// LoadFileConfig reads and parses a config file. Files ending in .yaml or
// .yml are parsed as YAML, anything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.docship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".docship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStrings("url", fc.URLs, &cfg.URLs)
	s.setString("username", fc.Username, &cfg.Username)
	s.setString("password", fc.Password, &cfg.Password)

	s.setString("security-protocol", fc.SecurityProtocol, &cfg.SecurityProtocol)
	s.setString("keystore", fc.KeystoreLocation, &cfg.KeystoreLocation)
	s.setString("keystore-password", fc.KeystorePassword, &cfg.KeystorePassword)
	s.setString("key-password", fc.KeyPassword, &cfg.KeyPassword)
	s.setString("truststore", fc.TruststoreLocation, &cfg.TruststoreLocation)
	s.setString("truststore-password", fc.TruststorePassword, &cfg.TruststorePassword)
	s.setOptString("ssl-endpoint-identification-algorithm", fc.EndpointIdentAlgo, &cfg.EndpointIdentAlgo)

	s.setInt("batch-size", fc.MaxBatchCount, &cfg.MaxBatchCount)
	if err := s.setBytes("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes); err != nil {
		return err
	}
	s.setInt("high-watermark", fc.HighWatermark, &cfg.HighWatermark)
	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setInt("max-conns", fc.MaxConnsPerEndpoint, &cfg.MaxConnsPerEndpoint)
	s.setInt("connection-retries", fc.ConnectionRetries, &cfg.ConnectionRetries)
	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setFloat("max-rps", fc.MaxRequestsPerSecond, &cfg.MaxRequestsPerSecond)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"linger", fc.Linger, &cfg.Linger},
		{"submit-timeout", fc.SubmitTimeout, &cfg.SubmitTimeout},
		{"retry-backoff", fc.RetryBackoff, &cfg.RetryBackoff},
		{"retry-backoff-max", fc.RetryBackoffMax, &cfg.RetryBackoffMax},
		{"acquire-timeout", fc.AcquireTimeout, &cfg.AcquireTimeout},
		{"request-timeout", fc.RequestTimeout, &cfg.RequestTimeout},
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"commit-interval", fc.Kafka.CommitInterval, &cfg.CommitInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setBool("compression", fc.Compression, &cfg.Compression)
	s.setBool("external-versioning", fc.ExternalVersioning, &cfg.ExternalVersioning)
	s.setString("version-conflict", fc.VersionConflictPolicy, &cfg.VersionConflictPolicy)

	s.setStrings("kafka-brokers", fc.Kafka.Brokers, &cfg.KafkaBrokers)
	s.setStrings("kafka-topics", fc.Kafka.Topics, &cfg.KafkaTopics)
	s.setString("kafka-group", fc.Kafka.GroupID, &cfg.KafkaGroupID)
	s.setString("dlq-topic", fc.Kafka.DLQTopic, &cfg.DLQTopic)
	s.setString("index", fc.Kafka.Index, &cfg.Index)
	s.setBool("key-ignore", fc.Kafka.KeyIgnore, &cfg.KeyIgnore)
	s.setString("write-method", fc.Kafka.WriteMethod, &cfg.WriteMethod)
	s.setString("null-values", fc.Kafka.NullValues, &cfg.NullValues)

	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
