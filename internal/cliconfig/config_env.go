package cliconfig

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable docship reads.
const EnvPrefix = "DOCSHIP_"

// EnvName returns the environment variable for a flag: "max-batch-bytes"
// becomes DOCSHIP_MAX_BATCH_BYTES.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" || !FileExists(path) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnvConfig applies configuration from environment variables (DOCSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(flag string) string { return os.Getenv(EnvName(flag)) }

	s.setStrings("url", splitList(env("url")), &cfg.URLs)
	s.setString("username", env("username"), &cfg.Username)
	s.setString("password", env("password"), &cfg.Password)

	s.setString("security-protocol", env("security-protocol"), &cfg.SecurityProtocol)
	s.setString("keystore", env("keystore"), &cfg.KeystoreLocation)
	s.setString("keystore-password", env("keystore-password"), &cfg.KeystorePassword)
	s.setString("key-password", env("key-password"), &cfg.KeyPassword)
	s.setString("truststore", env("truststore"), &cfg.TruststoreLocation)
	s.setString("truststore-password", env("truststore-password"), &cfg.TruststorePassword)
	if v, ok := os.LookupEnv(EnvName("ssl-endpoint-identification-algorithm")); ok {
		s.setOptString("ssl-endpoint-identification-algorithm", &v, &cfg.EndpointIdentAlgo)
	}

	ints := []struct {
		flag string
		dst  *int
	}{
		{"batch-size", &cfg.MaxBatchCount},
		{"high-watermark", &cfg.HighWatermark},
		{"max-retries", &cfg.MaxRetries},
		{"max-conns", &cfg.MaxConnsPerEndpoint},
		{"connection-retries", &cfg.ConnectionRetries},
		{"workers", &cfg.Workers},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.flag), i.dst); err != nil {
			return err
		}
	}
	if err := s.setFloatFromString("max-rps", env("max-rps"), &cfg.MaxRequestsPerSecond); err != nil {
		return err
	}
	if err := s.setBytes("max-batch-bytes", env("max-batch-bytes"), &cfg.MaxBatchBytes); err != nil {
		return err
	}

	durations := []struct {
		flag string
		dst  *time.Duration
	}{
		{"linger", &cfg.Linger},
		{"submit-timeout", &cfg.SubmitTimeout},
		{"retry-backoff", &cfg.RetryBackoff},
		{"retry-backoff-max", &cfg.RetryBackoffMax},
		{"acquire-timeout", &cfg.AcquireTimeout},
		{"request-timeout", &cfg.RequestTimeout},
		{"shutdown-timeout", &cfg.ShutdownTimeout},
		{"commit-interval", &cfg.CommitInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.flag), d.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("compression", env("compression"), &cfg.Compression)
	s.setBoolFromString("external-versioning", env("external-versioning"), &cfg.ExternalVersioning)
	s.setString("version-conflict", env("version-conflict"), &cfg.VersionConflictPolicy)

	s.setStrings("kafka-brokers", splitList(env("kafka-brokers")), &cfg.KafkaBrokers)
	s.setStrings("kafka-topics", splitList(env("kafka-topics")), &cfg.KafkaTopics)
	s.setString("kafka-group", env("kafka-group"), &cfg.KafkaGroupID)
	s.setString("dlq-topic", env("dlq-topic"), &cfg.DLQTopic)
	s.setString("index", env("index"), &cfg.Index)
	s.setBoolFromString("key-ignore", env("key-ignore"), &cfg.KeyIgnore)
	s.setString("write-method", env("write-method"), &cfg.WriteMethod)
	s.setString("null-values", env("null-values"), &cfg.NullValues)

	s.setString("metrics-addr", env("metrics-addr"), &cfg.MetricsAddr)
	s.setString("log-level", env("log-level"), &cfg.LogLevel)
	s.setString("log-format", env("log-format"), &cfg.LogFormat)

	return nil
}
