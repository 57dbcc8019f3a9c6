package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bft-labs/docship/internal/adapters/kafka"
	"github.com/bft-labs/docship/internal/app"
	"github.com/bft-labs/docship/pkg/docship"
)

// Write methods for records consumed from Kafka.
const (
	WriteInsert = "insert"
	WriteUpsert = "upsert"
)

// Config holds CLI configuration for docship.
type Config struct {
	URLs     []string
	Username string
	Password string

	SecurityProtocol   string
	KeystoreLocation   string
	KeystorePassword   string
	KeyPassword        string
	TruststoreLocation string
	TruststorePassword string
	EndpointIdentAlgo  string

	MaxBatchCount int
	MaxBatchBytes ByteSize
	Linger        time.Duration
	HighWatermark int
	SubmitTimeout time.Duration

	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	MaxConnsPerEndpoint  int
	AcquireTimeout       time.Duration
	RequestTimeout       time.Duration
	ConnectionRetries    int
	MaxRequestsPerSecond float64
	Compression          bool

	Workers               int
	ShutdownTimeout       time.Duration
	ExternalVersioning    bool
	VersionConflictPolicy string

	KafkaBrokers   []string
	KafkaTopics    []string
	KafkaGroupID   string
	DLQTopic       string
	Index          string
	KeyIgnore      bool
	WriteMethod    string
	NullValues     string
	CommitInterval time.Duration

	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SecurityProtocol:      "PLAINTEXT",
		EndpointIdentAlgo:     "https",
		MaxBatchCount:         app.DefaultMaxBatchCount,
		MaxBatchBytes:         ByteSize(app.DefaultMaxBatchBytes),
		Linger:                app.DefaultLinger,
		HighWatermark:         app.DefaultHighWatermark,
		SubmitTimeout:         app.DefaultSubmitTimeout,
		MaxRetries:            app.DefaultMaxRetries,
		RetryBackoff:          app.DefaultBackoffInitial,
		RetryBackoffMax:       app.DefaultBackoffMax,
		MaxConnsPerEndpoint:   5,
		AcquireTimeout:        30 * time.Second,
		RequestTimeout:        60 * time.Second,
		ConnectionRetries:     3,
		ShutdownTimeout:       app.DefaultShutdownTimeout,
		VersionConflictPolicy: "fail",
		KafkaGroupID:          "docship",
		WriteMethod:           WriteInsert,
		NullValues:            kafka.NullDelete,
		CommitInterval:        kafka.DefaultCommitInterval,
		LogLevel:              "info",
		LogFormat:             "console",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("url is required")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}
	c.WriteMethod = strings.ToLower(c.WriteMethod)
	if c.WriteMethod != WriteInsert && c.WriteMethod != WriteUpsert {
		return fmt.Errorf("write method must be %s or %s, got %q", WriteInsert, WriteUpsert, c.WriteMethod)
	}
	if c.Linger < 0 {
		return fmt.Errorf("linger must not be negative")
	}
	return nil
}

// ValidateKafka checks the settings `docship run` needs on top of Validate.
func (c *Config) ValidateKafka() error {
	return c.Kafka().Validate()
}

// Library converts the configuration for pkg/docship.
func (c *Config) Library() docship.Config {
	algo := c.EndpointIdentAlgo
	return docship.Config{
		URLs:                            c.URLs,
		Username:                        c.Username,
		Password:                        c.Password,
		SecurityProtocol:                c.SecurityProtocol,
		KeystoreLocation:                c.KeystoreLocation,
		KeystorePassword:                c.KeystorePassword,
		KeyPassword:                     c.KeyPassword,
		TruststoreLocation:              c.TruststoreLocation,
		TruststorePassword:              c.TruststorePassword,
		EndpointIdentificationAlgorithm: &algo,
		MaxBatchCount:                   c.MaxBatchCount,
		MaxBatchBytes:                   int(c.MaxBatchBytes),
		Linger:                          c.Linger,
		HighWatermark:                   c.HighWatermark,
		SubmitTimeout:                   c.SubmitTimeout,
		MaxRetries:                      c.MaxRetries,
		RetryBackoff:                    c.RetryBackoff,
		RetryBackoffMax:                 c.RetryBackoffMax,
		MaxConnsPerEndpoint:             c.MaxConnsPerEndpoint,
		AcquireTimeout:                  c.AcquireTimeout,
		RequestTimeout:                  c.RequestTimeout,
		ConnectionRetries:               c.ConnectionRetries,
		MaxRequestsPerSecond:            c.MaxRequestsPerSecond,
		Compression:                     c.Compression,
		Workers:                         c.Workers,
		ShutdownTimeout:                 c.ShutdownTimeout,
		ExternalVersioning:              c.ExternalVersioning,
		VersionConflictPolicy:           c.VersionConflictPolicy,
	}
}

// Kafka converts the consumer settings for the Kafka adapter.
func (c *Config) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:        c.KafkaBrokers,
		Topics:         c.KafkaTopics,
		GroupID:        c.KafkaGroupID,
		DLQTopic:       c.DLQTopic,
		CommitInterval: c.CommitInterval,
		Mapper: kafka.MapperConfig{
			Index:      c.Index,
			KeyIgnore:  c.KeyIgnore,
			Upsert:     c.WriteMethod == WriteUpsert,
			NullValues: c.NullValues,
		},
	}
}

// Redacted returns a copy with secrets masked, for logging.
func (c Config) Redacted() Config {
	for _, s := range []*string{&c.Password, &c.KeystorePassword, &c.KeyPassword, &c.TruststorePassword} {
		if *s != "" {
			*s = "*****"
		}
	}
	return c
}

// ByteSize is a byte count that parses human-readable sizes ("5MB",
// "512KiB") and implements pflag.Value.
type ByteSize int

// ParseByteSize parses a plain integer or a humanized size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n > uint64(int(^uint(0)>>1)) {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return ByteSize(n), nil
}

func (b *ByteSize) String() string { return humanize.IBytes(uint64(*b)) }

func (b *ByteSize) Set(s string) error {
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b *ByteSize) Type() string { return "size" }

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setOptString sets a string value when present, even if empty.
func (s *configSetter) setOptString(flag string, value *string, dst *string) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setStrings sets a list if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBytes parses and sets a byte size if valid and flag not changed.
func (s *configSetter) setBytes(flag, value string, dst *ByteSize) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := ParseByteSize(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
