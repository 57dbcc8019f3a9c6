package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/docship/internal/adapters/metrics"
	"github.com/bft-labs/docship/internal/cliconfig"
	"github.com/bft-labs/docship/pkg/docship"
	"github.com/bft-labs/docship/pkg/log"
)

const helpDescription = `
Write documents to Elasticsearch in batches, over plaintext or TLS.

Highlights:
  - Groups writes into _bulk requests bounded by count, bytes and linger.
  - Retries only the items that failed transiently, in per-document order.
  - Verifies server certificates and hostnames; supports client certificates.
  - Streams Kafka topics into indices, committing offsets only after writes land.

Configure via file ($HOME/.docship/config.toml), DOCSHIP_* env vars, or flags.
`

var exampleUsage = strings.TrimSpace(`
  docship check --url https://es:9200 --security-protocol SSL --truststore ca.pem
  docship send ops.ndjson --url http://localhost:9200 --index logs
  docship run --url https://es:9200 --kafka-brokers k1:9092 --kafka-topics orders --dlq-topic orders-dlq
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return docship.Version
}

// cli carries state shared by the subcommands once configuration is loaded.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	envPath string
	logger  *log.ZerologAdapter
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:               "docship",
		Short:             "Batched, secure bulk writes to Elasticsearch",
		Long:              strings.TrimSpace(helpDescription),
		Example:           exampleUsage,
		Version:           fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	c.bindFlags(root.PersistentFlags())

	root.AddCommand(c.runCommand(), c.sendCommand(), c.checkCommand())

	if err := root.Execute(); err != nil {
		if c.logger == nil {
			c.logger = log.NewZerologAdapter()
		}
		c.logger.Error("docship", log.Err(err))
		os.Exit(1)
	}
}

func (c *cli) bindFlags(fs *pflag.FlagSet) {
	cfg := &c.cfg

	fs.StringVar(&c.cfgPath, "config", "", "path to config file, .toml or .yaml (default: $HOME/.docship/config.toml)")
	fs.StringVar(&c.envPath, "env-file", ".env", "dotenv file loaded before reading DOCSHIP_* variables")

	fs.StringSliceVar(&cfg.URLs, "url", cfg.URLs, "Elasticsearch endpoint URLs")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "basic auth user")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "basic auth password")

	fs.StringVar(&cfg.SecurityProtocol, "security-protocol", cfg.SecurityProtocol, "PLAINTEXT or SSL")
	fs.StringVar(&cfg.KeystoreLocation, "keystore", cfg.KeystoreLocation, "client key store (PKCS#12 or PEM)")
	fs.StringVar(&cfg.KeystorePassword, "keystore-password", cfg.KeystorePassword, "key store password")
	fs.StringVar(&cfg.KeyPassword, "key-password", cfg.KeyPassword, "private key password, defaults to the key store password")
	fs.StringVar(&cfg.TruststoreLocation, "truststore", cfg.TruststoreLocation, "trusted CA certificates (PKCS#12 or PEM)")
	fs.StringVar(&cfg.TruststorePassword, "truststore-password", cfg.TruststorePassword, "trust store password")
	fs.StringVar(&cfg.EndpointIdentAlgo, "ssl-endpoint-identification-algorithm", cfg.EndpointIdentAlgo, `"https" verifies hostnames, empty disables the check`)

	fs.IntVar(&cfg.MaxBatchCount, "batch-size", cfg.MaxBatchCount, "maximum operations per bulk request")
	fs.Var(&cfg.MaxBatchBytes, "max-batch-bytes", "maximum bulk body size, e.g. 5MiB")
	fs.DurationVar(&cfg.Linger, "linger", cfg.Linger, "how long a partial batch waits for more operations")
	fs.IntVar(&cfg.HighWatermark, "high-watermark", cfg.HighWatermark, "pending operations before submits block")
	fs.DurationVar(&cfg.SubmitTimeout, "submit-timeout", cfg.SubmitTimeout, "how long a blocked submit waits")

	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "retries per operation, negative disables retry")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "maximum retry backoff")

	fs.IntVar(&cfg.MaxConnsPerEndpoint, "max-conns", cfg.MaxConnsPerEndpoint, "connections per endpoint")
	fs.DurationVar(&cfg.AcquireTimeout, "acquire-timeout", cfg.AcquireTimeout, "wait for a pooled connection")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "bulk request timeout")
	fs.IntVar(&cfg.ConnectionRetries, "connection-retries", cfg.ConnectionRetries, "attempts per request across endpoints")
	fs.Float64Var(&cfg.MaxRequestsPerSecond, "max-rps", cfg.MaxRequestsPerSecond, "bulk requests per second, 0 is unlimited")
	fs.BoolVar(&cfg.Compression, "compression", cfg.Compression, "gzip request bodies")

	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent bulk requests (default: pool capacity)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long stop waits for in-flight writes")
	fs.BoolVar(&cfg.ExternalVersioning, "external-versioning", cfg.ExternalVersioning, "use source offsets as external document versions")
	fs.StringVar(&cfg.VersionConflictPolicy, "version-conflict", cfg.VersionConflictPolicy, "fail or ignore version conflicts")

	fs.StringSliceVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "Kafka bootstrap brokers")
	fs.StringSliceVar(&cfg.KafkaTopics, "kafka-topics", cfg.KafkaTopics, "topics to consume")
	fs.StringVar(&cfg.KafkaGroupID, "kafka-group", cfg.KafkaGroupID, "consumer group id")
	fs.StringVar(&cfg.DLQTopic, "dlq-topic", cfg.DLQTopic, "topic receiving permanently failed records")
	fs.StringVar(&cfg.Index, "index", cfg.Index, "target index (default: lower-cased topic, or required by send)")
	fs.BoolVar(&cfg.KeyIgnore, "key-ignore", cfg.KeyIgnore, "derive document ids from topic+partition+offset")
	fs.StringVar(&cfg.WriteMethod, "write-method", cfg.WriteMethod, "insert or upsert")
	fs.StringVar(&cfg.NullValues, "null-values", cfg.NullValues, "null record values: delete, ignore or fail")
	fs.DurationVar(&cfg.CommitInterval, "commit-interval", cfg.CommitInterval, "offset commit interval")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
}

// load applies file, then env, then flag values and builds the logger.
func (c *cli) load(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	} else if c.cfgPath != "" {
		return fmt.Errorf("config file %s not found", c.cfgPath)
	}

	if err := cliconfig.LoadDotEnv(c.envPath); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = log.NewZerologAdapter(log.WithLevel(c.cfg.LogLevel), log.WithFormat(c.cfg.LogFormat))
	c.logger.Debug("configuration", log.Any("config", c.cfg.Redacted()))
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (c *cli) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			c.logger.Info("received signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// newDocship creates the client with metrics served when an address is set.
func (c *cli) newDocship(ctx context.Context, opts ...docship.Option) (*docship.Docship, error) {
	opts = append([]docship.Option{docship.WithLogger(c.logger)}, opts...)

	if c.cfg.MetricsAddr != "" {
		prom, err := metrics.NewPrometheus()
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		go func() {
			if err := prom.Serve(ctx, c.cfg.MetricsAddr, c.logger); err != nil {
				c.logger.Error("metrics server stopped", log.Err(err))
			}
		}()
		opts = append(opts, docship.WithMetrics(prom))
	}

	d, err := docship.New(c.cfg.Library(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create docship: %w", err)
	}
	return d, nil
}
