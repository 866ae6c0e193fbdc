package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/api"
	"github.com/telekom/smtp-notifier/pkg/events"
	"github.com/telekom/smtp-notifier/pkg/version"
)

const defaultKafkaDialTimeout = 10 * time.Second

type ServeConfig struct {
	ListenAddress string
	TLSCertFile   string
	TLSKeyFile    string
	AllowOrigins  []string

	KafkaBrokers       []string
	KafkaTopic         string
	KafkaGroupID       string
	KafkaDialTimeout   string
	KafkaTLS           bool
	KafkaTLSCAFile     string
	KafkaTLSCertFile   string
	KafkaTLSKeyFile    string
	KafkaTLSInsecure   bool
	KafkaSASLMechanism string
	KafkaSASLUsername  string
	KafkaSASLPassword  string
}

func (c *ServeConfig) Print(log *zap.SugaredLogger) {
	log.Infow("Serve configuration",
		"listen_address", c.ListenAddress,
		"tls", c.TLSCertFile != "",
		"allow_origins", c.AllowOrigins,
		"kafka_brokers", c.KafkaBrokers,
		"kafka_topic", c.KafkaTopic,
		"kafka_group_id", c.KafkaGroupID,
		"kafka_tls", c.KafkaTLS,
		"kafka_sasl_mechanism", c.KafkaSASLMechanism,
	)
}

// kafkaSourceConfig builds the consumer configuration. It returns nil when no
// brokers are configured.
func (c *ServeConfig) kafkaSourceConfig(log *zap.SugaredLogger) (*events.KafkaSourceConfig, error) {
	if len(c.KafkaBrokers) == 0 {
		return nil, nil
	}
	if c.KafkaTopic == "" {
		return nil, errors.New("kafka topic is required when brokers are set")
	}
	dialTimeout, err := parseDuration("kafka-dial-timeout", c.KafkaDialTimeout, defaultKafkaDialTimeout)
	if err != nil {
		log.Warn(err)
	}
	cfg := &events.KafkaSourceConfig{
		Brokers:     c.KafkaBrokers,
		Topic:       c.KafkaTopic,
		GroupID:     c.KafkaGroupID,
		DialTimeout: dialTimeout,
	}
	if c.KafkaTLS {
		tlsCfg := &events.KafkaTLSConfig{Enabled: true, InsecureSkipVerify: c.KafkaTLSInsecure}
		if tlsCfg.CACert, err = readOptional(c.KafkaTLSCAFile); err != nil {
			return nil, err
		}
		if tlsCfg.ClientCert, err = readOptional(c.KafkaTLSCertFile); err != nil {
			return nil, err
		}
		if tlsCfg.ClientKey, err = readOptional(c.KafkaTLSKeyFile); err != nil {
			return nil, err
		}
		cfg.TLS = tlsCfg
	}
	if c.KafkaSASLMechanism != "" {
		cfg.SASL = &events.KafkaSASLConfig{
			Mechanism: c.KafkaSASLMechanism,
			Username:  c.KafkaSASLUsername,
			Password:  c.KafkaSASLPassword,
		}
	}
	return cfg, nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b, nil
}

func NewServeCommand() *cobra.Command {
	sc := &ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and consume notification events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt, sc)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sc.ListenAddress, "listen-address", getEnvString("LISTEN_ADDRESS", api.DefaultListenAddress),
		"The address the HTTP API binds to (host:port)")
	f.StringVar(&sc.TLSCertFile, "tls-cert-file", getEnvString("TLS_CERT_FILE", ""),
		"Certificate for serving the API over HTTPS")
	f.StringVar(&sc.TLSKeyFile, "tls-key-file", getEnvString("TLS_KEY_FILE", ""),
		"Key for serving the API over HTTPS")
	f.StringSliceVar(&sc.AllowOrigins, "cors-allow-origin", getEnvList("CORS_ALLOW_ORIGINS", nil),
		"Origins allowed by CORS in debug mode")

	f.StringSliceVar(&sc.KafkaBrokers, "kafka-brokers", getEnvList("KAFKA_BROKERS", nil),
		"Kafka brokers to consume notification events from. Empty disables the consumer")
	f.StringVar(&sc.KafkaTopic, "kafka-topic", getEnvString("KAFKA_TOPIC", "notifications"),
		"Kafka topic carrying notification events")
	f.StringVar(&sc.KafkaGroupID, "kafka-group-id", getEnvString("KAFKA_GROUP_ID", ""),
		"Kafka consumer group (default smtp-notifier)")
	f.StringVar(&sc.KafkaDialTimeout, "kafka-dial-timeout", getEnvString("KAFKA_DIAL_TIMEOUT", "10s"),
		"Timeout for broker connections (e.g. '10s')")
	f.BoolVar(&sc.KafkaTLS, "kafka-tls", getEnvBool("KAFKA_TLS", false),
		"Connect to the brokers over TLS")
	f.StringVar(&sc.KafkaTLSCAFile, "kafka-tls-ca-file", getEnvString("KAFKA_TLS_CA_FILE", ""),
		"PEM CA bundle for verifying the brokers")
	f.StringVar(&sc.KafkaTLSCertFile, "kafka-tls-cert-file", getEnvString("KAFKA_TLS_CERT_FILE", ""),
		"PEM client certificate for mTLS")
	f.StringVar(&sc.KafkaTLSKeyFile, "kafka-tls-key-file", getEnvString("KAFKA_TLS_KEY_FILE", ""),
		"PEM client key for mTLS")
	f.BoolVar(&sc.KafkaTLSInsecure, "kafka-tls-insecure", getEnvBool("KAFKA_TLS_INSECURE", false),
		"Skip broker certificate verification")
	f.StringVar(&sc.KafkaSASLMechanism, "kafka-sasl-mechanism", getEnvString("KAFKA_SASL_MECHANISM", ""),
		"SASL mechanism: PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512")
	f.StringVar(&sc.KafkaSASLUsername, "kafka-sasl-username", getEnvString("KAFKA_SASL_USERNAME", ""),
		"SASL username")
	f.StringVar(&sc.KafkaSASLPassword, "kafka-sasl-password", getEnvString("KAFKA_SASL_PASSWORD", ""),
		"SASL password")

	return cmd
}

func serve(ctx context.Context, rt *runtimeState, sc *ServeConfig) error {
	log := rt.log()
	log.Infow("Starting smtp-notifier", "version", version.Version, "config", rt.configPath)
	sc.Print(log)

	cfg, err := rt.loadConfig()
	if err != nil {
		return err
	}
	if rt.debug {
		log.Debugw("Notifier configuration", "config", cfg.Redacted())
	}

	disp := rt.dispatcher()
	p := rt.plugin(disp)
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialise notifier: %w", err)
	}

	bus := events.NewBus(log)
	p.Subscribe(bus)

	server := api.NewServer(rt.logger, api.ServerConfig{
		ListenAddress: sc.ListenAddress,
		TLSCertFile:   sc.TLSCertFile,
		TLSKeyFile:    sc.TLSKeyFile,
		Debug:         rt.debug,
		AllowOrigins:  sc.AllowOrigins,
	})
	if err := server.RegisterAll([]api.APIController{
		api.NewNotifierController(log, bus, disp),
		api.NewTemplateController(log, p),
		api.NewConfigController(log, rt.store),
	}); err != nil {
		return fmt.Errorf("failed to register API controllers: %w", err)
	}

	kafkaCfg, err := sc.kafkaSourceConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- server.Run(ctx) }()

	if kafkaCfg != nil {
		source, err := events.NewKafkaSource(*kafkaCfg, log)
		if err != nil {
			cancel()
			<-errCh
			return fmt.Errorf("failed to create kafka source: %w", err)
		}
		defer func() {
			if err := source.Close(); err != nil {
				log.Warnw("Failed to close kafka source", "error", err)
			}
		}()
		p.Subscribe(source)
		running++
		go func() { errCh <- source.Run(ctx) }()
	}

	// The first component to stop takes the others down.
	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	log.Info("smtp-notifier stopped")
	return firstErr
}
