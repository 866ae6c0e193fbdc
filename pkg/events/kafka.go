package events

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/metrics"
	"github.com/telekom/smtp-notifier/pkg/notification"
)

const kafkaSourceName = "kafka"

// KafkaSourceConfig configures a KafkaSource.
type KafkaSourceConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic carries the event envelopes.
	Topic string

	// GroupID is the consumer group. Default: "smtp-notifier"
	GroupID string

	TLS  *KafkaTLSConfig
	SASL *KafkaSASLConfig

	// DialTimeout bounds broker connections. Default: 10 seconds
	DialTimeout time.Duration
}

// KafkaTLSConfig holds TLS configuration for Kafka connections.
type KafkaTLSConfig struct {
	Enabled bool

	// CACert is the PEM-encoded CA certificate for verifying the broker.
	CACert []byte

	// ClientCert and ClientKey are PEM-encoded for mTLS.
	ClientCert []byte
	ClientKey  []byte

	// InsecureSkipVerify skips broker certificate verification.
	InsecureSkipVerify bool
}

// KafkaSASLConfig holds SASL authentication configuration.
type KafkaSASLConfig struct {
	// Mechanism is one of "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512".
	Mechanism string
	Username  string
	Password  string
}

// Envelope is the wire format of a Kafka message value.
type Envelope struct {
	Kind notification.Kind `json:"kind"`
	Data json.RawMessage   `json:"data"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes event envelopes from a topic and publishes them to
// its subscribers.
type KafkaSource struct {
	bus    *Bus
	reader messageReader
	log    *zap.SugaredLogger
}

var _ Source = (*KafkaSource)(nil)

// NewKafkaSource creates a consumer group reader for cfg.Topic.
func NewKafkaSource(cfg KafkaSourceConfig, log *zap.SugaredLogger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &kafka.Dialer{Timeout: timeout, DualStack: true}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		dialer.TLS = tlsConfig
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
		dialer.SASLMechanism = mechanism
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "smtp-notifier"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: groupID,
		Dialer:  dialer,
	})
	return newKafkaSource(reader, log.Named("kafka").With("topic", cfg.Topic, "group", groupID)), nil
}

func newKafkaSource(r messageReader, log *zap.SugaredLogger) *KafkaSource {
	return &KafkaSource{bus: NewBus(log), reader: r, log: log}
}

func (s *KafkaSource) Subscribe(kind notification.Kind, h Handler) {
	s.bus.Subscribe(kind, h)
}

// Run consumes until ctx is cancelled or the reader is closed. Messages that
// cannot be decoded are logged, counted and committed so they are not
// redelivered.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.log.Infow("Consuming notification events")
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}
		if err := s.handleMessage(ctx, msg); err != nil {
			s.log.Warnw("Skipping undecodable event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Errorw("Failed to commit kafka message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (s *KafkaSource) handleMessage(ctx context.Context, msg kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		metrics.EventsConsumed.WithLabelValues(kafkaSourceName, "decode_error").Inc()
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind == "" {
		env.Kind = notification.KindNoticeMessage
	}
	var ev notification.Event
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			metrics.EventsConsumed.WithLabelValues(kafkaSourceName, "decode_error").Inc()
			return err
		}
	}
	if s.bus.Publish(ctx, env.Kind, ev) == 0 {
		metrics.EventsConsumed.WithLabelValues(kafkaSourceName, "no_subscriber").Inc()
		return nil
	}
	metrics.EventsConsumed.WithLabelValues(kafkaSourceName, "published").Inc()
	return nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

func buildTLSConfig(cfg *KafkaTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in
	}
	if len(cfg.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if len(cfg.ClientCert) > 0 && len(cfg.ClientKey) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func buildSASLMechanism(cfg *KafkaSASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.Mechanism)
	}
}
