package export

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linkedin/goavro/v2"
	"github.com/riferrei/srclient"
	"github.com/segmentio/kafka-go"

	"flowboard/internal/dashboard"
	"flowboard/internal/log"
)

// DefaultTopic receives snapshots when no topic is configured.
const DefaultTopic = "flowboard.metrics"

// Config holds the export connection settings.
type Config struct {
	Brokers           []string
	Topic             string
	SchemaRegistryURL string
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Subject is the schema registry subject of the topic value.
func (c Config) Subject() string {
	return fmt.Sprintf("%s-value", c.Topic)
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes snapshots to a Kafka topic as Avro. The schema is
// registered on first use.
type KafkaPublisher struct {
	cfg    Config
	writer messageWriter
	codec  *goavro.Codec
	logger log.Logger

	// resolveSchema returns the registry id of MetricsSchema.
	resolveSchema func() (int, error)

	mu       sync.Mutex
	schemaID int
	resolved bool
}

// NewKafkaPublisher creates a publisher for cfg.
func NewKafkaPublisher(cfg Config, logger log.Logger) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if logger == nil {
		logger = log.Global()
	}
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	p := &KafkaPublisher{
		cfg:    cfg,
		writer: writer,
		codec:  codec,
		logger: logger,
	}
	p.resolveSchema = p.registerSchema
	return p, nil
}

// registerSchema looks the subject up and registers MetricsSchema when it is
// missing.
func (p *KafkaPublisher) registerSchema() (int, error) {
	if p.cfg.SchemaRegistryURL == "" {
		return 0, fmt.Errorf("schema registry url is required for export")
	}
	client := srclient.CreateSchemaRegistryClient(p.cfg.SchemaRegistryURL)
	subject := p.cfg.Subject()

	schema, err := client.GetLatestSchema(subject)
	if err != nil || schema == nil {
		p.logger.Info("registering export schema", "subject", subject)
		schema, err = client.CreateSchema(subject, MetricsSchema, srclient.Avro)
		if err != nil {
			return 0, fmt.Errorf("failed to register schema: %w", err)
		}
	}
	p.logger.Debug("export schema ready", "subject", subject, "schema_id", schema.ID())
	return schema.ID(), nil
}

func (p *KafkaPublisher) ensureSchema() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.schemaID, nil
	}
	id, err := p.resolveSchema()
	if err != nil {
		return 0, err
	}
	p.schemaID, p.resolved = id, true
	return id, nil
}

// Publish writes snap keyed by tenant id.
func (p *KafkaPublisher) Publish(ctx context.Context, snap *dashboard.Snapshot) error {
	schemaID, err := p.ensureSchema()
	if err != nil {
		return err
	}
	payload, err := Encode(p.codec, schemaID, NewEvent(snap))
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(snap.TenantID),
		Value: payload,
		Time:  snap.FetchedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	p.logger.Debug("snapshot exported", "topic", p.cfg.Topic, "tenant", snap.TenantID, "range", snap.Range)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
