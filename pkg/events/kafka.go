package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// KafkaEmitter publishes domain events to a Kafka topic
type KafkaEmitter struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewKafkaEmitter creates a Kafka-backed event emitter
func NewKafkaEmitter(cfg ProducerConfig, logger ectologger.Logger) *KafkaEmitter {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &KafkaEmitter{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the underlying writer
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}

// BillCreated publishes a bill.created event
func (e *KafkaEmitter) BillCreated(ctx context.Context, bill *models.Bill) error {
	event := BillEvent{
		EventType:    EventBillCreated,
		TenantID:     bill.TenantID.String(),
		BillID:       bill.ID.String(),
		ConnectionID: bill.ConnectionID.String(),
		ExecutiveID:  bill.ExecutiveID.String(),
		Status:       string(bill.Status),
		Amount:       bill.Amount,
		DueDate:      bill.DueDate,
		Timestamp:    time.Now().UTC(),
	}
	return e.publish(ctx, event.EventType, event.TenantID, event.BillID, event)
}

// AlertCreated publishes an alert.created event
func (e *KafkaEmitter) AlertCreated(ctx context.Context, alert *models.Alert) error {
	event := AlertEvent{
		EventType:   EventAlertCreated,
		TenantID:    alert.TenantID.String(),
		AlertID:     alert.ID.String(),
		ExecutiveID: alert.ExecutiveID.String(),
		AlertType:   string(alert.Type),
		Title:       alert.Title,
		DueDate:     alert.DueDate,
		Timestamp:   time.Now().UTC(),
	}
	if alert.BillID != nil {
		billID := alert.BillID.String()
		event.BillID = &billID
	}
	return e.publish(ctx, event.EventType, event.TenantID, event.AlertID, event)
}

// SyncFinished publishes a sync.finished event
func (e *KafkaEmitter) SyncFinished(ctx context.Context, run *models.SyncRun) error {
	event := SyncEvent{
		EventType:    EventSyncFinished,
		TenantID:     run.TenantID.String(),
		SyncRunID:    run.ID.String(),
		ConnectionID: run.ConnectionID.String(),
		Status:       string(run.Status),
		NewBills:     run.Stats.GetValue().NewBillsCount,
		Timestamp:    time.Now().UTC(),
	}
	return e.publish(ctx, event.EventType, event.TenantID, event.SyncRunID, event)
}

func (e *KafkaEmitter) publish(ctx context.Context, eventType, tenantID, key string, event any) error {
	ctx, span := tracing.StartSpan(ctx, "KafkaEmitter.publish")
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: e.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "tenant_id", Value: []byte(tenantID)},
			{Key: "schema_version", Value: []byte("1.0")},
		},
	}

	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
		}).Error("Failed to publish event")
		return err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": eventType,
	}).Debug("Published event")
	return nil
}
