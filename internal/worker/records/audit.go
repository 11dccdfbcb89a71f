// Package records consumes record change events published by the API.
package records

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/entity"
	"github.com/Additional-Code/tabula/internal/messaging"
	recordsvc "github.com/Additional-Code/tabula/internal/service/records"
	"github.com/Additional-Code/tabula/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/tabula/worker/records")

// Module registers the record change audit handlers.
var Module = fx.Module("worker_records",
	fx.Provide(NewAuditHandlers),
)

// Handlers are the registrations contributed to the worker engine.
type Handlers struct {
	fx.Out

	Saved   worker.HandlerRegistration `group:"worker.handlers"`
	Deleted worker.HandlerRegistration `group:"worker.handlers"`
}

// NewAuditHandlers builds one audit handler per change event.
func NewAuditHandlers(logger *zap.Logger, cfg config.Config) Handlers {
	topic := cfg.Messaging.Kafka.Topic
	return Handlers{
		Saved: worker.HandlerRegistration{
			Topic:   topic,
			Event:   recordsvc.EventSaved,
			Handler: audit(logger, recordsvc.EventSaved),
		},
		Deleted: worker.HandlerRegistration{
			Topic:   topic,
			Event:   recordsvc.EventDeleted,
			Handler: audit(logger, recordsvc.EventDeleted),
		},
	}
}

func audit(logger *zap.Logger, event string) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.records."+event, trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		changed, err := Decode(msg.Value)
		if err != nil {
			logger.Error("failed to decode record event", zap.String("event", event), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		if changed.Event != event {
			logger.Warn("event header does not match payload",
				zap.String("header", event),
				zap.String("payload", changed.Event),
			)
		}
		span.SetAttributes(attribute.String("tabula.kind", string(changed.Kind)))

		logger.Info("record change audited",
			zap.String("event", changed.Event),
			zap.String("kind", string(changed.Kind)),
			zap.Any("id", changed.ID),
			zap.String("at", changed.At),
			zap.ByteString("key", msg.Key),
		)
		return nil
	}
}

// Decode parses a record change payload and checks that it names a known
// kind.
func Decode(payload []byte) (recordsvc.RecordChangedEvent, error) {
	var changed recordsvc.RecordChangedEvent
	if err := json.Unmarshal(payload, &changed); err != nil {
		return recordsvc.RecordChangedEvent{}, err
	}
	if _, ok := entity.Lookup(changed.Kind); !ok {
		return recordsvc.RecordChangedEvent{}, fmt.Errorf("unknown record kind %q", changed.Kind)
	}
	return changed, nil
}
