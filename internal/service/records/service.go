// Package records implements the product, order and delivery plan operations
// on top of the row store.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/dto"
	"github.com/Additional-Code/tabula/internal/entity"
	"github.com/Additional-Code/tabula/internal/messaging"
	"github.com/Additional-Code/tabula/internal/observability"
	"github.com/Additional-Code/tabula/internal/rowstore"
	"github.com/Additional-Code/tabula/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tabula/service/records")

// Change event names, sent in the "event" message header.
const (
	EventSaved   = "record.saved"
	EventDeleted = "record.deleted"
)

// RecordChangedEvent is published after a save or delete reached the store.
type RecordChangedEvent struct {
	Event string      `json:"event"`
	Kind  entity.Kind `json:"kind"`
	ID    any         `json:"id"`
	At    string      `json:"at"`
}

// Service encapsulates record operations.
type Service struct {
	backend     rowstore.Backend
	logger      *zap.Logger
	publisher   messaging.Client
	instruments *observability.Instruments
	now         func() time.Time
	newID       func() string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Backend     rowstore.Backend
	Logger      *zap.Logger
	Publisher   messaging.Client
	Instruments *observability.Instruments
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		backend:     p.Backend,
		logger:      p.Logger,
		publisher:   p.Publisher,
		instruments: p.Instruments,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Scope resolves each table at most once. Callers open one per request.
type Scope struct {
	svc    *Service
	tables map[entity.Kind]*rowstore.Table
}

// Begin opens a request scope.
func (s *Service) Begin() *Scope {
	return &Scope{svc: s, tables: make(map[entity.Kind]*rowstore.Table, 3)}
}

// Setup ensures all three sheets exist with their headers.
func (s *Service) Setup(ctx context.Context) (dto.SetupResult, error) {
	ctx, span := serviceTracer.Start(ctx, "RecordService.Setup")
	defer span.End()

	scope := s.Begin()
	var result dto.SetupResult
	for _, codec := range entity.Codecs() {
		table, err := scope.table(ctx, codec)
		if err != nil {
			fail(span, err)
			return dto.SetupResult{}, err
		}
		result.Sheets = append(result.Sheets, dto.SheetStatus{
			Name:    table.Name(),
			Headers: table.Headers(),
			Created: table.Created(),
		})
	}
	return result, nil
}

// List returns every stored record of kind in sheet order.
func (sc *Scope) List(ctx context.Context, kind entity.Kind) ([]*rowstore.Record, error) {
	codec, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	ctx, span := serviceTracer.Start(ctx, "RecordService.List", trace.WithAttributes(attribute.String("record.kind", string(kind))))
	defer span.End()

	table, err := sc.table(ctx, codec)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	res, err := table.ReadAll(ctx)
	if err != nil {
		fail(span, err)
		return nil, errorbank.Store(err)
	}
	for _, failure := range res.DecodeFailures {
		sc.svc.logger.Warn("nested field is not valid JSON; returned as text",
			zap.String("table", table.Name()),
			zap.Int("row", failure.Row),
			zap.String("field", failure.Field),
			zap.Error(failure.Err),
		)
		sc.svc.instruments.DecodeFallback(ctx, table.Name(), failure.Field)
	}
	span.SetAttributes(attribute.Int("record.count", len(res.Records)))
	return res.Records, nil
}

// All returns the three collections.
func (sc *Scope) All(ctx context.Context) (dto.Collections, error) {
	products, err := sc.List(ctx, entity.KindProduct)
	if err != nil {
		return dto.Collections{}, err
	}
	orders, err := sc.List(ctx, entity.KindOrder)
	if err != nil {
		return dto.Collections{}, err
	}
	plans, err := sc.List(ctx, entity.KindDeliveryPlan)
	if err != nil {
		return dto.Collections{}, err
	}
	return dto.Collections{Products: products, Orders: orders, DeliveryPlans: plans}, nil
}

// Save stamps rec according to its kind and upserts it by id.
func (sc *Scope) Save(ctx context.Context, kind entity.Kind, rec *rowstore.Record) (dto.SaveResult, error) {
	codec, err := lookup(kind)
	if err != nil {
		return dto.SaveResult{}, err
	}
	ctx, span := serviceTracer.Start(ctx, "RecordService.Save", trace.WithAttributes(attribute.String("record.kind", string(kind))))
	defer span.End()

	table, err := sc.table(ctx, codec)
	if err != nil {
		fail(span, err)
		return dto.SaveResult{}, err
	}

	now := sc.svc.now()
	prepared := codec.Prepare(rec, now, sc.svc.newID)
	id := prepared.Value(entity.FieldID)
	outcome, err := table.Upsert(ctx, prepared)
	if err != nil {
		fail(span, err)
		return dto.SaveResult{}, errorbank.Store(err)
	}
	span.SetAttributes(
		attribute.String("record.id", rowstore.CellText(id)),
		attribute.Bool("record.inserted", outcome.Inserted),
		attribute.Int("sheet.position", outcome.Position),
	)

	sc.svc.publish(ctx, EventSaved, kind, id, now)
	return dto.SaveResult{Success: true, ID: id}, nil
}

// Delete removes the first record whose id strictly equals id.
func (sc *Scope) Delete(ctx context.Context, kind entity.Kind, id any) (dto.DeleteResult, error) {
	codec, err := lookup(kind)
	if err != nil {
		return dto.DeleteResult{}, err
	}
	ctx, span := serviceTracer.Start(ctx, "RecordService.Delete", trace.WithAttributes(
		attribute.String("record.kind", string(kind)),
		attribute.String("record.id", rowstore.CellText(id)),
	))
	defer span.End()

	table, err := sc.table(ctx, codec)
	if err != nil {
		fail(span, err)
		return dto.DeleteResult{}, err
	}
	found, err := table.Delete(ctx, id)
	if err != nil {
		fail(span, err)
		return dto.DeleteResult{}, errorbank.Store(err)
	}
	if !found {
		return dto.DeleteResult{Success: false, Error: "Not found"}, nil
	}

	sc.svc.publish(ctx, EventDeleted, kind, id, sc.svc.now())
	return dto.DeleteResult{Success: true}, nil
}

// SyncAll saves products, then orders, then delivery plans, each in order.
// The first failure stops the run; records saved before it stay saved.
func (sc *Scope) SyncAll(ctx context.Context, req dto.SyncRequest) (dto.SyncResult, error) {
	ctx, span := serviceTracer.Start(ctx, "RecordService.SyncAll", trace.WithAttributes(
		attribute.Int("sync.products", len(req.Products)),
		attribute.Int("sync.orders", len(req.Orders)),
		attribute.Int("sync.delivery_plans", len(req.DeliveryPlans)),
	))
	defer span.End()

	var counts dto.SyncCounts
	batches := []struct {
		kind    entity.Kind
		records []*rowstore.Record
		count   *int
	}{
		{entity.KindProduct, req.Products, &counts.Products},
		{entity.KindOrder, req.Orders, &counts.Orders},
		{entity.KindDeliveryPlan, req.DeliveryPlans, &counts.DeliveryPlans},
	}

	for _, batch := range batches {
		for i, rec := range batch.records {
			var err error
			if rec == nil {
				err = errorbank.MalformedPayload(fmt.Errorf("%s at index %d is null", batch.kind, i))
			} else {
				_, err = sc.Save(ctx, batch.kind, rec)
			}
			if err != nil {
				sc.svc.instruments.Synced(ctx, string(batch.kind), *batch.count)
				sc.svc.logger.Error("sync aborted",
					zap.String("kind", string(batch.kind)),
					zap.Int("products", counts.Products),
					zap.Int("orders", counts.Orders),
					zap.Int("delivery_plans", counts.DeliveryPlans),
					zap.Error(err),
				)
				fail(span, err)
				return dto.SyncResult{}, err
			}
			*batch.count++
		}
		sc.svc.instruments.Synced(ctx, string(batch.kind), *batch.count)
	}

	return dto.SyncResult{Success: true, Synced: counts}, nil
}

func (sc *Scope) table(ctx context.Context, codec entity.Codec) (*rowstore.Table, error) {
	if table, ok := sc.tables[codec.Kind]; ok {
		return table, nil
	}
	table, err := rowstore.Ensure(ctx, sc.svc.backend, codec.Spec())
	if err != nil {
		return nil, errorbank.Store(err)
	}
	if table.Created() {
		sc.svc.logger.Info("sheet created", zap.String("sheet", table.Name()), zap.Strings("headers", table.Headers()))
	}
	sc.tables[codec.Kind] = table
	return table, nil
}

func (s *Service) publish(ctx context.Context, event string, kind entity.Kind, id any, at time.Time) {
	if s.publisher == nil || !s.publisher.Enabled() {
		return
	}
	payload, err := json.Marshal(RecordChangedEvent{
		Event: event,
		Kind:  kind,
		ID:    id,
		At:    entity.Timestamp(at),
	})
	if err != nil {
		s.logger.Error("marshal record event", zap.Error(err))
		return
	}
	key := []byte(fmt.Sprintf("%s:%s", kind, rowstore.CellText(id)))
	if err := s.publisher.Publish(ctx, key, payload, map[string]string{messaging.EventHeader: event}); err != nil {
		// The write already reached the store; the caller still gets success.
		s.logger.Error("publish record event", zap.String("event", event), zap.Error(err))
	}
}

func lookup(kind entity.Kind) (entity.Codec, error) {
	codec, ok := entity.Lookup(kind)
	if !ok {
		return entity.Codec{}, errorbank.Internal(fmt.Sprintf("unknown record kind %q", kind))
	}
	return codec, nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
