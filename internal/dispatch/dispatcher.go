package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/dto"
	"github.com/Additional-Code/tabula/internal/entity"
	"github.com/Additional-Code/tabula/internal/observability"
	"github.com/Additional-Code/tabula/internal/rowstore"
	"github.com/Additional-Code/tabula/internal/service/records"
	"github.com/Additional-Code/tabula/pkg/errorbank"
)

// Module provides the dispatcher to Fx.
var Module = fx.Provide(NewDispatcher)

// errNoData is returned as a normal result, not an error envelope.
const errNoData = "No data provided"

// Params defines dependencies for constructing Dispatcher.
type Params struct {
	fx.In

	Service     *records.Service
	Logger      *zap.Logger
	Instruments *observability.Instruments
}

// Dispatcher runs one action at a time against the record service.
type Dispatcher struct {
	mu          sync.Mutex
	svc         *records.Service
	logger      *zap.Logger
	instruments *observability.Instruments
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{svc: p.Service, logger: p.Logger, instruments: p.Instruments}
}

// Read runs a GET action. data is the raw value of the data query parameter.
func (d *Dispatcher) Read(ctx context.Context, action Action, data string) (any, error) {
	if !action.IsRead() {
		return nil, errorbank.InvalidAction(errorbank.WithDetail("action", action.String()))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	result, err := d.read(ctx, d.svc.Begin(), action, data)
	d.finish(ctx, action, start, result, err)
	return result, err
}

// Write runs a POST action with its raw JSON body.
func (d *Dispatcher) Write(ctx context.Context, action Action, body []byte) (any, error) {
	if action == actionUnknown || action.IsRead() {
		return nil, errorbank.InvalidAction(errorbank.WithDetail("action", action.String()))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	result, err := d.write(ctx, d.svc.Begin(), action, body)
	d.finish(ctx, action, start, result, err)
	return result, err
}

func (d *Dispatcher) read(ctx context.Context, scope *records.Scope, action Action, data string) (any, error) {
	switch action {
	case GetProducts:
		return scope.List(ctx, entity.KindProduct)
	case GetOrders:
		return scope.List(ctx, entity.KindOrder)
	case GetDeliveryPlans:
		return scope.List(ctx, entity.KindDeliveryPlan)
	case GetAll:
		return scope.All(ctx)
	case SyncAllQuery:
		if data == "" {
			return dto.ErrorResponse{Error: errNoData}, nil
		}
		// Clients encode the payload themselves on top of query encoding.
		decoded, err := url.PathUnescape(data)
		if err != nil {
			return nil, errorbank.MalformedPayload(err)
		}
		req, err := decodeSync([]byte(decoded))
		if err != nil {
			return nil, err
		}
		return scope.SyncAll(ctx, req)
	case actionUnknown, SaveProduct, SaveOrder, SaveDeliveryPlan,
		DeleteProduct, DeleteOrder, DeleteDeliveryPlan, SyncAll:
		return nil, errorbank.InvalidAction()
	}
	return nil, errorbank.InvalidAction()
}

func (d *Dispatcher) write(ctx context.Context, scope *records.Scope, action Action, body []byte) (any, error) {
	switch action {
	case SaveProduct:
		return save(ctx, scope, entity.KindProduct, body)
	case SaveOrder:
		return save(ctx, scope, entity.KindOrder, body)
	case SaveDeliveryPlan:
		return save(ctx, scope, entity.KindDeliveryPlan, body)
	case DeleteProduct:
		return remove(ctx, scope, entity.KindProduct, body)
	case DeleteOrder:
		return remove(ctx, scope, entity.KindOrder, body)
	case DeleteDeliveryPlan:
		return remove(ctx, scope, entity.KindDeliveryPlan, body)
	case SyncAll:
		req, err := decodeSync(body)
		if err != nil {
			return nil, err
		}
		return scope.SyncAll(ctx, req)
	case actionUnknown, GetProducts, GetOrders, GetDeliveryPlans, GetAll, SyncAllQuery:
		return nil, errorbank.InvalidAction()
	}
	return nil, errorbank.InvalidAction()
}

func save(ctx context.Context, scope *records.Scope, kind entity.Kind, body []byte) (any, error) {
	rec, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return scope.Save(ctx, kind, rec)
}

func remove(ctx context.Context, scope *records.Scope, kind entity.Kind, body []byte) (any, error) {
	rec, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return scope.Delete(ctx, kind, rec.Value(entity.FieldID))
}

func (d *Dispatcher) finish(ctx context.Context, action Action, start time.Time, result any, err error) {
	fields := []zap.Field{
		zap.String("action", action.String()),
		zap.Duration("duration", time.Since(start)),
	}
	if err == nil {
		outcome := "ok"
		switch r := result.(type) {
		case dto.DeleteResult:
			if !r.Success {
				outcome = "not_found"
			}
		case dto.ErrorResponse:
			outcome = "no_data"
		}
		d.instruments.Request(ctx, action.String(), outcome)
		d.logger.Info("action handled", append(fields, zap.String("outcome", outcome))...)
		return
	}

	appErr := errorbank.From(err)
	d.instruments.Request(ctx, action.String(), string(appErr.Kind()))
	fields = append(fields, zap.String("outcome", string(appErr.Kind())), zap.Error(err))
	if appErr.ClientFault() {
		d.logger.Warn("action rejected", fields...)
		return
	}
	d.logger.Error("action failed", fields...)
}

// decodeObject parses body as a single JSON object.
func decodeObject(body []byte) (*rowstore.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		return nil, errorbank.MalformedPayload(errors.New("payload must be a JSON object"))
	}
	rec := rowstore.NewRecord()
	if err := json.Unmarshal(trimmed, rec); err != nil {
		return nil, errorbank.MalformedPayload(err)
	}
	return rec, nil
}

func decodeSync(body []byte) (dto.SyncRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		return dto.SyncRequest{}, errorbank.MalformedPayload(errors.New("payload must be a JSON object"))
	}
	var req dto.SyncRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return dto.SyncRequest{}, errorbank.MalformedPayload(fmt.Errorf("syncAll: %w", err))
	}
	return req, nil
}
