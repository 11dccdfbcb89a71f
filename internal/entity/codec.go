package entity

import (
	"time"

	"github.com/Additional-Code/tabula/internal/rowstore"
)

// Kind names a record kind.
type Kind string

const (
	KindProduct      Kind = "product"
	KindOrder        Kind = "order"
	KindDeliveryPlan Kind = "deliveryPlan"
)

// Sheet names.
const (
	ProductsTable      = "products"
	OrdersTable        = "orders"
	DeliveryPlansTable = "delivery_plans"
)

// Common field names.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NestedFields are decoded from JSON text wherever they appear on read.
var NestedFields = []string{"bom", "materials", "shipments"}

// Codec holds the storage rules of one record kind. Header order fixes column
// positions and must not change once sheets exist.
type Codec struct {
	Kind    Kind
	Table   string
	Headers []string
	// Encoded fields are written as JSON text when they hold objects or arrays.
	Encoded []string
	// TracksUpdates stamps updatedAt on every save.
	TracksUpdates bool
	// GeneratesID assigns an id when the record arrives without one.
	GeneratesID bool
}

var (
	// Products stores finished goods and their bill of materials.
	Products = Codec{
		Kind:          KindProduct,
		Table:         ProductsTable,
		Headers:       []string{"id", "code", "name", "unit", "baseQty", "bom", "createdAt", "updatedAt"},
		Encoded:       []string{"bom"},
		TracksUpdates: true,
	}

	// Orders stores subcontracting orders.
	Orders = Codec{
		Kind:  KindOrder,
		Table: OrdersTable,
		Headers: []string{
			"id", "orderNo", "productId", "productName", "productUnit", "qty",
			"subcontractor", "dueDate", "status", "receivedQty", "outstandingQty",
			"materials", "shipments", "createdAt", "updatedAt",
		},
		Encoded:       []string{"materials", "shipments"},
		TracksUpdates: true,
	}

	// DeliveryPlans stores planned deliveries against orders.
	DeliveryPlans = Codec{
		Kind:        KindDeliveryPlan,
		Table:       DeliveryPlansTable,
		Headers:     []string{"id", "orderId", "orderNo", "plannedDate", "plannedQty", "note", "createdAt"},
		GeneratesID: true,
	}
)

// Codecs lists every codec in sync order.
func Codecs() []Codec {
	return []Codec{Products, Orders, DeliveryPlans}
}

// Lookup returns the codec for kind.
func Lookup(kind Kind) (Codec, bool) {
	for _, c := range Codecs() {
		if c.Kind == kind {
			return c, true
		}
	}
	return Codec{}, false
}

// Spec returns the table spec the row store opens this kind's sheet with.
func (c Codec) Spec() rowstore.TableSpec {
	return rowstore.TableSpec{
		Name:       c.Table,
		Headers:    c.Headers,
		Key:        FieldID,
		JSONFields: NestedFields,
		Immutable:  []string{FieldCreatedAt},
	}
}

// Prepare returns a copy of rec with timestamps and ids stamped and nested
// fields encoded, ready for upsert. newID is only called when the codec
// generates ids and rec has none.
func (c Codec) Prepare(rec *rowstore.Record, now time.Time, newID func() string) *rowstore.Record {
	out := rec.Clone()
	ts := Timestamp(now)

	if c.GeneratesID && !rowstore.Truthy(out.Value(FieldID)) {
		out.Set(FieldID, newID())
	}
	if c.TracksUpdates {
		out.Set(FieldUpdatedAt, ts)
	}
	if !rowstore.Truthy(out.Value(FieldCreatedAt)) {
		out.Set(FieldCreatedAt, ts)
	}

	for _, field := range c.Encoded {
		value, ok := out.Get(field)
		if !ok || !isObject(value) {
			continue
		}
		if text, err := rowstore.MarshalText(value); err == nil {
			out.Set(field, string(text))
		}
	}
	return out
}

// Timestamp formats t the way every stored timestamp is written.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func isObject(v any) bool {
	switch v.(type) {
	case map[string]any, []any, *rowstore.Record:
		return true
	default:
		return false
	}
}
