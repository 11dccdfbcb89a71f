package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tabula/internal/rowstore"
)

var fixedNow = time.Date(2024, 3, 5, 7, 8, 9, 123456789, time.FixedZone("ICT", 7*3600))

func noID() string { panic("id generator must not be called") }

func TestTimestampFormat(t *testing.T) {
	assert.Equal(t, "2024-03-05T00:08:09.123Z", Timestamp(fixedNow))
}

func TestProductPrepareStampsTimestamps(t *testing.T) {
	rec := rowstore.RecordOf("id", "p1", "bom", []any{map[string]any{"code": "A", "qty": 2}})

	out := Products.Prepare(rec, fixedNow, noID)

	assert.Equal(t, "2024-03-05T00:08:09.123Z", out.Value("updatedAt"))
	assert.Equal(t, out.Value("updatedAt"), out.Value("createdAt"))
	assert.Equal(t, `[{"code":"A","qty":2}]`, out.Value("bom"))

	_, hasUpdated := rec.Get("updatedAt")
	assert.False(t, hasUpdated, "Prepare must not mutate its input")
}

func TestProductPrepareKeepsCreatedAt(t *testing.T) {
	rec := rowstore.RecordOf("id", "p1", "createdAt", "2020-01-01T00:00:00.000Z", "bom", "already text")

	out := Products.Prepare(rec, fixedNow, noID)

	assert.Equal(t, "2020-01-01T00:00:00.000Z", out.Value("createdAt"))
	assert.Equal(t, "2024-03-05T00:08:09.123Z", out.Value("updatedAt"))
	assert.Equal(t, "already text", out.Value("bom"))
}

func TestOrderPrepareEncodesMaterialsAndShipments(t *testing.T) {
	rec := rowstore.RecordOf(
		"id", "o1",
		"materials", []any{map[string]any{"code": "M"}},
		"shipments", map[string]any{"count": 0},
	)

	out := Orders.Prepare(rec, fixedNow, noID)

	assert.Equal(t, `[{"code":"M"}]`, out.Value("materials"))
	assert.Equal(t, `{"count":0}`, out.Value("shipments"))
}

func TestDeliveryPlanPrepareGeneratesIDOnlyWhenMissing(t *testing.T) {
	calls := 0
	gen := func() string { calls++; return "generated" }

	out := DeliveryPlans.Prepare(rowstore.RecordOf("orderId", "o1"), fixedNow, gen)
	assert.Equal(t, "generated", out.Value("id"))
	assert.Equal(t, "2024-03-05T00:08:09.123Z", out.Value("createdAt"))
	_, hasUpdated := out.Get("updatedAt")
	assert.False(t, hasUpdated)

	out = DeliveryPlans.Prepare(rowstore.RecordOf("id", "given", "createdAt", "T0"), fixedNow, gen)
	assert.Equal(t, "given", out.Value("id"))
	assert.Equal(t, "T0", out.Value("createdAt"))
	assert.Equal(t, 1, calls)
}

func TestLookupAndSpecs(t *testing.T) {
	for _, codec := range Codecs() {
		found, ok := Lookup(codec.Kind)
		require.True(t, ok)
		assert.Equal(t, codec.Table, found.Table)

		spec := codec.Spec()
		assert.Equal(t, "id", spec.Key)
		assert.Equal(t, codec.Headers, spec.Headers)
		assert.Equal(t, "id", codec.Headers[0])
	}

	_, ok := Lookup(Kind("invoice"))
	assert.False(t, ok)
}

func TestToRecordKeepsFieldOrder(t *testing.T) {
	rec, err := ToRecord(DeliveryPlan{OrderID: "o1", OrderNo: "SC-1", PlannedQty: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"orderId", "orderNo", "plannedDate", "plannedQty", "note"}, rec.Keys())
}
