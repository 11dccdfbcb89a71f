package records

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/dto"
	"github.com/Additional-Code/tabula/internal/entity"
	"github.com/Additional-Code/tabula/internal/messaging"
	"github.com/Additional-Code/tabula/internal/rowstore"
	"github.com/Additional-Code/tabula/pkg/errorbank"
)

type published struct {
	key     string
	value   RecordChangedEvent
	headers map[string]string
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var event RecordChangedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.messages = append(p.messages, published{key: string(key), value: event, headers: headers})
	return p.err
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "records.changes" }
func (p *recordingPublisher) Enabled() bool { return true }

// countingBackend counts EnsureSheet calls and can fail appends after a
// number of successful ones.
type countingBackend struct {
	*rowstore.MemoryBackend
	ensures     int
	appendsLeft int
}

func (b *countingBackend) EnsureSheet(ctx context.Context, name string, headers []string) (rowstore.Sheet, error) {
	b.ensures++
	return b.MemoryBackend.EnsureSheet(ctx, name, headers)
}

func (b *countingBackend) AppendRow(ctx context.Context, name string, cells []any) error {
	if b.appendsLeft == 0 {
		return errors.New("quota exceeded")
	}
	b.appendsLeft--
	return b.MemoryBackend.AppendRow(ctx, name, cells)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(t *testing.T, backend rowstore.Backend) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewService(Params{Backend: backend, Logger: zap.NewNop(), Publisher: pub})
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = c.now
	ids := 0
	svc.newID = func() string {
		ids++
		return "plan-" + string(rune('0'+ids))
	}
	return svc, pub
}

func TestSaveTwiceKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())

	res, err := svc.Begin().Save(ctx, entity.KindProduct, rowstore.RecordOf("id", "p1", "name", "Bolt"))
	require.NoError(t, err)
	assert.Equal(t, dto.SaveResult{Success: true, ID: "p1"}, res)

	_, err = svc.Begin().Save(ctx, entity.KindProduct, rowstore.RecordOf("id", "p1", "name", "Bolt M6"))
	require.NoError(t, err)

	list, err := svc.Begin().List(ctx, entity.KindProduct)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bolt M6", list[0].Value("name"))
	assert.Equal(t, "2024-05-01T09:00:01.000Z", list[0].Value("createdAt"))
	assert.Equal(t, "2024-05-01T09:00:02.000Z", list[0].Value("updatedAt"))
}

func TestClientCannotRewriteCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())
	scope := svc.Begin()

	_, err := scope.Save(ctx, entity.KindOrder, rowstore.RecordOf("id", "o1", "createdAt", "2023-01-01T00:00:00.000Z"))
	require.NoError(t, err)
	_, err = scope.Save(ctx, entity.KindOrder, rowstore.RecordOf("id", "o1", "createdAt", "2099-01-01T00:00:00.000Z"))
	require.NoError(t, err)

	list, err := scope.List(ctx, entity.KindOrder)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2023-01-01T00:00:00.000Z", list[0].Value("createdAt"))
}

func TestUpdatedAtNeverDecreases(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())
	scope := svc.Begin()

	var previous string
	for i := 0; i < 3; i++ {
		_, err := scope.Save(ctx, entity.KindProduct, rowstore.RecordOf("id", "p1"))
		require.NoError(t, err)
		list, err := scope.List(ctx, entity.KindProduct)
		require.NoError(t, err)
		current := list[0].Value("updatedAt").(string)
		assert.GreaterOrEqual(t, current, previous)
		previous = current
	}
}

func TestNestedFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())
	scope := svc.Begin()

	var body rowstore.Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "o1",
		"materials": [{"code": "M-1", "qty": 2.5}],
		"shipments": [{"date": "2024-05-02", "qty": 10, "note": "first"}]
	}`), &body))

	_, err := scope.Save(ctx, entity.KindOrder, &body)
	require.NoError(t, err)

	list, err := scope.List(ctx, entity.KindOrder)
	require.NoError(t, err)
	require.Len(t, list, 1)

	out, err := json.Marshal(map[string]any{
		"materials": list[0].Value("materials"),
		"shipments": list[0].Value("shipments"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"materials": [{"code": "M-1", "qty": 2.5}],
		"shipments": [{"date": "2024-05-02", "qty": 10, "note": "first"}]
	}`, string(out))
}

func TestDeliveryPlanGetsGeneratedID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())

	res, err := svc.Begin().Save(ctx, entity.KindDeliveryPlan, rowstore.RecordOf("orderId", "o1", "plannedQty", 5))
	require.NoError(t, err)
	assert.Equal(t, "plan-1", res.ID)

	list, err := svc.Begin().List(ctx, entity.KindDeliveryPlan)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "plan-1", list[0].Value("id"))
	assert.Equal(t, "", list[0].Value("note"))
}

func TestDeleteNotFoundIsAResult(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t, rowstore.NewMemoryBackend())

	res, err := svc.Begin().Delete(ctx, entity.KindProduct, "missing")
	require.NoError(t, err)
	assert.Equal(t, dto.DeleteResult{Success: false, Error: "Not found"}, res)
	assert.Empty(t, pub.messages)
}

func TestSyncAllCountsPerKind(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())

	res, err := svc.Begin().SyncAll(ctx, dto.SyncRequest{
		Products:      []*rowstore.Record{rowstore.RecordOf("id", "A"), rowstore.RecordOf("id", "B")},
		Orders:        []*rowstore.Record{},
		DeliveryPlans: []*rowstore.Record{rowstore.RecordOf("id", "C", "orderId", "o1")},
	})
	require.NoError(t, err)
	assert.Equal(t, dto.SyncResult{
		Success: true,
		Synced:  dto.SyncCounts{Products: 2, Orders: 0, DeliveryPlans: 1},
	}, res)

	all, err := svc.Begin().All(ctx)
	require.NoError(t, err)
	require.Len(t, all.Products, 2)
	assert.Equal(t, "A", all.Products[0].Value("id"))
	assert.Equal(t, "B", all.Products[1].Value("id"))
	assert.Empty(t, all.Orders)
	require.Len(t, all.DeliveryPlans, 1)
	assert.Equal(t, "C", all.DeliveryPlans[0].Value("id"))
}

func TestSyncAllStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{MemoryBackend: rowstore.NewMemoryBackend(), appendsLeft: 1}
	svc, _ := newService(t, backend)

	_, err := svc.Begin().SyncAll(ctx, dto.SyncRequest{
		Products: []*rowstore.Record{rowstore.RecordOf("id", "A"), rowstore.RecordOf("id", "B"), rowstore.RecordOf("id", "C")},
	})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindStore, errorbank.From(err).Kind())
	assert.Contains(t, err.Error(), "quota exceeded")

	rows, err := backend.Rows(ctx, entity.ProductsTable)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "the first product stays saved")
}

func TestSyncAllRejectsNullEntries(t *testing.T) {
	svc, _ := newService(t, rowstore.NewMemoryBackend())

	_, err := svc.Begin().SyncAll(context.Background(), dto.SyncRequest{Orders: []*rowstore.Record{nil}})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindMalformedPayload, errorbank.From(err).Kind())
}

func TestScopeEnsuresEachTableOnce(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{MemoryBackend: rowstore.NewMemoryBackend(), appendsLeft: -1}
	svc, _ := newService(t, backend)

	scope := svc.Begin()
	for i := 0; i < 3; i++ {
		_, err := scope.Save(ctx, entity.KindProduct, rowstore.RecordOf("id", "p1"))
		require.NoError(t, err)
	}
	_, err := scope.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.ensures)
}

func TestSetupReportsCreation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, rowstore.NewMemoryBackend())

	first, err := svc.Setup(ctx)
	require.NoError(t, err)
	require.Len(t, first.Sheets, 3)
	for _, sheet := range first.Sheets {
		assert.True(t, sheet.Created, sheet.Name)
	}
	assert.Equal(t, entity.Orders.Headers, first.Sheets[1].Headers)

	second, err := svc.Setup(ctx)
	require.NoError(t, err)
	for _, sheet := range second.Sheets {
		assert.False(t, sheet.Created, sheet.Name)
	}
}

func TestChangeEventsArePublished(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t, rowstore.NewMemoryBackend())
	pub.err = errors.New("broker down")
	scope := svc.Begin()

	_, err := scope.Save(ctx, entity.KindProduct, rowstore.RecordOf("id", "p1"))
	require.NoError(t, err, "publish failures do not fail the save")
	res, err := scope.Delete(ctx, entity.KindProduct, "p1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, pub.messages, 2)
	assert.Equal(t, "product:p1", pub.messages[0].key)
	assert.Equal(t, EventSaved, pub.messages[0].headers[messaging.EventHeader])
	assert.Equal(t, EventSaved, pub.messages[0].value.Event)
	assert.Equal(t, entity.KindProduct, pub.messages[0].value.Kind)
	assert.Equal(t, EventDeleted, pub.messages[1].value.Event)
}

func TestDecodeFallbackKeepsText(t *testing.T) {
	ctx := context.Background()
	backend := rowstore.NewMemoryBackend()
	backend.Put(entity.ProductsTable, [][]any{
		{"id", "code", "name", "unit", "baseQty", "bom", "createdAt", "updatedAt"},
		{"p1", "C", "N", "pcs", 1, "{broken", "", ""},
	})
	svc, _ := newService(t, backend)

	list, err := svc.Begin().List(ctx, entity.KindProduct)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "{broken", list[0].Value("bom"))
}
