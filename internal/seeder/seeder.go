package seeder

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/entity"
	"github.com/Additional-Code/tabula/internal/service/records"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder writes sample records for local/dev setups.
type Seeder struct {
	svc    *records.Service
	logger *zap.Logger
}

// New constructs a Seeder on top of the record service.
func New(svc *records.Service, logger *zap.Logger) *Seeder {
	return &Seeder{svc: svc, logger: logger}
}

type sample struct {
	kind  entity.Kind
	value any
}

// samples returns one linked product, order and delivery plan. Fixed ids keep
// repeated seeding from adding rows.
func samples() []sample {
	return []sample{
		{entity.KindProduct, entity.Product{
			ID: "PRD-SEED-1", Code: "BRK-100", Name: "Brake bracket", Unit: "pcs", BaseQty: 1,
			BOM: []entity.BOMLine{
				{Code: "STL-2MM", Name: "Steel sheet 2mm", Qty: 0.4, Unit: "kg"},
				{Code: "BLT-M6", Name: "Bolt M6", Qty: 2, Unit: "pcs"},
			},
		}},
		{entity.KindOrder, entity.Order{
			ID: "ORD-SEED-1", OrderNo: "SC-0001", ProductID: "PRD-SEED-1",
			ProductName: "Brake bracket", ProductUnit: "pcs", Qty: 500,
			Subcontractor: "Sample Metalworks", DueDate: "2024-06-30", Status: "in_progress",
			ReceivedQty: 120, OutstandingQty: 380,
			Materials: []entity.MaterialLine{{Code: "STL-2MM", Name: "Steel sheet 2mm", Qty: 200, IssuedAt: "2024-05-02"}},
			Shipments: []entity.Shipment{{Date: "2024-05-20", Qty: 120}},
		}},
		{entity.KindDeliveryPlan, entity.DeliveryPlan{
			ID: "PLAN-SEED-1", OrderID: "ORD-SEED-1", OrderNo: "SC-0001",
			PlannedDate: "2024-06-15", PlannedQty: 200, Note: "second batch",
		}},
	}
}

// Records creates the sheets if needed and saves the sample records.
func (s *Seeder) Records(ctx context.Context) (int, error) {
	if _, err := s.svc.Setup(ctx); err != nil {
		return 0, err
	}

	scope := s.svc.Begin()
	seeds := samples()
	for _, smp := range seeds {
		rec, err := entity.ToRecord(smp.value)
		if err != nil {
			return 0, fmt.Errorf("seed %s: %w", smp.kind, err)
		}
		if _, err := scope.Save(ctx, smp.kind, rec); err != nil {
			return 0, fmt.Errorf("seed %s: %w", smp.kind, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded records", zap.Int("count", len(seeds)))
	}
	return len(seeds), nil
}
