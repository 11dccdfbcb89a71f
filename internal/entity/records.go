package entity

import (
	"encoding/json"

	"github.com/Additional-Code/tabula/internal/rowstore"
)

// BOMLine is one component of a product's bill of materials.
type BOMLine struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Qty  float64 `json:"qty"`
	Unit string  `json:"unit,omitempty"`
}

// Product is a finished good made by a subcontractor.
type Product struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	BaseQty   float64   `json:"baseQty"`
	BOM       []BOMLine `json:"bom"`
	CreatedAt string    `json:"createdAt,omitempty"`
	UpdatedAt string    `json:"updatedAt,omitempty"`
}

// MaterialLine is material issued to a subcontractor for an order.
type MaterialLine struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Qty      float64 `json:"qty"`
	IssuedAt string  `json:"issuedAt,omitempty"`
}

// Shipment is a partial delivery received back from the subcontractor.
type Shipment struct {
	Date string  `json:"date"`
	Qty  float64 `json:"qty"`
	Note string  `json:"note,omitempty"`
}

// Order is a subcontracting order for a product.
type Order struct {
	ID             string         `json:"id"`
	OrderNo        string         `json:"orderNo"`
	ProductID      string         `json:"productId"`
	ProductName    string         `json:"productName"`
	ProductUnit    string         `json:"productUnit"`
	Qty            float64        `json:"qty"`
	Subcontractor  string         `json:"subcontractor"`
	DueDate        string         `json:"dueDate"`
	Status         string         `json:"status"`
	ReceivedQty    float64        `json:"receivedQty"`
	OutstandingQty float64        `json:"outstandingQty"`
	Materials      []MaterialLine `json:"materials"`
	Shipments      []Shipment     `json:"shipments"`
	CreatedAt      string         `json:"createdAt,omitempty"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`
}

// DeliveryPlan schedules a delivery quantity for an order.
type DeliveryPlan struct {
	ID          string  `json:"id,omitempty"`
	OrderID     string  `json:"orderId"`
	OrderNo     string  `json:"orderNo"`
	PlannedDate string  `json:"plannedDate"`
	PlannedQty  float64 `json:"plannedQty"`
	Note        string  `json:"note"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

// ToRecord converts a typed entity into a record keeping its field order.
func ToRecord(v any) (*rowstore.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	rec := rowstore.NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
