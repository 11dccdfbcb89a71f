// Package dispatch maps action names from the HTTP surface onto record
// operations.
package dispatch

import "github.com/Additional-Code/tabula/pkg/errorbank"

// Action is one supported operation.
type Action int

const (
	actionUnknown Action = iota

	GetProducts
	GetOrders
	GetDeliveryPlans
	GetAll
	SyncAllQuery

	SaveProduct
	SaveOrder
	SaveDeliveryPlan
	DeleteProduct
	DeleteOrder
	DeleteDeliveryPlan
	SyncAll
)

var readActions = map[string]Action{
	"getProducts":      GetProducts,
	"getOrders":        GetOrders,
	"getDeliveryPlans": GetDeliveryPlans,
	"getAll":           GetAll,
	"syncAll":          SyncAllQuery,
}

var writeActions = map[string]Action{
	"saveProduct":        SaveProduct,
	"saveOrder":          SaveOrder,
	"saveDeliveryPlan":   SaveDeliveryPlan,
	"deleteProduct":      DeleteProduct,
	"deleteOrder":        DeleteOrder,
	"deleteDeliveryPlan": DeleteDeliveryPlan,
	"syncAll":            SyncAll,
}

// ParseRead resolves an action sent with GET.
func ParseRead(name string) (Action, error) {
	if a, ok := readActions[name]; ok {
		return a, nil
	}
	return actionUnknown, errorbank.InvalidAction(errorbank.WithDetail("action", name))
}

// ParseWrite resolves an action sent with POST.
func ParseWrite(name string) (Action, error) {
	if a, ok := writeActions[name]; ok {
		return a, nil
	}
	return actionUnknown, errorbank.InvalidAction(errorbank.WithDetail("action", name))
}

// String returns the wire name.
func (a Action) String() string {
	switch a {
	case GetProducts:
		return "getProducts"
	case GetOrders:
		return "getOrders"
	case GetDeliveryPlans:
		return "getDeliveryPlans"
	case GetAll:
		return "getAll"
	case SyncAllQuery, SyncAll:
		return "syncAll"
	case SaveProduct:
		return "saveProduct"
	case SaveOrder:
		return "saveOrder"
	case SaveDeliveryPlan:
		return "saveDeliveryPlan"
	case DeleteProduct:
		return "deleteProduct"
	case DeleteOrder:
		return "deleteOrder"
	case DeleteDeliveryPlan:
		return "deleteDeliveryPlan"
	default:
		return "unknown"
	}
}

// IsRead reports whether a is served on GET.
func (a Action) IsRead() bool {
	return a >= GetProducts && a <= SyncAllQuery
}
