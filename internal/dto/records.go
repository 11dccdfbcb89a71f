package dto

import (
	"bytes"
	"encoding/json"

	"github.com/Additional-Code/tabula/internal/rowstore"
)

// SaveResult is returned by every save action. ID echoes the stored id as
// sent, including falsy values; it is null only when the record had none.
type SaveResult struct {
	Success bool `json:"success"`
	ID      any  `json:"id"`
}

// DeleteResult is returned by delete actions. A missing id is reported here
// rather than as an error.
type DeleteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DeleteRequest is the body of a delete action.
type DeleteRequest struct {
	ID any `json:"id"`
}

// SyncRequest carries records to save in bulk. Every list is optional.
type SyncRequest struct {
	Products      RecordList `json:"products"`
	Orders        RecordList `json:"orders"`
	DeliveryPlans RecordList `json:"deliveryPlans"`
}

// RecordList is one syncAll batch. A value that is not a JSON array decodes
// as an empty batch and is skipped; entries inside an array must be objects
// or null.
type RecordList []*rowstore.Record

// UnmarshalJSON implements json.Unmarshaler.
func (l *RecordList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		*l = nil
		return nil
	}
	var records []*rowstore.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return err
	}
	*l = records
	return nil
}

// SyncCounts counts saved records per kind.
type SyncCounts struct {
	Products      int `json:"products"`
	Orders        int `json:"orders"`
	DeliveryPlans int `json:"deliveryPlans"`
}

// SyncResult is returned by syncAll.
type SyncResult struct {
	Success bool       `json:"success"`
	Synced  SyncCounts `json:"synced"`
}

// Collections is the getAll payload.
type Collections struct {
	Products      []*rowstore.Record `json:"products"`
	Orders        []*rowstore.Record `json:"orders"`
	DeliveryPlans []*rowstore.Record `json:"deliveryPlans"`
}

// ErrorResponse is the envelope for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SetupResult lists what setup did per sheet.
type SetupResult struct {
	Sheets []SheetStatus `json:"sheets"`
}

// SheetStatus reports whether setup created a sheet or found it.
type SheetStatus struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers"`
	Created bool     `json:"created"`
}
