package rowstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsKeyOrder(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"alpha":"a","mid":{"b":2,"a":1}}`), &rec))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, rec.Keys())
	assert.Equal(t, json.Number("1"), rec.Value("zeta"))

	out, err := json.Marshal(&rec)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"a","mid":{"a":1,"b":2}}`, string(out))
}

func TestRecordSetKeepsOriginalPosition(t *testing.T) {
	rec := RecordOf("id", "p1", "name", "Bolt")
	rec.Set("id", "p2")
	rec.Set("unit", "pcs")

	assert.Equal(t, []string{"id", "name", "unit"}, rec.Keys())
	assert.Equal(t, "p2", rec.Value("id"))
	assert.Equal(t, 3, rec.Len())
}

func TestRecordRejectsNonObjects(t *testing.T) {
	var rec Record
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &rec))
}

func TestRecordDoesNotEscapeHTML(t *testing.T) {
	rec := RecordOf("note", "<a&b>")
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"note":"<a&b>"}`, string(out))
}

func TestRecordSlicesDecode(t *testing.T) {
	var payload struct {
		Products []*Record `json:"products"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"products":[{"id":"a"},{"id":"b"}]}`), &payload))
	require.Len(t, payload.Products, 2)
	assert.Equal(t, "b", payload.Products[1].Value("id"))
}

func TestRecordCloneIsIndependent(t *testing.T) {
	rec := RecordOf("id", "x")
	clone := rec.Clone()
	clone.Set("id", "y")
	assert.Equal(t, "x", rec.Value("id"))
}

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON(`[{"code":"C-1","qty":2}]`)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"code": "C-1", "qty": json.Number("2")}}, v)

	_, err = DecodeJSON(`[1]]`)
	assert.Error(t, err)

	_, err = DecodeJSON(`not json`)
	assert.Error(t, err)
}
