package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncRequestSkipsNonArrays(t *testing.T) {
	var req SyncRequest
	require.NoError(t, json.Unmarshal([]byte(`{"products":{"id":"x"},"orders":7,"deliveryPlans":null}`), &req))
	assert.Empty(t, req.Products)
	assert.Empty(t, req.Orders)
	assert.Empty(t, req.DeliveryPlans)

	require.NoError(t, json.Unmarshal([]byte(`{"orders":[{"id":"o1"},null]}`), &req))
	require.Len(t, req.Orders, 2)
	assert.Equal(t, "o1", req.Orders[0].Value("id"))
	assert.Nil(t, req.Orders[1])
}

func TestSyncRequestRejectsNonObjectEntries(t *testing.T) {
	var req SyncRequest
	assert.Error(t, json.Unmarshal([]byte(`{"products":["p1"]}`), &req))
}

func TestSaveResultAlwaysCarriesID(t *testing.T) {
	out, err := json.Marshal(SaveResult{Success: true, ID: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"id":0}`, string(out))

	out, err = json.Marshal(SaveResult{Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"id":null}`, string(out))
}
