package validate_test

import (
	"encoding/json"
	"testing"

	"github.com/kiranshivaraju/demolens/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse_WellFormed(t *testing.T) {
	resp, err := validate.DecodeResponse([]byte(`{"success":true,"data":{"age":28,"gender":"female"}}`))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, json.RawMessage("28"), resp.Data.Age)
	assert.Empty(t, resp.Issues)
	assert.Nil(t, resp.Raw)
}

func TestDecodeResponse_NullDataWithError(t *testing.T) {
	resp, err := validate.DecodeResponse([]byte(`{"success":false,"data":null,"error":"quota exceeded"}`))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "quota exceeded", resp.Error)
	assert.Empty(t, resp.Issues)
}

func TestDecodeResponse_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		path    string
		message string
	}{
		{"data as string", `{"success":true,"data":"age=28;gender=female"}`, "data", "expected object, got string"},
		{"data as array", `{"success":true,"data":[28,"female"]}`, "data", "expected object, got array"},
		{"success as string", `{"success":"true","data":{}}`, "success", "expected boolean, got string"},
		{"success missing", `{"data":{}}`, "success", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := validate.DecodeResponse([]byte(tt.body))
			require.NoError(t, err)

			require.Len(t, resp.Issues, 1)
			assert.Equal(t, tt.path, resp.Issues[0].Path)
			assert.Equal(t, tt.message, resp.Issues[0].Message)
			assert.JSONEq(t, tt.body, string(resp.Raw))
		})
	}
}

func TestDecodeResponse_NonObjectBody(t *testing.T) {
	for _, body := range []string{`{"success":tru`, `[1,2]`, `null`, `"ok"`} {
		_, err := validate.DecodeResponse([]byte(body))
		assert.ErrorIs(t, err, validate.ErrNotEnvelope, body)
	}
}
