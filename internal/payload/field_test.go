package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField(t *testing.T) {
	doc := []byte(`{"name":"magnam","count":3,"ok":true,"tags":["a", "b"],"meta":{"x": 1},"gone":null}`)

	tests := []struct {
		field  string
		want   string
		wantOK bool
	}{
		{"name", "magnam", true},
		{"count", "3", true},
		{"ok", "true", true},
		{"tags", `["a","b"]`, true},
		{"meta", `{"x":1}`, true},
		{"gone", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok, err := Field(doc, tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldRejectsNonObject(t *testing.T) {
	for _, p := range []string{``, `not json`, `[1,2]`, `"str"`} {
		_, _, err := Field([]byte(p), "name")
		assert.Error(t, err, "payload %q", p)
	}
}

func TestFields(t *testing.T) {
	got, err := Fields([]byte(`{"name":"dolor","n":2}`), "name", "n", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "dolor", "n": "2"}, got)
}

func TestJSON(t *testing.T) {
	assert.Equal(t, `{"name":"lorem"}`, string(JSON([]byte(`{"name":"lorem"}`))))
	assert.Equal(t, `"AAE="`, string(JSON([]byte{0, 1})))
	assert.Equal(t, `""`, string(JSON(nil)))
}
