package huggingface

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLabels(t *testing.T) {
	nested := json.RawMessage(`[[{"label":"positive","score":0.7},{"label":"negative","score":0.1},{"label":"neutral","score":0.2}]]`)
	labels, err := DecodeLabels(nested)
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.Equal(t, "positive", labels[0].Label)
	assert.InDelta(t, 0.7, labels[0].Score, 0.0001)

	flat := json.RawMessage(`[{"label":"neutral","score":0.8}]`)
	labels, err = DecodeLabels(flat)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "neutral", labels[0].Label)

	labels, err = DecodeLabels(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, labels)

	_, err = DecodeLabels(json.RawMessage(`{"label":"x"}`))
	assert.Error(t, err)
}

func TestDecodeTokens(t *testing.T) {
	raw := json.RawMessage(`[
		{"entity":"B-ORG","word":"Acme","score":0.99,"start":0,"end":4},
		{"entity_group":"LOC","word":"Ohio","score":0.98,"start":10,"end":14}
	]`)
	tokens, err := DecodeTokens(raw)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "B-ORG", tokens[0].Tag())
	assert.Equal(t, "LOC", tokens[1].Tag())
	assert.Equal(t, 10, tokens[1].Start)

	_, err = DecodeTokens(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"summary list", `[{"summary_text":"Revenue rose."}]`, "Revenue rose.", false},
		{"generated list", `[{"generated_text":"1. Litigation"}]`, "1. Litigation", false},
		{"single object", `{"generated_text":"ok"}`, "ok", false},
		{"empty list", `[]`, "", false},
		{"wrong shape", `42`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
