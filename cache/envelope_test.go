package cache

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelopeTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("CET", 3600))

	out, err := encodeEnvelope(map[string]int{"a": 1}, nil, now)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, "2026-03-01T11:30:45.123Z", env.Timestamp)
	assert.Equal(t, `{"a":1}`, env.Data)
	assert.False(t, env.Compressed)
}

func TestParseEnvelopeShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"full envelope", `{"data":"1","compressed":false,"timestamp":"t"}`, true},
		{"no timestamp", `{"data":"1","compressed":true}`, true},
		{"missing compressed", `{"data":"1"}`, false},
		{"data not a string", `{"data":1,"compressed":false}`, false},
		{"compressed not a bool", `{"data":"1","compressed":"yes"}`, false},
		{"array", `[1,2]`, false},
		{"not json", `plain`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseEnvelope([]byte(tt.raw))
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDecodeStoredRejectsInvalidData(t *testing.T) {
	_, err := decodeStored([]byte(`{"data":"{broken","compressed":false}`))
	assert.Error(t, err)

	_, err = decodeStored([]byte(`{"data":"bm90IGd6aXA=","compressed":true}`))
	assert.Error(t, err)
}

func TestEncodeEnvelopeKeepsHTMLCharacters(t *testing.T) {
	// 802 bytes as written; escaped as \u003c and \u0026 it would be ~4800.
	value := strings.Repeat("<", 400) + strings.Repeat("&", 400)

	out, err := encodeEnvelope(value, nil, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(out), `\u003c`)
	assert.NotContains(t, string(out), `\u0026`)

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.False(t, env.Compressed, "threshold counts raw bytes")
	assert.Equal(t, `"`+value+`"`, env.Data)

	out, err = encodeEnvelope(map[string]string{"html": "<b>a & b</b>"}, nil, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(out), `<b>a & b</b>`)
	assert.NotContains(t, string(out), "\n")
}

func TestDecodeStoredQuotesLegacyTextVerbatim(t *testing.T) {
	got, err := decodeStored([]byte("<html> & more"))
	require.NoError(t, err)
	assert.Equal(t, `"<html> & more"`, string(got))
}
