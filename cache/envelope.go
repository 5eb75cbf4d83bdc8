package cache

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/teranos/courier/errors"
)

// CompressionThreshold is the JSON size in bytes above which values are
// gzipped when the caller does not choose explicitly.
const CompressionThreshold = 1000

// timestampLayout matches JavaScript's Date.toISOString so envelopes written
// by other services stay byte-compatible.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is what is physically stored at a cache key.
//
// Compressed is true iff Data is base64(gzip(JSON(value))); otherwise Data
// is the JSON text itself.
type Envelope struct {
	Data       string `json:"data"`
	Compressed bool   `json:"compressed"`
	Timestamp  string `json:"timestamp"`
}

// encodeEnvelope serializes value and wraps it. compress nil means "decide by size".
func encodeEnvelope(value any, compress *bool, now time.Time) ([]byte, error) {
	payload, err := marshalJSON(value)
	if err != nil {
		return nil, errors.Wrap(err, "marshal cache value")
	}

	shouldCompress := len(payload) > CompressionThreshold
	if compress != nil {
		shouldCompress = *compress
	}

	env := Envelope{
		Data:       string(payload),
		Compressed: shouldCompress,
		Timestamp:  now.UTC().Format(timestampLayout),
	}
	if shouldCompress {
		zipped, err := gzipBytes(payload)
		if err != nil {
			return nil, err
		}
		env.Data = base64.StdEncoding.EncodeToString(zipped)
	}

	out, err := marshalJSON(env)
	if err != nil {
		return nil, errors.Wrap(err, "marshal cache envelope")
	}
	return out, nil
}

// decodeStored turns stored content back into the value's JSON. Content that
// is not an envelope is returned verbatim; non-JSON legacy text comes back
// as a JSON string.
func decodeStored(raw []byte) (json.RawMessage, error) {
	env, ok := parseEnvelope(raw)
	if !ok {
		if json.Valid(raw) {
			return json.RawMessage(raw), nil
		}
		quoted, err := marshalJSON(string(raw))
		if err != nil {
			return nil, errors.Wrap(err, "quote legacy cache value")
		}
		return quoted, nil
	}

	if !env.Compressed {
		if !json.Valid([]byte(env.Data)) {
			return nil, errors.New("envelope data is not valid JSON")
		}
		return json.RawMessage(env.Data), nil
	}

	zipped, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decode envelope base64")
	}
	payload, err := gunzipBytes(zipped)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, errors.New("decompressed envelope data is not valid JSON")
	}
	return json.RawMessage(payload), nil
}

// parseEnvelope reports whether raw has the envelope shape: a JSON object
// with a string "data" and a boolean "compressed".
func parseEnvelope(raw []byte) (Envelope, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, false
	}

	var env Envelope
	data, hasData := fields["data"]
	compressed, hasCompressed := fields["compressed"]
	if !hasData || !hasCompressed {
		return Envelope{}, false
	}
	if err := json.Unmarshal(data, &env.Data); err != nil {
		return Envelope{}, false
	}
	if err := json.Unmarshal(compressed, &env.Compressed); err != nil {
		return Envelope{}, false
	}
	if ts, ok := fields["timestamp"]; ok {
		_ = json.Unmarshal(ts, &env.Timestamp)
	}
	return env, true
}

// marshalJSON is json.Marshal without HTML escaping, so '<', '>' and '&'
// are stored as written and count as one byte toward the threshold.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "gzip cache value")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "flush gzip writer")
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open gzip reader")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "gunzip cache value")
	}
	return out, nil
}
