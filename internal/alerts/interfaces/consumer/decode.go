package consumer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	alerts "signal-alerts/internal/alerts/domain"

	"github.com/google/uuid"
)

var (
	// ErrMalformed marks a message that failed both decoding attempts.
	ErrMalformed = errors.New("consumer: malformed message")
	// ErrNilSignal marks a message addressed to the nil signal id.
	ErrNilSignal = errors.New("consumer: nil signal id")
)

// utf8BOM is the byte order mark some producers prepend to text payloads.
const utf8BOM = "\ufeff"

const padding = "\x00 \t\r\n" + utf8BOM

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

type wireReading struct {
	SignalID  string   `json:"signalId"`
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp"`
}

// Decode parses a queue message. Keys match case-insensitively. When the raw body
// does not decode, one retry runs on a sanitized copy. A missing timestamp is
// replaced by received.
func Decode(body []byte, received time.Time) (alerts.Reading, error) {
	reading, err := decodeStrict(body, received)
	if err == nil || errors.Is(err, ErrNilSignal) {
		return reading, err
	}
	sanitized, ok := sanitize(body)
	if !ok {
		return alerts.Reading{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	reading, retryErr := decodeStrict(sanitized, received)
	if retryErr == nil || errors.Is(retryErr, ErrNilSignal) {
		return reading, retryErr
	}
	return alerts.Reading{}, fmt.Errorf("%w: %v", ErrMalformed, retryErr)
}

func decodeStrict(body []byte, received time.Time) (alerts.Reading, error) {
	var wire wireReading
	if err := json.Unmarshal(body, &wire); err != nil {
		return alerts.Reading{}, err
	}
	if wire.Value == nil {
		return alerts.Reading{}, errors.New("missing value")
	}
	signalID, err := uuid.Parse(strings.TrimSpace(wire.SignalID))
	if err != nil {
		return alerts.Reading{}, fmt.Errorf("signal id: %w", err)
	}
	if signalID == uuid.Nil {
		return alerts.Reading{}, ErrNilSignal
	}
	ts := received.UTC()
	if raw := strings.TrimSpace(wire.Timestamp); raw != "" {
		ts, err = parseTimestamp(raw)
		if err != nil {
			return alerts.Reading{}, err
		}
	}
	return alerts.Reading{SignalID: signalID, Value: *wire.Value, Timestamp: ts}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not ISO-8601", raw)
}

// sanitize drops invalid UTF-8, trims BOM, NUL and whitespace padding and unwraps
// one level of JSON string quoting. ok is false when nothing changed.
func sanitize(body []byte) ([]byte, bool) {
	text := strings.Trim(strings.ToValidUTF8(string(body), ""), padding)
	if strings.HasPrefix(text, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			text = strings.Trim(inner, padding)
		}
	}
	out := []byte(text)
	return out, !bytes.Equal(out, body)
}
