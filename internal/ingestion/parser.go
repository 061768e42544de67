package ingestion

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonPayload is the wire shape every default transport parser expects:
// a flat JSON object naming the metric, value, and reading timestamp.
type jsonPayload struct {
	Metric string         `json:"metric"`
	Value  float64        `json:"value"`
	TS     time.Time      `json:"ts"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// JSONParser implements Parser against the jsonPayload wire shape. It
// is shared by all four default transports; a protocol-native parser
// (MQTT Sparkplug B, OPC-UA binary, …) can replace it per-adapter.
type JSONParser struct{}

func (JSONParser) Parse(payload []byte) (metric string, value float64, ts time.Time, attrs map[string]any, err error) {
	var p jsonPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", 0, time.Time{}, nil, fmt.Errorf("invalid telemetry payload: %w", err)
	}
	if p.Metric == "" {
		return "", 0, time.Time{}, nil, fmt.Errorf("payload missing metric name")
	}
	if p.TS.IsZero() {
		p.TS = time.Now().UTC()
	}
	return p.Metric, p.Value, p.TS.UTC(), p.Attrs, nil
}
