// Package export publishes dashboard snapshots to Kafka.
package export

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"flowboard/internal/dashboard"
)

// MetricsSchema is the Avro schema of a published snapshot.
const MetricsSchema = `{
  "type": "record",
  "name": "DashboardMetricsEvent",
  "namespace": "flowboard",
  "fields": [
    {"name": "tenant_id", "type": "string"},
    {"name": "range", "type": "string"},
    {"name": "generated_at_ms", "type": "long"},
    {"name": "total_executions", "type": "int"},
    {"name": "success_rate", "type": "double"},
    {"name": "error_count", "type": "int"},
    {"name": "avg_duration_seconds", "type": "double"},
    {"name": "running_count", "type": "int"}
  ]
}`

const magicByte byte = 0x00

// Event is the exported form of a snapshot.
type Event struct {
	TenantID           string
	Range              string
	GeneratedAtMillis  int64
	TotalExecutions    int
	SuccessRate        float64
	ErrorCount         int
	AvgDurationSeconds float64
	RunningCount       int
}

// NewEvent extracts the headline metrics of snap.
func NewEvent(snap *dashboard.Snapshot) Event {
	return Event{
		TenantID:           snap.TenantID,
		Range:              string(snap.Range),
		GeneratedAtMillis:  snap.FetchedAt.UnixMilli(),
		TotalExecutions:    snap.Metrics.TotalExecutions,
		SuccessRate:        snap.Metrics.SuccessRate,
		ErrorCount:         snap.Metrics.ErrorCount,
		AvgDurationSeconds: snap.Metrics.AvgDurationSeconds,
		RunningCount:       snap.Metrics.RunningCount,
	}
}

func (e Event) native() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":            e.TenantID,
		"range":                e.Range,
		"generated_at_ms":      e.GeneratedAtMillis,
		"total_executions":     int32(e.TotalExecutions),
		"success_rate":         e.SuccessRate,
		"error_count":          int32(e.ErrorCount),
		"avg_duration_seconds": e.AvgDurationSeconds,
		"running_count":        int32(e.RunningCount),
	}
}

// NewCodec compiles MetricsSchema.
func NewCodec() (*goavro.Codec, error) {
	codec, err := goavro.NewCodec(MetricsSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create AVRO codec: %w", err)
	}
	return codec, nil
}

// Encode renders e in Confluent wire format: magic byte, 4-byte big-endian
// schema id, Avro binary body.
func Encode(codec *goavro.Codec, schemaID int, e Event) ([]byte, error) {
	body, err := codec.BinaryFromNative(nil, e.native())
	if err != nil {
		return nil, fmt.Errorf("failed to encode AVRO binary: %w", err)
	}
	out := make([]byte, 5, 5+len(body))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:5], uint32(schemaID))
	return append(out, body...), nil
}

// Decode parses a Confluent framed message produced by Encode.
func Decode(codec *goavro.Codec, data []byte) (Event, int, error) {
	if len(data) < 5 || data[0] != magicByte {
		return Event{}, 0, errors.New("not a schema registry framed message")
	}
	schemaID := int(binary.BigEndian.Uint32(data[1:5]))
	native, _, err := codec.NativeFromBinary(data[5:])
	if err != nil {
		return Event{}, schemaID, fmt.Errorf("failed to decode AVRO binary: %w", err)
	}
	m, ok := native.(map[string]interface{})
	if !ok {
		return Event{}, schemaID, fmt.Errorf("unexpected AVRO datum %T", native)
	}
	e := Event{
		TenantID:           asString(m["tenant_id"]),
		Range:              asString(m["range"]),
		GeneratedAtMillis:  asInt64(m["generated_at_ms"]),
		TotalExecutions:    int(asInt64(m["total_executions"])),
		SuccessRate:        asFloat(m["success_rate"]),
		ErrorCount:         int(asInt64(m["error_count"])),
		AvgDurationSeconds: asFloat(m["avg_duration_seconds"]),
		RunningCount:       int(asInt64(m["running_count"])),
	}
	return e, schemaID, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
