package tracing

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"

	"go.opentelemetry.io/otel/trace"
)

// IDGenerator produces W3C-compatible trace and span ids.
type IDGenerator interface {
	NewTraceID() trace.TraceID
	NewSpanID() trace.SpanID
}

type randomIDGenerator struct{}

func (randomIDGenerator) NewTraceID() trace.TraceID {
	var id trace.TraceID
	for !id.IsValid() {
		fill(id[:])
	}
	return id
}

func (randomIDGenerator) NewSpanID() trace.SpanID {
	var id trace.SpanID
	for !id.IsValid() {
		fill(id[:])
	}
	return id
}

func fill(b []byte) {
	if _, err := rand.Read(b); err == nil {
		return
	}
	for i := 0; i < len(b); i += 8 {
		var chunk [8]byte
		binary.LittleEndian.PutUint64(chunk[:], mrand.Uint64())
		copy(b[i:], chunk[:])
	}
}
