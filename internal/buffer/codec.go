package buffer

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeCodec serializes and deserializes envelopes for disk storage.
// Envelope wire formats are out of scope for this module (spec.md §1
// Non-goals); callers of the disk backend supply whatever codec matches
// their own envelope representation. rawEnvelope below is the default used
// when no codec is supplied, sufficient for tests and for the demo
// forwarding loop in cmd/envelope-relay.
type EnvelopeCodec interface {
	Encode(e Envelope) ([]byte, error)
	Decode(ownKey, samplingKey ProjectKey, receivedAt time.Time, size int, payload []byte) (Envelope, error)
}

// rawEnvelope is a self-contained Envelope implementation used by the
// default JSON codec: it carries its own fields rather than deferring to
// an outer envelope type, since the store only ever hands back what it was
// given.
type rawEnvelope struct {
	own        ProjectKey
	sampling   ProjectKey
	hasSampling bool
	receivedAt time.Time
	size       int
	body       []byte
}

func (e *rawEnvelope) ReceivedAt() time.Time    { return e.receivedAt }
func (e *rawEnvelope) OwnProjectKey() ProjectKey { return e.own }
func (e *rawEnvelope) SamplingProjectKey() (ProjectKey, bool) {
	if !e.hasSampling {
		return "", false
	}
	return e.sampling, true
}
func (e *rawEnvelope) Size() int { return e.size }

// Body returns the raw payload, for codecs or forwarding loops that need
// the bytes back out.
func (e *rawEnvelope) Body() []byte { return e.body }

// NewRawEnvelope builds a rawEnvelope, the concrete Envelope used by
// JSONCodec and by tests that don't need a richer envelope type.
func NewRawEnvelope(own ProjectKey, sampling ProjectKey, hasSampling bool, receivedAt time.Time, body []byte) Envelope {
	return &rawEnvelope{
		own:         own,
		sampling:    sampling,
		hasSampling: hasSampling,
		receivedAt:  receivedAt,
		size:        len(body),
		body:        body,
	}
}

// JSONCodec encodes an Envelope's body as an opaque JSON string. It expects
// envelopes passed to Encode to provide a Body() []byte method (rawEnvelope
// does); anything else is rejected.
type JSONCodec struct{}

type jsonPayload struct {
	Body []byte `json:"body"`
}

func (JSONCodec) Encode(e Envelope) ([]byte, error) {
	bodied, ok := e.(interface{ Body() []byte })
	if !ok {
		return nil, fmt.Errorf("buffer: envelope %T has no Body() for JSONCodec", e)
	}
	return json.Marshal(jsonPayload{Body: bodied.Body()})
}

func (JSONCodec) Decode(ownKey, samplingKey ProjectKey, receivedAt time.Time, size int, payload []byte) (Envelope, error) {
	var p jsonPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("buffer: decode envelope: %w", err)
	}
	hasSampling := samplingKey != "" && samplingKey != ownKey
	return NewRawEnvelope(ownKey, samplingKey, hasSampling, receivedAt, p.Body), nil
}
