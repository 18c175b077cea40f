package buffer

import "time"

// Envelope is the unit of buffering. The core treats it as opaque beyond the
// accessors below; parsing, routing and forwarding all happen outside
// this package.
type Envelope interface {
	// ReceivedAt is the immutable time the relay accepted the envelope.
	ReceivedAt() time.Time
	// OwnProjectKey is the tenant project the envelope belongs to.
	OwnProjectKey() ProjectKey
	// SamplingProjectKey is the project that owns the trace-sampling
	// decision for this envelope, if different from OwnProjectKey.
	SamplingProjectKey() (ProjectKey, bool)
	// Size is the body size in bytes, reported only for metrics.
	Size() int
}
