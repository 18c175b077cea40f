// Package memcheck estimates the current process's resident memory use for
// admission control in the in-memory stack provider.
//
// No third-party library in the reference corpus exposes process memory
// statistics (the corpus's dependencies are database drivers, HTTP
// routers, a websocket library, and a YAML parser — none touch the
// runtime). runtime.MemStats is the standard library's own idiomatic
// vehicle for this and is used directly rather than inventing or vendoring
// a dependency for it.
package memcheck

import "runtime"

// Checker reports an estimate of the process's current memory footprint.
type Checker interface {
	// UsedBytes returns an estimate of bytes currently held by the Go
	// heap, used as a proxy for overall process memory pressure.
	UsedBytes() uint64
}

// RuntimeChecker implements Checker using runtime.ReadMemStats.
type RuntimeChecker struct{}

// NewRuntimeChecker returns the default Checker.
func NewRuntimeChecker() RuntimeChecker { return RuntimeChecker{} }

func (RuntimeChecker) UsedBytes() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Static checker, used by tests and by capacity checks that want a fixed
// reading instead of sampling the live process.
type StaticChecker uint64

func (c StaticChecker) UsedBytes() uint64 { return uint64(c) }
