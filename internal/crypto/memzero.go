package crypto

import "runtime"

// Wipe zeroes every buffer passed. It is best-effort: copies the runtime
// made earlier are out of reach.
//
//go:noinline
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
	runtime.KeepAlive(bufs)
}
