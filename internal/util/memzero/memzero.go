// Package memzero wipes key material that has gone out of use.
package memzero

import "runtime"

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// Key zeroes a 32-byte key in place: X25519 halves, symmetric keys and
// shared secrets.
func Key[K ~[32]byte](k *K) {
	*k = K{}
	runtime.KeepAlive(k)
}
