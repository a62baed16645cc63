package crypto

import "runtime"

// SecureZero overwrites b with zeros.
func SecureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
