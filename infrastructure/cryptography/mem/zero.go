// Package mem wipes key material that is no longer needed.
package mem

import "runtime"

// ZeroBytes overwrites b with zeros. Copies made earlier by the runtime
// are not reached.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	clear(b)
	// keeps the stores from being eliminated
	runtime.KeepAlive(b)
}
