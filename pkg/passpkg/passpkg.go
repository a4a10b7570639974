// Package passpkg digests passwords into the 64-bit hash carried on the
// wire.
//
// The protocol's credential field is a single fast non-salted 64-bit hash
// computed on the client; the server only ever compares the digests.
package passpkg

import "hash/fnv"

// Hash returns the FNV-1a 64-bit digest of password.
func Hash(password string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(password))
	return h.Sum64()
}
