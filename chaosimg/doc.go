// Package chaosimg encrypts pixel grids with a chain of chaotic and
// substitution stages and packages the result for storage or transport.
//
// The chain is an Arnold Cat Map permutation, an AES S-box substitution and
// a logistic-map keystream XOR. Sealed grids are compressed, hashed with
// SHA-256 and framed in a self-describing envelope, optionally protected by
// Reed-Solomon parity. Metadata describing the run can be hidden in the low
// bits of the ciphertext.
//
// Subpackages expose each stage on its own; Codec ties them together for
// the common stream-in, stream-out case.
package chaosimg
