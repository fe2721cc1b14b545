// Package container frames a sealed grid as a self-describing binary
// envelope.
//
// The header is never compressed, so a reader learns the codec, element
// width and grid shape before touching the payload. Optional Reed-Solomon
// parity lets the envelope survive damaged storage; see package erasure.
package container
