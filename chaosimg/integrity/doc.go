// Package integrity moves a grid through compress, hash, verify and
// decompress.
//
// Key features:
//   - Deterministic compression: zlib (level 7 by default), zstd, LZ4 with pooled writers, LZMA
//   - SHA-256 digests over the compressed bytes, hex encoded
//   - Constant-time digest comparison
//   - Size-checked decompression: any mismatch is reported as ErrCorruption
//
// Verification is local. Nothing here authenticates the sender.
package integrity
