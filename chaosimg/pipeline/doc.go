// Package pipeline orchestrates the cipher chain:
//
//	raw → permuted → substituted → masked → embedded? → compressed → hashed
//	verified → decompressed → extracted? → unmasked → unsubstituted → unpermuted → unpadded
//
// Key features:
//   - Tagged results (Result, Status, StageError) instead of panics
//   - Encryption failures return the best intermediate, decryption failures are terminal
//   - Metadata embedding and extraction degrade instead of failing
//   - Explicit Parameters on every call and a configurable MetadataPolicy
//   - SealBatch for independent images on a bounded worker pool
//   - Merkle Manifest committing to the digests of a sealed batch
package pipeline
