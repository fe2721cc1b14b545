// Package erasure adds Reed-Solomon parity to sealed envelopes.
//
// Every shard carries its own SHA-256 digest, so damaged shards are located
// without external hints and rebuilt from the survivors. With 10 data and 4
// parity shards any 4 shards may be damaged.
//
// Recovery only restores bytes. The envelope digest is still verified by the
// caller afterwards.
package erasure
