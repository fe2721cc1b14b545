package erasure

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// MaxShards is the largest data+parity count a shard index byte can carry.
const MaxShards = 255

var (
	ErrTooManyLost   = errors.New("erasure: too many shards damaged, cannot recover")
	ErrInvalidConfig = errors.New("erasure: invalid data/parity configuration")
	ErrEmpty         = errors.New("erasure: nothing to protect")
	ErrLayout        = errors.New("erasure: shard layout does not match codec")
)

// Codec protects a byte payload with Reed-Solomon parity.
type Codec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

// NewCodec creates a codec that survives the loss of any parityShards of
// the dataShards+parityShards shards it produces.
func NewCodec(dataShards, parityShards int) (*Codec, error) {
	if dataShards <= 0 || parityShards <= 0 || dataShards+parityShards > MaxShards {
		return nil, fmt.Errorf("%w: %d+%d", ErrInvalidConfig, dataShards, parityShards)
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, dataShards: dataShards, parityShards: parityShards}, nil
}

func (c *Codec) DataShards() int   { return c.dataShards }
func (c *Codec) ParityShards() int { return c.parityShards }
func (c *Codec) TotalShards() int  { return c.dataShards + c.parityShards }

// ShardSize returns the size of each shard for a payload of size bytes.
func (c *Codec) ShardSize(size int) int {
	return (size + c.dataShards - 1) / c.dataShards
}

// Overhead returns the storage overhead ratio, e.g. 1.4 for 10+4.
func (c *Codec) Overhead() float64 {
	return float64(c.TotalShards()) / float64(c.dataShards)
}

// Shards is a protected payload. Digests[i] is the SHA-256 of Shards[i] as
// produced; Size is the payload length before padding.
type Shards struct {
	Shards  [][]byte
	Digests [][sha256.Size]byte
	Size    int
}

// Protect splits payload into data shards, computes parity and hashes
// every shard.
func (c *Codec) Protect(payload []byte) (*Shards, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}
	// Split may reuse payload's backing array
	shards, err := c.enc.Split(bytes.Clone(payload))
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, err
	}
	digests := make([][sha256.Size]byte, len(shards))
	for i, s := range shards {
		digests[i] = sha256.Sum256(s)
	}
	return &Shards{Shards: shards, Digests: digests, Size: len(payload)}, nil
}

// Recover discards every shard whose digest no longer matches, rebuilds
// them from the survivors and returns the joined payload together with the
// indices that had to be rebuilt.
func (c *Codec) Recover(s *Shards) ([]byte, []int, error) {
	if len(s.Shards) != c.TotalShards() || len(s.Digests) != c.TotalShards() {
		return nil, nil, fmt.Errorf("%w: %d shards, %d digests, want %d",
			ErrLayout, len(s.Shards), len(s.Digests), c.TotalShards())
	}
	shardSize := c.ShardSize(s.Size)
	shards := make([][]byte, len(s.Shards))
	var damaged []int
	for i, sh := range s.Shards {
		if len(sh) != shardSize || sha256.Sum256(sh) != s.Digests[i] {
			damaged = append(damaged, i)
			continue
		}
		shards[i] = sh
	}
	if len(damaged) > 0 {
		if err := c.enc.ReconstructData(shards); err != nil {
			if errors.Is(err, reedsolomon.ErrTooFewShards) {
				return nil, damaged, fmt.Errorf("%w: %d of %d shards damaged", ErrTooManyLost, len(damaged), len(shards))
			}
			return nil, damaged, err
		}
	}
	out := make([]byte, 0, s.Size)
	for i := 0; i < c.dataShards && len(out) < s.Size; i++ {
		remaining := s.Size - len(out)
		if remaining >= len(shards[i]) {
			out = append(out, shards[i]...)
		} else {
			out = append(out, shards[i][:remaining]...)
		}
	}
	return out, damaged, nil
}
