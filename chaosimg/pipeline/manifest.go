package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrManifestEmpty = errors.New("pipeline: manifest has no entries")
	ErrProofIndex    = errors.New("pipeline: manifest index out of range")
	ErrProof         = errors.New("pipeline: manifest proof does not match root")
)

// Manifest is a Merkle tree over the digests of a sealed batch. The root can
// be published once; each sealed image is then checked against it with its
// own proof.
type Manifest struct {
	Digests []string
	Root    string
	width   int
	nodes   [][sha256.Size]byte
}

// NewManifest builds the tree over the digests of sealed, in order. Missing
// entries are an error.
func NewManifest(sealed []*Sealed) (*Manifest, error) {
	if len(sealed) == 0 {
		return nil, ErrManifestEmpty
	}
	width := 1
	for width < len(sealed) {
		width *= 2
	}
	m := &Manifest{
		Digests: make([]string, len(sealed)),
		width:   width,
		nodes:   make([][sha256.Size]byte, 2*width-1),
	}
	pad := sha256.Sum256(nil)
	for i := 0; i < width; i++ {
		leaf := pad
		if i < len(sealed) {
			if sealed[i] == nil {
				return nil, fmt.Errorf("pipeline: manifest entry %d is missing", i)
			}
			raw, err := hex.DecodeString(sealed[i].Digest)
			if err != nil || len(raw) != sha256.Size {
				return nil, fmt.Errorf("pipeline: manifest entry %d: bad digest %q", i, sealed[i].Digest)
			}
			copy(leaf[:], raw)
			m.Digests[i] = sealed[i].Digest
		}
		m.nodes[width-1+i] = leaf
	}
	for i := width - 2; i >= 0; i-- {
		m.nodes[i] = join(m.nodes[2*i+1], m.nodes[2*i+2])
	}
	m.Root = hex.EncodeToString(m.nodes[0][:])
	return m, nil
}

func join(left, right [sha256.Size]byte) [sha256.Size]byte {
	var buf [2 * sha256.Size]byte
	copy(buf[:], left[:])
	copy(buf[sha256.Size:], right[:])
	return sha256.Sum256(buf[:])
}

// Proof shows that Digest sits at Index under a manifest root.
type Proof struct {
	Index    int
	Digest   string
	Siblings [][sha256.Size]byte
	// Left[i] is true when Siblings[i] is the left operand.
	Left []bool
}

func (m *Manifest) Proof(index int) (Proof, error) {
	if index < 0 || index >= len(m.Digests) {
		return Proof{}, fmt.Errorf("%w: %d of %d", ErrProofIndex, index, len(m.Digests))
	}
	p := Proof{Index: index, Digest: m.Digests[index]}
	for n := m.width - 1 + index; n > 0; n = (n - 1) / 2 {
		if n%2 == 1 {
			p.Siblings = append(p.Siblings, m.nodes[n+1])
			p.Left = append(p.Left, false)
		} else {
			p.Siblings = append(p.Siblings, m.nodes[n-1])
			p.Left = append(p.Left, true)
		}
	}
	return p, nil
}

// VerifyProof recomputes the root from p and compares it with root.
func VerifyProof(p Proof, root string) error {
	raw, err := hex.DecodeString(p.Digest)
	if err != nil || len(raw) != sha256.Size || len(p.Left) != len(p.Siblings) {
		return ErrProof
	}
	var cur [sha256.Size]byte
	copy(cur[:], raw)
	for i, s := range p.Siblings {
		if p.Left[i] {
			cur = join(s, cur)
		} else {
			cur = join(cur, s)
		}
	}
	if hex.EncodeToString(cur[:]) != root {
		return ErrProof
	}
	return nil
}
