package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"github.com/TheusHen/chaosimg/chaosimg/integrity"
	"github.com/TheusHen/chaosimg/chaosimg/steg"
	"github.com/google/uuid"
)

var ErrNilGrid = errors.New("pipeline: nil grid")

// SealRequest is one image to encrypt and package.
type SealRequest struct {
	Grid   *grid.Grid
	Params Parameters
	// EmbedMetadata hides a Metadata record in the encrypted grid. The
	// record overwrites the low bit of the first elements of the
	// ciphertext, so those elements no longer decrypt exactly.
	EmbedMetadata bool
	// Grayscale is recorded in the metadata only.
	Grayscale bool
}

// Sealed is the output of Seal.
type Sealed struct {
	RunID string
	// Encrypted is the final grid, possibly carrying metadata.
	Encrypted *grid.Grid
	Blob      integrity.CompressedBlob
	Digest    string
	// Original is the shape before square padding, zero if none was needed.
	Original grid.Shape
	Metadata *Metadata
	// EmbeddedBits counts the elements whose low bit carries metadata.
	EmbeddedBits int
	Stage        Stage
	Status       Status
	Err          error
	Elapsed      time.Duration
}

// Padded reports whether the input was padded to a square.
func (s *Sealed) Padded() bool { return !s.Original.IsZero() }

// Seal pads g to a square when needed, encrypts it, optionally embeds
// metadata, compresses and hashes. A metadata failure degrades the result;
// cipher and compression failures are returned as errors.
func (p *Pipeline) Seal(req SealRequest) (*Sealed, error) {
	start := time.Now()
	if req.Grid == nil {
		return nil, ErrNilGrid
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	s := &Sealed{RunID: uuid.NewString()}
	log := p.logger.With("run", s.RunID)

	input := req.Grid
	padded, wasPadded := grid.PadSquare(input)
	if wasPadded {
		s.Original = input.Shape()
		log.Info("padded to square", "from", input.Shape().String(), "to", padded.Shape().String())
	}

	enc := p.encrypt(log, padded, req.Params)
	if !enc.OK() {
		return nil, enc.Err
	}
	s.Encrypted, s.Stage = enc.Artifact, StageMasked

	if req.EmbedMetadata {
		meta := &Metadata{
			EncryptedBy: p.encryptedBy,
			Description: p.description,
			Timestamp:   p.now().Format(time.RFC3339),
			Params:      newEncryptionInfo(req.Params, input.Shape(), padded.Shape(), enc.Artifact.Shape(), wasPadded, req.Grayscale),
		}
		payload, err := steg.Marshal(meta)
		if err == nil {
			var carrier *grid.Grid
			carrier, err = steg.EmbedBytes(enc.Artifact, payload)
			if err == nil {
				s.Encrypted, s.Stage, s.Metadata = carrier, StageEmbedded, meta
				s.EmbeddedBits = steg.HeaderBits + 8*len(payload)
			}
		}
		if err != nil {
			s.Status = StatusDegraded
			s.Err = &StageError{Stage: StageEmbedded, Err: err}
			log.Warn("continuing without metadata", "stage", StageEmbedded.String(), "error", err,
				"capacity", steg.Capacity(enc.Artifact), "payload", len(payload))
		}
	}

	blob, err := p.transport.Compress(s.Encrypted)
	if err != nil {
		return nil, &StageError{Stage: StageCompressed, Err: err}
	}
	s.Blob, s.Stage = blob, StageCompressed

	s.Digest, s.Stage = blob.Hash(), StageHashed
	s.Elapsed = time.Since(start)
	log.Info("sealed",
		"shape", s.Encrypted.Shape().String(),
		"codec", blob.Codec.String(),
		"compressed", len(blob.Data),
		"digest", s.Digest,
		"metadata", s.Metadata != nil,
		"elapsed", s.Elapsed)
	return s, nil
}

// OpenRequest is one sealed blob to verify and decrypt.
type OpenRequest struct {
	Blob   integrity.CompressedBlob
	Digest string
	// Shape is the pre-steg grid shape; zero means Blob.Shape.
	Shape grid.Shape
	// Width is the element width of the compressed bytes; zero means 1.
	Width  int
	Params Parameters
	// Original is the caller's idea of the pre-padding shape, zero if
	// unknown.
	Original        grid.Shape
	ExtractMetadata bool
}

// Opened is the output of Open.
type Opened struct {
	RunID    string
	Verified bool
	// Encrypted is the decompressed grid before decryption.
	Encrypted *grid.Grid
	Metadata  *Metadata
	// Params are the parameters decryption actually used.
	Params Parameters
	// Overrides names the parameters taken from metadata.
	Overrides []string
	Original  grid.Shape
	Decrypted Result
	Stage     Stage
	Status    Status
	Err       error
	Elapsed   time.Duration
}

// Image returns the decrypted grid, nil when decryption did not run or
// failed.
func (o *Opened) Image() *grid.Grid { return o.Decrypted.Artifact }

// Open verifies, decompresses, optionally extracts metadata and decrypts.
// Verification and decompression failures end the call with StatusFailed;
// they never panic or return an error.
func (p *Pipeline) Open(req OpenRequest) *Opened {
	start := time.Now()
	o := &Opened{RunID: uuid.NewString(), Params: req.Params, Original: req.Original, Stage: StageHashed}
	log := p.logger.With("run", o.RunID)
	finish := func(stage Stage, err error) *Opened {
		o.Status = StatusFailed
		o.Err = &StageError{Stage: stage, Err: err}
		o.Elapsed = time.Since(start)
		log.Error("skipping decryption", "stage", stage.String(), "error", err, "elapsed", o.Elapsed)
		return o
	}

	if !p.transport.Verify(req.Blob, req.Digest) {
		return finish(StageVerified, fmt.Errorf("%w: expected %q", integrity.ErrDigestMismatch, req.Digest))
	}
	o.Verified, o.Stage = true, StageVerified

	shape := req.Shape
	if shape.IsZero() {
		shape = req.Blob.Shape
	}
	width := req.Width
	if width == 0 {
		width = 1
	}
	encrypted, err := p.transport.Decompress(req.Blob, shape, width)
	if err != nil {
		return finish(StageDecompressed, err)
	}
	o.Encrypted, o.Stage = encrypted, StageDecompressed

	if req.ExtractMetadata {
		p.applyMetadata(log, o, encrypted)
	}

	o.Decrypted = p.decrypt(log, encrypted, o.Params, o.Original)
	o.Stage, o.Status, o.Err = o.Decrypted.Stage, o.Decrypted.Status, o.Decrypted.Err
	o.Elapsed = time.Since(start)
	log.Info("opened", "status", o.Status.String(), "stage", o.Stage.String(), "elapsed", o.Elapsed)
	return o
}

func (p *Pipeline) applyMetadata(log *slog.Logger, o *Opened, encrypted *grid.Grid) {
	var meta Metadata
	if err := steg.ExtractInto(encrypted, &meta); err != nil {
		log.Info("no metadata extracted", "error", err)
		return
	}
	o.Metadata, o.Stage = &meta, StageExtracted

	declared, changed := meta.Params.Parameters(o.Params)
	switch {
	case len(changed) == 0:
	case p.policy == PreferCaller:
		log.Warn("metadata parameters ignored", "fields", changed, "policy", p.policy.String())
	default:
		o.Params, o.Overrides = declared, slices.Clone(changed)
		log.Warn("metadata parameters override caller", "fields", changed, "policy", p.policy.String())
	}

	if s, ok := meta.Params.OriginalShape(); ok {
		if p.policy == PreferMetadata || o.Original.IsZero() {
			o.Original = s
		}
	}
}
