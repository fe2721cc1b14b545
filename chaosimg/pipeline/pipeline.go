package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/TheusHen/chaosimg/chaosimg/acm"
	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"github.com/TheusHen/chaosimg/chaosimg/integrity"
	"github.com/TheusHen/chaosimg/chaosimg/logistic"
	"github.com/TheusHen/chaosimg/chaosimg/sbox"
)

const (
	DefaultEncryptedBy = "chaosimg"
	DefaultDescription = "Encrypted using ACM, AES S-box, Logistic Map, compressed, metadata via LSB steganography."
)

// Pipeline runs the cipher chain. It holds configuration only and is safe
// for concurrent use.
type Pipeline struct {
	logger      *slog.Logger
	codec       integrity.Codec
	level       int
	policy      MetadataPolicy
	encryptedBy string
	description string
	now         func() time.Time
	transport   *integrity.Transport
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCodec selects the compression codec used by Seal.
func WithCodec(c integrity.Codec) Option {
	return func(p *Pipeline) { p.codec = c }
}

// WithCompressionLevel sets the codec effort; 0 keeps the codec default.
func WithCompressionLevel(level int) Option {
	return func(p *Pipeline) { p.level = level }
}

func WithMetadataPolicy(m MetadataPolicy) Option {
	return func(p *Pipeline) { p.policy = m }
}

// WithSignature sets the encrypted_by and description fields written into
// embedded metadata.
func WithSignature(encryptedBy, description string) Option {
	return func(p *Pipeline) {
		p.encryptedBy = encryptedBy
		p.description = description
	}
}

// WithClock replaces time.Now for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		codec:       integrity.CodecZlib,
		policy:      PreferMetadata,
		encryptedBy: DefaultEncryptedBy,
		description: DefaultDescription,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.transport = integrity.New(
		integrity.WithCodec(p.codec),
		integrity.WithLevel(p.level),
		integrity.WithLogger(p.logger),
	)
	return p
}

// Transport returns the integrity transport used by Seal and Open.
func (p *Pipeline) Transport() *integrity.Transport { return p.transport }

func (p *Pipeline) fail(log *slog.Logger, r Result, stage Stage, err error, start time.Time) Result {
	r.Status = StatusFailed
	r.Err = &StageError{Stage: stage, Err: err}
	r.Elapsed = time.Since(start)
	log.Error("stage failed", "stage", stage.String(), "error", err, "elapsed", r.Elapsed)
	return r
}

// Encrypt runs permute, substitute and mask. When a stage fails the result
// carries the input to that stage, the last completed stage and
// StatusFailed.
func (p *Pipeline) Encrypt(g *grid.Grid, params Parameters) Result {
	return p.encrypt(p.logger, g, params)
}

func (p *Pipeline) encrypt(log *slog.Logger, g *grid.Grid, params Parameters) Result {
	start := time.Now()
	r := Result{Artifact: g, Stage: StageRaw}
	if g == nil {
		return p.fail(log, r, StagePermuted, errors.New("nil grid"), start)
	}

	if err := logistic.CheckParameters(params.LogisticX0, params.LogisticR); err != nil {
		log.Warn("weak logistic parameters", "error", err)
	}

	permuted, err := acm.Forward(g, params.ACMIterations, params.ACMA, params.ACMB)
	if err != nil {
		return p.fail(log, r, StagePermuted, err, start)
	}
	if n := g.Shape().Height; n > 1 && params.ACMIterations > 0 {
		if period := acm.Period(n, params.ACMA, params.ACMB); params.ACMIterations%period == 0 {
			log.Warn("ACM rounds are a multiple of the map period, permutation is the identity",
				"rounds", params.ACMIterations, "period", period, "side", n)
		}
	}
	r.Artifact, r.Stage = permuted, StagePermuted

	substituted := sbox.Substitute(permuted)
	r.Artifact, r.Stage = substituted, StageSubstituted

	masked, err := logistic.Apply(substituted, params.LogisticX0, params.LogisticR)
	if err != nil {
		return p.fail(log, r, StageMasked, err, start)
	}
	r.Artifact, r.Stage = masked, StageMasked
	r.Elapsed = time.Since(start)
	log.Debug("encrypted", "shape", g.Shape().String(), "elapsed", r.Elapsed)
	return r
}

// Decrypt runs unmask, inverse substitute, inverse permute and unpad. Any
// failure before unpadding is terminal: the artifact is nil. A failed unpad
// is StatusDegraded with the still padded grid. original is the shape
// before padding; the zero Shape skips unpadding.
func (p *Pipeline) Decrypt(g *grid.Grid, params Parameters, original grid.Shape) Result {
	return p.decrypt(p.logger, g, params, original)
}

func (p *Pipeline) decrypt(log *slog.Logger, g *grid.Grid, params Parameters, original grid.Shape) Result {
	start := time.Now()
	r := Result{Stage: StageDecompressed}
	if g == nil {
		return p.fail(log, r, StageUnmasked, errors.New("nil grid"), start)
	}

	unmasked, err := logistic.Apply(g, params.LogisticX0, params.LogisticR)
	if err != nil {
		return p.fail(log, r, StageUnmasked, err, start)
	}
	r.Stage = StageUnmasked

	unsubstituted := sbox.InverseSubstitute(unmasked)
	r.Stage = StageUnsubstituted

	unpermuted, err := acm.Inverse(unsubstituted, params.ACMIterations, params.ACMA, params.ACMB)
	if err != nil {
		return p.fail(log, r, StageUnpermuted, err, start)
	}
	r.Artifact, r.Stage = unpermuted, StageUnpermuted

	unpadded, err := grid.Unpad(unpermuted, original)
	if err != nil {
		r.Status = StatusDegraded
		r.Err = &StageError{Stage: StageUnpadded, Err: err}
		r.Elapsed = time.Since(start)
		log.Warn("returning padded image", "stage", StageUnpadded.String(), "error", err, "elapsed", r.Elapsed)
		return r
	}
	r.Artifact, r.Stage = unpadded, StageUnpadded
	r.Elapsed = time.Since(start)
	log.Debug("decrypted", "shape", unpadded.Shape().String(), "elapsed", r.Elapsed)
	return r
}
