package pipeline

import (
	"fmt"
	"time"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

// Stage is a point in the cipher chain.
type Stage int

const (
	StageRaw Stage = iota
	StagePermuted
	StageSubstituted
	StageMasked
	StageEmbedded
	StageCompressed
	StageHashed
	StageVerified
	StageDecompressed
	StageExtracted
	StageUnmasked
	StageUnsubstituted
	StageUnpermuted
	StageUnpadded
)

var stageNames = [...]string{
	StageRaw:           "raw",
	StagePermuted:      "permuted",
	StageSubstituted:   "substituted",
	StageMasked:        "masked",
	StageEmbedded:      "embedded",
	StageCompressed:    "compressed",
	StageHashed:        "hashed",
	StageVerified:      "verified",
	StageDecompressed:  "decompressed",
	StageExtracted:     "extracted",
	StageUnmasked:      "unmasked",
	StageUnsubstituted: "unsubstituted",
	StageUnpermuted:    "unpermuted",
	StageUnpadded:      "unpadded",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Status classifies how a call ended.
type Status int

const (
	StatusOK Status = iota
	// StatusDegraded means an optional stage failed and the artifact is the
	// best output obtained without it.
	StatusDegraded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StageError records which stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of Encrypt or Decrypt. Stage is the last stage that
// completed; Err is a *StageError whenever Status is not StatusOK.
type Result struct {
	Artifact *grid.Grid
	Stage    Stage
	Status   Status
	Err      error
	Elapsed  time.Duration
}

func (r Result) OK() bool { return r.Status == StatusOK }
