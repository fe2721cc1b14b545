package pipeline

import "github.com/TheusHen/chaosimg/chaosimg/grid"

// Metadata is the record hidden in the encrypted grid. Every field may be
// absent when read back.
type Metadata struct {
	EncryptedBy string          `json:"encrypted_by,omitempty"`
	Description string          `json:"description,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Params      *EncryptionInfo `json:"encryption_params,omitempty"`
}

// EncryptionInfo describes how the grid was produced.
type EncryptionInfo struct {
	ACMIterations *int     `json:"acm_iterations,omitempty"`
	ACMA          *int64   `json:"acm_a,omitempty"`
	ACMB          *int64   `json:"acm_b,omitempty"`
	LogisticX0    *float64 `json:"logistic_x0,omitempty"`
	LogisticR     *float64 `json:"logistic_r,omitempty"`

	OriginalShapeUnpadded *grid.Shape `json:"original_shape_unpadded,omitempty"`
	OriginalShapePadded   *grid.Shape `json:"original_shape_padded,omitempty"`
	Dtype                 string      `json:"dtype,omitempty"`
	Grayscale             *bool       `json:"grayscale,omitempty"`
	Padded                *bool       `json:"padded,omitempty"`
	PreStegShape          *grid.Shape `json:"pre_steg_shape,omitempty"`
	PreStegDtype          string      `json:"pre_steg_dtype,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func newEncryptionInfo(p Parameters, unpadded, padded, preSteg grid.Shape, wasPadded, grayscale bool) *EncryptionInfo {
	return &EncryptionInfo{
		ACMIterations:         ptr(p.ACMIterations),
		ACMA:                  ptr(p.ACMA),
		ACMB:                  ptr(p.ACMB),
		LogisticX0:            ptr(p.LogisticX0),
		LogisticR:             ptr(p.LogisticR),
		OriginalShapeUnpadded: ptr(unpadded),
		OriginalShapePadded:   ptr(padded),
		Dtype:                 "uint8",
		Grayscale:             ptr(grayscale),
		Padded:                ptr(wasPadded),
		PreStegShape:          ptr(preSteg),
		PreStegDtype:          "uint8",
	}
}

// Parameters returns p with every field the record declares replaced by the
// declared value, plus the names of fields whose value changed.
func (e *EncryptionInfo) Parameters(p Parameters) (Parameters, []string) {
	if e == nil {
		return p, nil
	}
	var changed []string
	if e.ACMIterations != nil && *e.ACMIterations != p.ACMIterations {
		p.ACMIterations = *e.ACMIterations
		changed = append(changed, "acm_iterations")
	}
	if e.ACMA != nil && *e.ACMA != p.ACMA {
		p.ACMA = *e.ACMA
		changed = append(changed, "acm_a")
	}
	if e.ACMB != nil && *e.ACMB != p.ACMB {
		p.ACMB = *e.ACMB
		changed = append(changed, "acm_b")
	}
	if e.LogisticX0 != nil && *e.LogisticX0 != p.LogisticX0 {
		p.LogisticX0 = *e.LogisticX0
		changed = append(changed, "logistic_x0")
	}
	if e.LogisticR != nil && *e.LogisticR != p.LogisticR {
		p.LogisticR = *e.LogisticR
		changed = append(changed, "logistic_r")
	}
	return p, changed
}

// OriginalShape returns the pre-padding shape the record declares. ok is
// false when the record says nothing about it. An explicit padded=false
// yields the zero shape, which disables unpadding.
func (e *EncryptionInfo) OriginalShape() (s grid.Shape, ok bool) {
	if e == nil {
		return grid.Shape{}, false
	}
	if e.Padded != nil && !*e.Padded {
		return grid.Shape{}, true
	}
	if e.OriginalShapeUnpadded == nil {
		return grid.Shape{}, false
	}
	return *e.OriginalShapeUnpadded, true
}

// MetadataPolicy decides whose parameters win when extracted metadata and
// the caller disagree.
type MetadataPolicy int

const (
	// PreferMetadata lets declared values override the caller's, logging
	// each override.
	PreferMetadata MetadataPolicy = iota
	// PreferCaller keeps the caller's parameters and only logs
	// disagreement. Metadata still fills in an unknown original shape.
	PreferCaller
)

func (m MetadataPolicy) String() string {
	if m == PreferCaller {
		return "caller"
	}
	return "metadata"
}
