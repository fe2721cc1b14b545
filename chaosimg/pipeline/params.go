package pipeline

import "fmt"

// Parameters is the full cipher key. It is passed explicitly to every call;
// the pipeline keeps no defaults of its own.
type Parameters struct {
	ACMIterations int
	ACMA          int64
	ACMB          int64
	LogisticX0    float64
	LogisticR     float64
}

// DefaultParameters returns the reference parameter set.
func DefaultParameters() Parameters {
	return Parameters{
		ACMIterations: 10,
		ACMA:          1,
		ACMB:          1,
		LogisticX0:    0.3141592653589793,
		LogisticR:     3.9999999,
	}
}

func (p Parameters) Validate() error {
	if p.ACMIterations < 0 {
		return fmt.Errorf("pipeline: negative ACM iteration count %d", p.ACMIterations)
	}
	return nil
}
