package matching

import "time"

// Config carries the matching policy knobs. Thresholds are policy
// defaults pending calibration against historical statement data.
type Config struct {
	// AutoAcceptThreshold is the minimum top score for an automatic
	// match commit.
	AutoAcceptThreshold float64
	// ReviewFloor is the score below which a transaction goes straight
	// to no_match instead of review.
	ReviewFloor float64
	// AmbiguityWindow forces review when the runner-up candidate is
	// within this delta of the top score.
	AmbiguityWindow float64
	// ReplaceDelta is the minimum score change for a re-run to replace
	// an existing automatic decision.
	ReplaceDelta float64
	// NameFloor is the minimum name similarity for a candidate when
	// the transaction has no usable tax id.
	NameFloor float64

	// Workers bounds batch concurrency.
	Workers int
	// LookupTimeout caps one candidate lookup; on expiry the single
	// transaction fails, never the batch.
	LookupTimeout time.Duration
	// LookupRetries and LookupBackoff govern transient lookup errors.
	LookupRetries int
	LookupBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		AutoAcceptThreshold: 0.75,
		ReviewFloor:         0.30,
		AmbiguityWindow:     0.05,
		ReplaceDelta:        0.10,
		NameFloor:           0.60,
		Workers:             8,
		LookupTimeout:       5 * time.Second,
		LookupRetries:       3,
		LookupBackoff:       100 * time.Millisecond,
	}
}
