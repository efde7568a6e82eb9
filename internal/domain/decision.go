package domain

// Decision is the single outcome of verifying one credential.
type Decision string

const (
	DecisionValid            Decision = "valid"
	DecisionRevoked          Decision = "revoked"
	DecisionExpired          Decision = "expired"
	DecisionSignatureInvalid Decision = "signature_invalid"
	DecisionUsageExceeded    Decision = "usage_exceeded"
	DecisionNotFound         Decision = "not_found"
)

// Reason returns the user-facing explanation for a non-valid decision.
// Signature failures stay generic on purpose.
func (d Decision) Reason() string {
	switch d {
	case DecisionValid:
		return ""
	case DecisionRevoked:
		return "credential has been revoked"
	case DecisionExpired:
		return "credential has expired"
	case DecisionSignatureInvalid:
		return "credential could not be verified"
	case DecisionUsageExceeded:
		return "monthly usage limit reached"
	case DecisionNotFound:
		return "credential not found"
	default:
		return "credential could not be verified"
	}
}

// BundlePolicy controls how a multi-credential check-in aggregates individual decisions.
type BundlePolicy string

const (
	// BundleAllOrNothing admits only when every bundled credential is valid.
	BundleAllOrNothing BundlePolicy = "all_or_nothing"
	// BundleBestEffort admits the valid subset when at least one credential is valid.
	BundleBestEffort BundlePolicy = "best_effort"
)

// Valid reports whether p is a known policy.
func (p BundlePolicy) Valid() bool {
	return p == BundleAllOrNothing || p == BundleBestEffort
}
