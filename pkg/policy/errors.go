package policy

import "errors"

// Error kinds for the PolicyEngine. Each is a distinct sentinel so
// callers can use errors.Is.
var (
	ErrTierCountInvalid       = errors.New("policy: tier count must be between 1 and 8")
	ErrTierArrayLengthMismatch = errors.New("policy: tier arrays must all have the same length")
	ErrEpochDurationZero      = errors.New("policy: epoch duration must be strictly positive")
	ErrMinAuthorityNotAscending = errors.New("policy: min_authority must be strictly ascending across tiers")
	ErrPolicyAlreadyRegistered = errors.New("policy: a policy with identical parameters is already registered")
	ErrPolicyNotFound         = errors.New("policy: policy not found")
	ErrTierIndexOutOfRange    = errors.New("policy: tier index out of range")
	ErrNotPrincipal           = errors.New("policy: caller is not the relationship's principal")
	ErrNotAgent               = errors.New("policy: caller is not the relationship's agent")
	ErrRelationshipNotAlive   = errors.New("policy: relationship is not alive")
	ErrAlreadyBound           = errors.New("policy: relationship already has a policy binding")
	ErrUnbound                = errors.New("policy: relationship has no policy binding")
	ErrBelowAllTiers          = errors.New("policy: effective authority is below every tier's minimum")
	ErrSpendExceedsCap        = errors.New("policy: spend would exceed the tier's epoch spend cap")
)

// MaxTierIndex is the sentinel tier index returned by queries when a
// relationship is unbound or its authority is below every tier.
const MaxTierIndex = 7

// MaxTierCount is the largest number of tiers a policy may define.
const MaxTierCount = 8
