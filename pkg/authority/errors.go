package authority

import "errors"

// Error kinds for the AuthorityEngine. Each is a distinct sentinel so
// callers can use errors.Is.
var (
	ErrAgentIsZero                    = errors.New("authority: agent must not be the zero identity")
	ErrAgentIsPrincipal                = errors.New("authority: agent must differ from the caller")
	ErrInitialAuthorityExceedsCeiling = errors.New("authority: initial authority exceeds ceiling")
	ErrDecayRateIsZero                = errors.New("authority: decay rate must be strictly positive")
	ErrNotPrincipal                   = errors.New("authority: caller is not the relationship's principal")
	ErrNotAlive                       = errors.New("authority: relationship is not alive")
	ErrSlashCooldownActive            = errors.New("authority: slash cooldown is still active for this caller")
	ErrSlashAmountZero                = errors.New("authority: slash amount must not be zero")
	ErrBoostAmountZero                = errors.New("authority: boost amount must not be zero")
	ErrNotFound                       = errors.New("authority: relationship not found")
)

// SlashCooldownSeconds is the mandatory interval, in seconds, between two successful slashes
// by the same caller against the same relationship.
const SlashCooldownSeconds = 3600
