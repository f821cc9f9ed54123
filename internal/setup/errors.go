package setup

import "errors"

// Sentinel errors returned by the setup protocol. Handlers map each to a
// distinct HTTP status; conflict, not-found and expired are user-visible
// distinctions and must not collapse into one another.
var (
	ErrValidation    = errors.New("invalid setup request")
	ErrSlugTaken     = errors.New("slug already taken")
	ErrTokenNotFound = errors.New("setup token not found")
	ErrTokenExpired  = errors.New("setup token expired")
	ErrTokenUsed     = errors.New("setup token already used")
	ErrForbidden     = errors.New("setup not permitted")
	ErrStageOrder    = errors.New("setup stage out of order")
	ErrFamilyMissing = errors.New("family not found")
)
