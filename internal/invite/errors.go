package invite

import "glen/internal/utils"

var (
	ErrInviteExpired = utils.NewGlenError("invite expired")
	ErrBadSignature  = utils.NewGlenError("invite signature invalid")
	ErrBadKey        = utils.NewGlenError("invalid key provided")
	ErrBadRole       = utils.NewGlenError("invite role must be member or moderator")
	ErrBadExpiry     = utils.NewGlenError("invite ttl must be positive")
	ErrTokenTooLarge = utils.NewGlenError("encoded invite exceeds size ceiling")
	ErrBadEncoding   = utils.NewGlenError("invite encoding invalid")
	ErrSigningFailed = utils.NewGlenError("signing failed")
)
