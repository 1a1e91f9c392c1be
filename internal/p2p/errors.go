package p2p

import "glen/internal/utils"

var ErrSubscriptionClosed = utils.NewGlenError("subscription closed")
