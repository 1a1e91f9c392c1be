package storage

import "glen/internal/utils"

var (
	ErrNoRows    = utils.NewGlenError("no rows in result set")
	ErrQueueFull = utils.NewGlenError("message write queue full")
)
