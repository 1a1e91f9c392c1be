package engine

import "glen/internal/utils"

var (
	ErrPersistence   = utils.NewGlenError("persistence failed")
	ErrEngineStopped = utils.NewGlenError("engine stopped")
	ErrQueueFull     = utils.NewGlenError("event queue full")
)
