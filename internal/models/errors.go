package models

import "glen/internal/utils"

var ErrMessageNotFound = utils.NewGlenError("message not found")
