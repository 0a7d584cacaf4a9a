package domain

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrSimAlreadySaved = errors.New("sim already recorded for order")
)
