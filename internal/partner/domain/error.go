package domain

import "errors"

var (
	ErrAttributionMissing = errors.New("partner attribution missing")
	ErrProfileNotFound    = errors.New("partner profile not found")
)
