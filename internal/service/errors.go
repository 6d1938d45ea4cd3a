package service

import "errors"

// Matchmaking queue errors
var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrInvalidCriteria = errors.New("invalid match criteria")
	ErrQueueFull       = errors.New("queue is full")
)
