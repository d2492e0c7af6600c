package vispipe

import "errors"

var (
	// ErrInvalidConfig wraps every configuration problem reported by New.
	ErrInvalidConfig = errors.New("vispipe: invalid configuration")

	// ErrClosed is returned by Frame after Close.
	ErrClosed = errors.New("vispipe: pipeline is closed")
)
