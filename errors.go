package voxscope

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoDevice          = errors.New("no matching input device")
	ErrChannelNotOpen    = errors.New("data channel not opened")
	ErrClosed            = errors.New("closed")
)
