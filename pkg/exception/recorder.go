package exception

import "github.com/yanun0323/errors"

var (
	ErrRecorderQueueFull      = errors.New("recorder: queue full")
	ErrRecorderClosed         = errors.New("recorder: closed")
	ErrRecorderNotStarted     = errors.New("recorder: not started")
	ErrRecorderAlreadyStarted = errors.New("recorder: already started")
	ErrRecorderInvalidConfig  = errors.New("recorder: invalid config")
)
