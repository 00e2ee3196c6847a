package exception

import "github.com/yanun0323/errors"

var (
	ErrDispatcherRunning    = errors.New("dispatcher: already running")
	ErrDispatcherNotRunning = errors.New("dispatcher: not running")
	ErrHandlerPanic         = errors.New("dispatcher: handler panic")
)
