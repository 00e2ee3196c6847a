package exception

import "github.com/yanun0323/errors"

var (
	ErrConfigRead    = errors.New("config: read failed")
	ErrConfigInvalid = errors.New("config: invalid value")
)
