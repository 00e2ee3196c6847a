package exception

import "github.com/yanun0323/errors"

var (
	ErrBarSourceMixed     = errors.New("bar: tick and transaction updates mixed on one generator")
	ErrBarInvalidWindow   = errors.New("bar: invalid window")
	ErrBarInvalidInterval = errors.New("bar: invalid interval")
)
