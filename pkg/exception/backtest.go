package exception

import "github.com/yanun0323/errors"

var (
	ErrBacktestInvalidParameter = errors.New("backtest: invalid parameter")
	ErrBacktestNoStrategy       = errors.New("backtest: no strategy")
	ErrBacktestNoData           = errors.New("backtest: no data")
)
