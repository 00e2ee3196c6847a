package exception

import "github.com/yanun0323/errors"

var (
	ErrStrategyClassNotFound  = errors.New("strategy: class not registered")
	ErrStrategyClassDuplicate = errors.New("strategy: class already registered")
	ErrStrategyDuplicate      = errors.New("strategy: name already exists")
	ErrStrategyNotFound       = errors.New("strategy: not found")
	ErrStrategyAlreadyInited  = errors.New("strategy: already initialized")
	ErrStrategyNotInited      = errors.New("strategy: not initialized")
	ErrStrategyTrading        = errors.New("strategy: still trading")
	ErrStrategyNoSymbols      = errors.New("strategy: no symbols")
	ErrStrategyLoadBarsMisuse = errors.New("strategy: LoadBars called outside OnInit")
	ErrStrategyCrashed        = errors.New("strategy: callback crashed")
)
