package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest  = errors.New("order: invalid request")
	ErrOrderContractMissing = errors.New("order: contract not found")
	ErrOrderUnknown         = errors.New("order: not found")
	ErrOrderNotActive       = errors.New("order: not active")
	ErrOrderUnsupportedType = errors.New("order: unsupported type")
	ErrOrderStatusRegress   = errors.New("order: terminal status regression")
	ErrRiskRejected         = errors.New("order: rejected by risk")
	ErrOrderQueueFull       = errors.New("order: queue full")
)
