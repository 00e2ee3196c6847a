package exception

import "github.com/yanun0323/errors"

var (
	ErrGatewayNotFound       = errors.New("gateway: not found")
	ErrGatewayDuplicate      = errors.New("gateway: duplicate name")
	ErrGatewayDisconnected   = errors.New("gateway: disconnected")
	ErrGatewayInvalidSetting = errors.New("gateway: invalid setting")
	ErrGatewayRetryExhausted = errors.New("gateway: reconnect retries exhausted")
	ErrInResponseError       = errors.New("gateway: error in response")
	ErrWebSocketClosed       = errors.New("gateway: websocket closed")
)
