package gateway

import (
	"context"

	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/backoff"
)

// Gateway adapts one venue to the shared event schema. Implementations push
// market and trading updates as events and accept requests from the runner.
type Gateway interface {
	Name() string
	Exchanges() []enum.Exchange

	Connect(ctx context.Context, setting Setting) error
	Subscribe(ctx context.Context, req model.SubscribeRequest) error
	Start(ctx context.Context) error
	Close() error

	// SendOrder returns the ab order id immediately; the order lifecycle
	// follows as order events.
	SendOrder(ctx context.Context, req model.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, req model.CancelRequest) error
	CancelOrders(ctx context.Context, reqs []model.CancelRequest) error

	QueryAccount(ctx context.Context) error
	QueryPosition(ctx context.Context) error
	QueryHistory(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error)

	Contracts() *ContractRegistry
}

// EventSink receives gateway events. The dispatcher satisfies it.
type EventSink interface {
	Put(e event.Event)
}

// Setting carries connection parameters.
type Setting struct {
	Key       string            `mapstructure:"key"`
	Secret    string            `mapstructure:"secret"`
	ProxyHost string            `mapstructure:"proxy_host"`
	ProxyPort int               `mapstructure:"proxy_port"`
	Testnet   bool              `mapstructure:"testnet"`
	Retry     backoff.Policy    `mapstructure:"retry"`
	Extra     map[string]string `mapstructure:"extra"`
}
