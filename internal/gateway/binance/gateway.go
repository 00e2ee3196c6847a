package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"abquant/internal/gateway"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/backoff"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/ws"
	"golang.org/x/time/rate"
)

// Name is the default gateway name.
const Name = "BINANCE"

// Config tunes the order workers and REST pacing.
type Config struct {
	Name              string        `mapstructure:"name"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	KeepAlive         time.Duration `mapstructure:"keep_alive"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = Name
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Minute
	}
	return c
}

// Gateway trades Binance spot. Orders are placed through a worker queue
// over REST; market data and order updates arrive over websockets.
type Gateway struct {
	*gateway.Base

	cfg     Config
	worker  *orderWorker
	now     func() time.Time
	setting gateway.Setting
	rest    *restClient
	wsUrl   string

	requestID atomic.Int64

	mdMu  sync.Mutex
	ticks map[string]*model.Tick // venue symbol

	mu         sync.Mutex
	orders     map[string]model.Order // client order id
	subscribed map[string]struct{}    // venue symbol
	market     *ws.WebSocket
	user       *ws.WebSocket
	cancel     context.CancelFunc
	keepDone   chan struct{}
}

var _ gateway.Gateway = (*Gateway)(nil)

func New(cfg Config, sink gateway.EventSink) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		Base:       gateway.NewBase(cfg.Name, sink),
		cfg:        cfg,
		worker:     newOrderWorker(cfg.Workers, cfg.QueueSize),
		now:        time.Now,
		ticks:      make(map[string]*model.Tick),
		orders:     make(map[string]model.Order),
		subscribed: make(map[string]struct{}),
	}
}

func (g *Gateway) Exchanges() []enum.Exchange {
	return []enum.Exchange{enum.ExchangeBinance}
}

func httpClient(setting gateway.Setting) *http.Client {
	if setting.ProxyHost == "" {
		return &http.Client{}
	}
	proxy := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", setting.ProxyHost, setting.ProxyPort)}
	return &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxy)}}
}

func endpoints(setting gateway.Setting) (string, string) {
	restUrl, wsUrl := _binanceBaseUrl, _binanceBaseWsUrl
	if setting.Testnet {
		restUrl, wsUrl = _binanceBaseUrlTestnet, _binanceBaseWsUrlTestnet
	}
	if v := setting.Extra["rest_url"]; v != "" {
		restUrl = v
	}
	if v := setting.Extra["ws_url"]; v != "" {
		wsUrl = v
	}
	return restUrl, wsUrl
}

// Connect loads contracts and, when a key is configured, the account. It
// retries with backoff until it succeeds or ctx is done.
func (g *Gateway) Connect(ctx context.Context, setting gateway.Setting) error {
	restUrl, wsUrl := endpoints(setting)
	limiter := rate.NewLimiter(rate.Limit(g.cfg.RequestsPerSecond), int(g.cfg.RequestsPerSecond)+1)

	g.mu.Lock()
	g.setting = setting
	g.wsUrl = wsUrl
	g.rest = newRestClient(restUrl, setting.Key, setting.Secret, httpClient(setting), limiter)
	g.mu.Unlock()

	retrier := backoff.NewRetrier(setting.Retry)
	if err := gateway.Reconnect(ctx, g.Name(), retrier, g.dial); err != nil {
		g.OnStatus(false, err.Error())
		return err
	}
	g.OnStatus(true, "connected")
	g.WriteLog(enum.LogLevelInfo, "connected with %d contracts", g.Contracts().Len())
	return nil
}

func (g *Gateway) dial(ctx context.Context) error {
	contracts, err := g.rest.contracts(ctx, g.Name())
	if err != nil {
		return errors.Wrap(err, "load contracts")
	}
	for _, c := range contracts {
		g.OnContract(c)
	}
	if g.setting.Key == "" {
		return nil
	}
	return g.QueryAccount(ctx)
}

// Subscribe registers the symbol and, once streaming, subscribes right away.
func (g *Gateway) Subscribe(ctx context.Context, req model.SubscribeRequest) error {
	ab := req.ABSymbol()
	if _, ok := g.Contracts().Get(ab); !ok {
		return errors.Wrap(exception.ErrInvalidSymbol, ab)
	}

	g.mu.Lock()
	if _, ok := g.subscribed[req.Symbol]; ok {
		g.mu.Unlock()
		return nil
	}
	g.subscribed[req.Symbol] = struct{}{}
	market := g.market
	g.mu.Unlock()

	if market == nil {
		return nil
	}
	return g.subscribeStreams(ctx, market, streamParams(req.Symbol))
}

// Start opens the market stream, the user stream when a key is configured,
// and the order workers.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return nil
	}
	if g.rest == nil {
		g.mu.Unlock()
		return errors.Wrap(exception.ErrGatewayDisconnected, "start before connect")
	}
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.mu.Unlock()

	market := ws.New(ctx, g.wsUrl+"/stream")
	if err := market.Start(ctx); err != nil {
		cancel()
		return errors.Wrap(err, "start market stream")
	}
	observe(ctx, g.Name(), market, g.handleMarket)

	g.mu.Lock()
	g.market = market
	symbols := make([]string, 0, len(g.subscribed))
	for s := range g.subscribed {
		symbols = append(symbols, s)
	}
	g.mu.Unlock()
	sort.Strings(symbols)

	for _, s := range symbols {
		if err := g.subscribeStreams(ctx, market, streamParams(s)); err != nil {
			return errors.Wrapf(err, "subscribe %s", s)
		}
	}

	if g.setting.Key != "" {
		if err := g.startUserStream(ctx); err != nil {
			return err
		}
	}

	g.worker.Run(ctx, g.execute)
	return nil
}

func (g *Gateway) startUserStream(ctx context.Context) error {
	key, err := g.rest.newListenKey(ctx)
	if err != nil {
		return errors.Wrap(err, "new listen key")
	}

	user := ws.New(ctx, g.wsUrl+"/ws/"+key)
	if err := user.Start(ctx); err != nil {
		return errors.Wrap(err, "start user stream")
	}
	observe(ctx, g.Name(), user, g.handleUser)

	done := make(chan struct{})
	g.mu.Lock()
	g.user = user
	g.keepDone = done
	g.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.cfg.KeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := g.rest.keepAliveListenKey(ctx, key); err != nil {
					g.WriteLog(enum.LogLevelWarning, "keep alive listen key, err: %+v", err)
				}
			}
		}
	}()
	return nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	cancel, market, user, done := g.cancel, g.market, g.user, g.keepDone
	g.cancel, g.market, g.user, g.keepDone = nil, nil, nil, nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		g.worker.Wait()
	}
	if market != nil {
		market.Close()
	}
	if user != nil {
		user.Close()
	}
	if done != nil {
		<-done
	}
	g.OnStatus(false, "closed")
	return nil
}

// SendOrder emits the Submitting order and queues placement. A placement
// failure later shows up as a Rejected order event.
func (g *Gateway) SendOrder(_ context.Context, req model.OrderRequest) (string, error) {
	if !req.Volume.IsPositive() {
		return "", errors.Wrapf(exception.ErrOrderInvalidRequest, "volume: %s", req.Volume)
	}
	typ, _, ok := binanceOrderType(req.Type)
	if !ok {
		return "", errors.Wrap(exception.ErrOrderUnsupportedType, req.Type.String())
	}
	if typ == "LIMIT" && !req.Price.IsPositive() {
		return "", errors.Wrapf(exception.ErrOrderInvalidRequest, "price: %s", req.Price)
	}

	clientID := newClientOrderID()
	order := req.CreateOrder(clientID, g.Name())
	g.mu.Lock()
	g.orders[clientID] = order
	g.mu.Unlock()
	g.OnOrder(order)

	if err := g.worker.Handle(orderTask{kind: taskPlace, clientID: clientID, place: req}); err != nil {
		g.reject(clientID, err)
		return "", err
	}
	return order.ABOrderID(), nil
}

func (g *Gateway) reject(clientID string, cause error) {
	g.mu.Lock()
	o, ok := g.orders[clientID]
	if !ok || o.Status.IsTerminal() {
		g.mu.Unlock()
		return
	}
	o.Status = enum.StatusRejected
	o.Datetime = g.now()
	g.orders[clientID] = o
	g.mu.Unlock()

	g.OnOrder(o)
	g.WriteLog(enum.LogLevelWarning, "order %s rejected, err: %+v", clientID, cause)
}

func (g *Gateway) execute(ctx context.Context, task orderTask) {
	switch task.kind {
	case taskPlace:
		ack, err := g.rest.placeOrder(ctx, task.clientID, task.place)
		if err != nil {
			g.reject(task.clientID, err)
			return
		}
		status, ok := statusFromBinance[ack.Status]
		if !ok {
			return
		}
		g.mu.Lock()
		o, tracked := g.orders[task.clientID]
		if !tracked || o.Status != enum.StatusSubmitting {
			g.mu.Unlock()
			return
		}
		o.Status = status
		g.orders[task.clientID] = o
		g.mu.Unlock()
		g.OnOrder(o)
	case taskCancel:
		if err := g.rest.cancelOrder(ctx, task.cancel); err != nil {
			g.WriteLog(enum.LogLevelWarning, "cancel order %s, err: %+v", task.cancel.OrderID, err)
		}
	}
}

func (g *Gateway) CancelOrder(_ context.Context, req model.CancelRequest) error {
	g.mu.Lock()
	o, ok := g.orders[req.OrderID]
	g.mu.Unlock()
	if !ok {
		return errors.Wrap(exception.ErrOrderUnknown, req.OrderID)
	}
	if !o.IsActive() {
		return errors.Wrap(exception.ErrOrderNotActive, req.OrderID)
	}
	return g.worker.Handle(orderTask{kind: taskCancel, cancel: req})
}

func (g *Gateway) CancelOrders(ctx context.Context, reqs []model.CancelRequest) error {
	var first error
	for _, req := range reqs {
		if err := g.CancelOrder(ctx, req); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// QueryAccount publishes every non-empty asset balance.
func (g *Gateway) QueryAccount(ctx context.Context) error {
	info, err := g.rest.account(ctx)
	if err != nil {
		return errors.Wrap(err, "query account")
	}
	for _, b := range info.Balances {
		free, locked := parseDecimal(b.Free), parseDecimal(b.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		g.OnAccount(model.Account{
			GatewayName: g.Name(),
			AccountID:   b.Asset,
			Balance:     free.Add(locked),
			Frozen:      locked,
		})
	}
	return nil
}

// QueryPosition is a no-op: spot holdings are reported as account balances.
func (g *Gateway) QueryPosition(context.Context) error {
	return nil
}

func (g *Gateway) QueryHistory(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	if g.rest == nil {
		return nil, errors.Wrap(exception.ErrGatewayDisconnected, "query history before connect")
	}
	return g.rest.klines(ctx, g.Name(), req)
}
