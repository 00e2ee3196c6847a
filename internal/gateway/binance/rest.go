package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"golang.org/x/time/rate"
)

const (
	_binanceBaseUrl        = "https://api.binance.com"
	_binanceBaseUrlTestnet = "https://testnet.binance.vision"

	_binanceBaseWsUrl        = "wss://stream.binance.com:9443"
	_binanceBaseWsUrlTestnet = "wss://stream.testnet.binance.vision"

	_requestTimeout = 15 * time.Second
	_recvWindow     = 5000
	_klineLimit     = 1000
)

type security uint8

const (
	securityNone security = iota
	securityAPIKey
	securitySigned
)

type restClient struct {
	baseUrl string
	key     string
	secret  string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func newRestClient(baseUrl, key, secret string, client *http.Client, limiter *rate.Limiter) *restClient {
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &restClient{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		key:     key,
		secret:  secret,
		client:  client,
		limiter: limiter,
		now:     time.Now,
	}
}

func (c *restClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// do sends one request and decodes the body into out. Signed requests carry
// timestamp and recvWindow, and the signature is appended last.
func (c *restClient) do(ctx context.Context, method, path string, params url.Values, sec security, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait rate limiter")
	}

	if params == nil {
		params = url.Values{}
	}
	if sec == securitySigned {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(_recvWindow))
	}
	query := params.Encode()
	if sec == securitySigned {
		query += "&signature=" + c.sign(query)
	}

	endpoint := c.baseUrl + path
	if query != "" {
		endpoint += "?" + query
	}

	ctx, cancel := context.WithTimeout(ctx, _requestTimeout)
	defer cancel()
	r, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if sec != securityNone {
		r.Header.Set("X-MBX-APIKEY", c.key)
	}

	resp, err := c.client.Do(r)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return errors.Wrapf(exception.ErrInResponseError, "%s %s, status: %d", method, path, resp.StatusCode)
		}
		return errors.Wrapf(exception.ErrInResponseError, "%s %s, status: %d, code: %d, msg: %s", method, path, resp.StatusCode, apiErr.Code, apiErr.Msg)
	}

	if out == nil {
		return nil
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// contracts loads every trading spot symbol as a contract.
func (c *restClient) contracts(ctx context.Context, gatewayName string) ([]model.Contract, error) {
	var info exchangeInfo
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, securityNone, &info); err != nil {
		return nil, err
	}

	result := make([]model.Contract, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "" && s.Status != "TRADING" {
			continue
		}
		contract := model.Contract{
			GatewayName: gatewayName,
			Symbol:      s.Symbol,
			Exchange:    enum.ExchangeBinance,
			Name:        s.BaseAsset + "/" + s.QuoteAsset,
			Product:     enum.ProductSpot,
			Size:        decimal.NewFromInt(1),
			HistoryData: true,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				contract.PriceTick = parseDecimal(f.TickSize)
			case "LOT_SIZE":
				contract.MinVolume = parseDecimal(f.StepSize)
				if contract.MinVolume.IsZero() {
					contract.MinVolume = parseDecimal(f.MinQty)
				}
			case "NOTIONAL", "MIN_NOTIONAL":
				contract.MinNotional = parseDecimal(f.MinNotional)
			}
		}
		result = append(result, contract)
	}
	return result, nil
}

func (c *restClient) account(ctx context.Context) (accountInfo, error) {
	var info accountInfo
	err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, securitySigned, &info)
	return info, err
}

// newClientOrderID returns a 32 character id, within the venue's 36 limit.
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func orderParams(clientID string, req model.OrderRequest) (url.Values, error) {
	typ, tif, ok := binanceOrderType(req.Type)
	if !ok {
		return nil, errors.Wrapf(exception.ErrOrderUnsupportedType, "type: %s", req.Type)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", binanceSide(req.Direction))
	params.Set("type", typ)
	params.Set("quantity", req.Volume.String())
	params.Set("newClientOrderId", clientID)
	if typ == "LIMIT" {
		params.Set("timeInForce", tif)
		params.Set("price", req.Price.String())
	}
	return params, nil
}

func (c *restClient) placeOrder(ctx context.Context, clientID string, req model.OrderRequest) (orderAck, error) {
	var ack orderAck
	params, err := orderParams(clientID, req)
	if err != nil {
		return ack, err
	}
	err = c.do(ctx, http.MethodPost, "/api/v3/order", params, securitySigned, &ack)
	return ack, err
}

func (c *restClient) cancelOrder(ctx context.Context, req model.CancelRequest) error {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("origClientOrderId", req.OrderID)
	return c.do(ctx, http.MethodDelete, "/api/v3/order", params, securitySigned, nil)
}

// klines pages through [req.Start, req.End] in batches of _klineLimit rows.
func (c *restClient) klines(ctx context.Context, gatewayName string, req model.HistoryRequest) ([]model.Bar, error) {
	interval, ok := binanceInterval(req.Interval)
	if !ok {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "interval: %s", req.Interval)
	}

	var bars []model.Bar
	start := req.Start
	for !start.After(req.End) {
		params := url.Values{}
		params.Set("symbol", req.Symbol)
		params.Set("interval", interval)
		params.Set("startTime", formatMillis(start))
		params.Set("endTime", formatMillis(req.End))
		params.Set("limit", strconv.Itoa(_klineLimit))

		var rows []kline
		if err := c.do(ctx, http.MethodGet, "/api/v3/klines", params, securityNone, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			b, err := rowToBar(gatewayName, req, row)
			if err != nil {
				return nil, err
			}
			bars = append(bars, b)
		}

		last := bars[len(bars)-1].Datetime
		if len(rows) < _klineLimit {
			break
		}
		start = last.Add(req.Interval.Duration())
	}
	return bars, nil
}

func rowToBar(gatewayName string, req model.HistoryRequest, row kline) (model.Bar, error) {
	ts, err := row.openTime()
	if err != nil {
		return model.Bar{}, err
	}
	b := model.Bar{
		GatewayName: gatewayName,
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		Datetime:    ts.In(req.Start.Location()),
		Interval:    req.Interval,
	}
	fields := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
	for i, f := range fields {
		if *f, err = row.decimal(i + 1); err != nil {
			return model.Bar{}, err
		}
	}
	if b.Turnover, err = row.decimal(7); err != nil {
		return model.Bar{}, err
	}
	return b, nil
}

func (c *restClient) newListenKey(ctx context.Context) (string, error) {
	var key listenKey
	if err := c.do(ctx, http.MethodPost, "/api/v3/userDataStream", nil, securityAPIKey, &key); err != nil {
		return "", err
	}
	return key.ListenKey, nil
}

func (c *restClient) keepAliveListenKey(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("listenKey", key)
	return c.do(ctx, http.MethodPut, "/api/v3/userDataStream", params, securityAPIKey, nil)
}
