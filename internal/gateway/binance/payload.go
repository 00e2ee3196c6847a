package binance

import (
	"encoding/json"
	"strconv"
	"time"

	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type exchangeInfo struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize,omitempty"`
	MinQty      string `json:"minQty,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	MinNotional string `json:"minNotional,omitempty"`
}

type accountInfo struct {
	Balances []balance `json:"balances"`
}

type balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type orderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Status        string `json:"status"`
}

type listenKey struct {
	ListenKey string `json:"listenKey"`
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

// streamEnvelope wraps every message of the combined stream endpoint.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type tradePrint struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	TradeID       int64  `json:"t"`
	Price         string `json:"p"`
	Quantity      string `json:"q"`
	TradeTime     int64  `json:"T"`
	IsBuyerMarket bool   `json:"m"`
	Ignore        bool   `json:"M"`
}

type partialDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"` // [0]price [1]quantity
	Asks         [][2]string `json:"asks"` // [0]price [1]quantity
}

// userEvent reads the event type of a user data message. Binance reuses
// keys that differ only in case, so payload structs declare both spellings
// to keep case-insensitive decoding from mixing them.
type userEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}

type executionReport struct {
	EventType         string `json:"e"`
	EventTime         int64  `json:"E"`
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	Side              string `json:"S"`
	OrderType         string `json:"o"`
	TimeInForce       string `json:"f"`
	Quantity          string `json:"q"`
	Price             string `json:"p"`
	ExecutionType     string `json:"x"`
	Status            string `json:"X"`
	RejectReason      string `json:"r"`
	OrigClientOrderID string `json:"C"`
	LastQuantity      string `json:"l"`
	CumulativeQty     string `json:"z"`
	LastPrice         string `json:"L"`
	Commission        string `json:"n"`
	TransactTime      int64  `json:"T"`
	TradeID           int64  `json:"t"`
	QuoteOrderQty     string `json:"Q"`
	StopPrice         string `json:"P"`
	IcebergQty        string `json:"F"`
	CreateTime        int64  `json:"O"`
	CommissionAsset   string `json:"N"`
	CumulativeQuote   string `json:"Z"`
	IsMaker           bool   `json:"m"`
	Ignore            bool   `json:"M"`
	OrderID           int64  `json:"i"`
	IgnoreI           int64  `json:"I"`
	Working           bool   `json:"w"`
	WorkingTime       int64  `json:"W"`
}

// orderID returns the client id the order was placed with. Cancel reports
// carry the original id in C and a fresh one in c.
func (r executionReport) orderID() string {
	if r.OrigClientOrderID != "" {
		return r.OrigClientOrderID
	}
	return r.ClientOrderID
}

type accountPosition struct {
	EventType  string `json:"e"`
	EventTime  int64  `json:"E"`
	UpdateTime int64  `json:"u"`
	Balances   []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

// kline is one row of the klines endpoint: open time, open, high, low,
// close, volume, close time, quote volume, ...
type kline []any

func (k kline) openTime() (time.Time, error) {
	if len(k) < 8 {
		return time.Time{}, errors.Wrapf(exception.ErrInResponseError, "short kline row: %d", len(k))
	}
	ms, ok := k[0].(float64)
	if !ok {
		return time.Time{}, errors.Wrapf(exception.ErrInResponseError, "kline open time: %v", k[0])
	}
	return time.UnixMilli(int64(ms)), nil
}

func (k kline) decimal(i int) (decimal.Decimal, error) {
	switch v := k[i].(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, errors.Wrapf(exception.ErrInResponseError, "kline field %d: %v", i, v)
	}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
