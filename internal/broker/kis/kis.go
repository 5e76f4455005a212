package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/ratelimit"
	"pullback-trading-bot/internal/types"
)

const (
	defaultBaseURL = "https://openapi.koreainvestment.com:9443"
	bufferSize     = 600 // covers a full session of 1-minute bars
)

// Params configures the broker client. Mode DRY_RUN simulates order fills;
// DataSource STATIC serves a synthetic session instead of calling the API.
type Params struct {
	Mode       string
	AppKey     string
	AppSecret  string
	AccountNo  string
	BaseURL    string
	DataSource string
}

// Client talks to a KIS-style REST brokerage API. All requests pass through
// a shared rate limiter; minute bars land in the per-symbol cache with
// last-write-wins dedup before anyone reads them.
type Client struct {
	p       Params
	http    *http.Client
	limiter *ratelimit.Limiter
	cache   *barCache

	tokenMu  sync.Mutex
	token    string
	tokenExp time.Time

	orderSeq atomic.Int64
}

var _ interfaces.Broker = (*Client)(nil)

func NewClient(p Params) *Client {
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURL
	}
	return &Client{
		p:       p,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: ratelimit.NewLimiter("kis", 60),
		cache:   newBarCache(),
	}
}

// Start prepares per-symbol buffers. STATIC mode seeds a synthetic session;
// LIVE mode primes each buffer from the minute-chart endpoint.
func (c *Client) Start(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		c.cache.initBuffer(sym, bufferSize)
	}
	if c.p.DataSource == "STATIC" {
		for _, sym := range symbols {
			for _, b := range staticSession(sym) {
				c.cache.addBar(sym, b)
			}
		}
		return nil
	}
	for _, sym := range symbols {
		if err := c.refreshBars(ctx, sym); err != nil {
			return fmt.Errorf("prime bars for %s: %w", sym, err)
		}
	}
	return nil
}

func (c *Client) Stop(ctx context.Context) {
	c.cache.clear()
	logger.Debug(ctx, "Broker stopped, bar cache cleared")
}

// RecentBars returns the last n cached 1-minute bars, refreshing from the
// API first in LIVE mode.
func (c *Client) RecentBars(ctx context.Context, symbol string, n int) ([]types.Bar, error) {
	if c.p.DataSource == "LIVE" {
		if err := c.refreshBars(ctx, symbol); err != nil {
			return nil, err
		}
	}
	return c.cache.getRecent(symbol, n)
}

// DayOpen returns the first cached bar's open for the trading day.
func (c *Client) DayOpen(ctx context.Context, symbol string) (float64, error) {
	b, ok := c.cache.firstBar(symbol)
	if !ok {
		return 0, fmt.Errorf("no opening bar for %s", symbol)
	}
	return b.Open, nil
}

// LTP returns the last traded price.
func (c *Client) LTP(ctx context.Context, symbol string) (float64, error) {
	if c.p.DataSource == "STATIC" {
		bars, err := c.cache.getRecent(symbol, 1)
		if err != nil {
			return 0, err
		}
		return bars[0].Close, nil
	}

	var out struct {
		Output struct {
			Price string `json:"stck_prpr"`
		} `json:"output"`
	}
	q := fmt.Sprintf("fid_cond_mrkt_div_code=J&fid_input_iscd=%s", symbol)
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-price", q, "FHKST01010100", &out); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(out.Output.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", out.Output.Price, err)
	}
	return price, nil
}

// PlaceOrder submits a cash order, or simulates one in DRY_RUN mode.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if c.p.Mode == "DRY_RUN" {
		id := fmt.Sprintf("DRY-%06d", c.orderSeq.Add(1))
		logger.Info(ctx, "Simulated order", "symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "order_id", id)
		return types.OrderResp{OrderID: id, Status: "COMPLETE", Message: "simulated"}, nil
	}

	trID := "TTTC0802U" // cash buy
	if req.Side == "SELL" {
		trID = "TTTC0801U"
	}
	body := map[string]string{
		"CANO":         c.p.AccountNo,
		"ACNT_PRDT_CD": "01",
		"PDNO":         req.Symbol,
		"ORD_DVSN":     "00",
		"ORD_QTY":      strconv.Itoa(req.Qty),
		"ORD_UNPR":     strconv.FormatFloat(req.Price, 'f', 0, 64),
	}
	var out struct {
		RtCd   string `json:"rt_cd"`
		Msg    string `json:"msg1"`
		Output struct {
			OrderNo string `json:"ODNO"`
		} `json:"output"`
	}
	if err := c.post(ctx, "/uapi/domestic-stock/v1/trading/order-cash", trID, body, &out); err != nil {
		return types.OrderResp{}, err
	}
	if out.RtCd != "0" {
		return types.OrderResp{}, fmt.Errorf("order rejected: %s", out.Msg)
	}
	return types.OrderResp{OrderID: out.Output.OrderNo, Status: "SUBMITTED", Message: out.Msg}, nil
}

// refreshBars pulls the latest minute bars and merges them into the cache.
func (c *Client) refreshBars(ctx context.Context, symbol string) error {
	var out struct {
		Output2 []struct {
			Date   string `json:"stck_bsop_date"`
			Hour   string `json:"stck_cntg_hour"`
			Open   string `json:"stck_oprc"`
			High   string `json:"stck_hgpr"`
			Low    string `json:"stck_lwpr"`
			Close  string `json:"stck_prpr"`
			Volume string `json:"cntg_vol"`
		} `json:"output2"`
	}
	q := fmt.Sprintf("fid_cond_mrkt_div_code=J&fid_input_iscd=%s&fid_input_hour_1=&fid_pw_data_incu_yn=Y", symbol)
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice", q, "FHKST03010200", &out); err != nil {
		return err
	}
	for _, row := range out.Output2 {
		bar, err := parseMinuteBar(row.Date, row.Hour, row.Open, row.High, row.Low, row.Close, row.Volume)
		if err != nil {
			logger.Warn(ctx, "Skipping malformed minute bar", "symbol", symbol, "error", err)
			continue
		}
		c.cache.addBar(symbol, bar)
	}
	return nil
}

func parseMinuteBar(date, hour, open, high, low, close_, volume string) (types.Bar, error) {
	ts, err := time.ParseInLocation("2006010215:04:05", date+hour[:2]+":"+hour[2:4]+":"+hour[4:6], time.FixedZone("KST", 32400))
	if err != nil {
		return types.Bar{}, err
	}
	o, err1 := strconv.ParseFloat(open, 64)
	h, err2 := strconv.ParseFloat(high, 64)
	l, err3 := strconv.ParseFloat(low, 64)
	cl, err4 := strconv.ParseFloat(close_, 64)
	v, err5 := strconv.ParseInt(volume, 10, 64)
	for _, e := range []error{err1, err2, err3, err4, err5} {
		if e != nil {
			return types.Bar{}, e
		}
	}
	return types.Bar{Ts: ts.Unix(), Open: o, High: h, Low: l, Close: cl, Vol: v}, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.p.AppKey,
		"appsecret":  c.p.AppSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.p.BaseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	c.token = out.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return c.token, nil
}

func (c *Client) get(ctx context.Context, path, query, trID string, out any) error {
	return c.call(ctx, http.MethodGet, path+"?"+query, trID, nil, out)
}

func (c *Client) post(ctx context.Context, path, trID string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, path, trID, b, out)
}

func (c *Client) call(ctx context.Context, method, pathAndQuery, trID string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.p.BaseURL+pathAndQuery, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.p.AppKey)
	req.Header.Set("appsecret", c.p.AppSecret)
	req.Header.Set("tr_id", trID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, pathAndQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.SignalRateLimited()
		return fmt.Errorf("%s rate limited", pathAndQuery)
	}
	c.limiter.ResetBackoff()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", pathAndQuery, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
