package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jacqueswww/btfd/internal/config"
)

const (
	valrBaseURL    = "https://api.valr.com/v1/"
	valrBucketsURL = "https://api.valr.com"
)

// VALR 为 VALR 交易所的原生 REST 网关。
// 请求签名为 HMAC-SHA512(timestamp + verb + path + body)。
type VALR struct {
	cfg     config.StrategyConfig
	logger  *zap.Logger
	client  *http.Client
	base    string
	buckets string
}

// NewVALR 创建 VALR 网关。
func NewVALR(cfg config.StrategyConfig, logger *zap.Logger) *VALR {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VALR{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		base:    valrBaseURL,
		buckets: valrBucketsURL,
	}
}

// Pair 返回交易对符号，如 BTCZAR。
func (v *VALR) Pair() string {
	return v.cfg.Pair()
}

// UsableFiatBalance 返回按 balance_limit 缩放后的法币余额。
func (v *VALR) UsableFiatBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := v.get(ctx, "account/balances", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var balances []struct {
		Currency string `json:"currency"`
		Total    string `json:"total"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return decimal.Zero, fmt.Errorf("valr: 解析余额响应失败: %w", err)
	}

	for _, account := range balances {
		if account.Currency != v.cfg.FiatCurrencyCode {
			continue
		}
		total, err := decimal.NewFromString(account.Total)
		if err != nil {
			return decimal.Zero, fmt.Errorf("valr: 余额数值非法 %q: %w", account.Total, err)
		}
		return total.Mul(v.cfg.BalanceLimit), nil
	}

	return decimal.Zero, fmt.Errorf("valr: 账户中不存在货币 %s", v.cfg.FiatCurrencyCode)
}

// MarketSummary 返回标准化的实时行情摘要。
func (v *VALR) MarketSummary(ctx context.Context, pair string) (MarketSummary, error) {
	body, err := v.get(ctx, fmt.Sprintf("public/%s/marketsummary", pair), nil)
	if err != nil {
		return MarketSummary{}, err
	}

	var raw struct {
		Created         string `json:"created"`
		HighPrice       string `json:"highPrice"`
		LowPrice        string `json:"lowPrice"`
		LastTradedPrice string `json:"lastTradedPrice"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return MarketSummary{}, fmt.Errorf("valr: 解析行情摘要失败: %w", err)
	}

	summary := MarketSummary{Created: parseValrTime(raw.Created)}
	if summary.High, err = decimal.NewFromString(raw.HighPrice); err != nil {
		return MarketSummary{}, fmt.Errorf("valr: highPrice 非法: %w", err)
	}
	if summary.Low, err = decimal.NewFromString(raw.LowPrice); err != nil {
		return MarketSummary{}, fmt.Errorf("valr: lowPrice 非法: %w", err)
	}
	if summary.LastTradedPrice, err = decimal.NewFromString(raw.LastTradedPrice); err != nil {
		return MarketSummary{}, fmt.Errorf("valr: lastTradedPrice 非法: %w", err)
	}

	return summary, nil
}

// DailyOHLC 拉取日线K线。buckets 接口不在 /v1 下且无需鉴权。
func (v *VALR) DailyOHLC(ctx context.Context, pair string, from, to time.Time) ([]Candle, error) {
	endpoint := fmt.Sprintf("%s/%s/buckets", v.buckets, pair)
	params := url.Values{}
	params.Set("startTime", strconv.FormatInt(from.Unix(), 10))
	params.Set("endTime", strconv.FormatInt(to.Unix(), 10))
	params.Set("periodSeconds", "86400")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("valr: 构造K线请求失败: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("valr: K线请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("valr: 读取K线响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		v.logger.Error("VALR K线请求返回异常状态",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("valr: K线请求状态 %d", resp.StatusCode)
	}

	var raw []struct {
		StartTime string `json:"startTime"`
		Open      string `json:"open"`
		High      string `json:"high"`
		Low       string `json:"low"`
		Close     string `json:"close"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("valr: 解析K线响应失败: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, bucket := range raw {
		candle := Candle{StartTime: parseValrTime(bucket.StartTime)}
		if candle.Open, err = decimal.NewFromString(bucket.Open); err != nil {
			return nil, fmt.Errorf("valr: K线 open 非法: %w", err)
		}
		if candle.High, err = decimal.NewFromString(bucket.High); err != nil {
			return nil, fmt.Errorf("valr: K线 high 非法: %w", err)
		}
		if candle.Low, err = decimal.NewFromString(bucket.Low); err != nil {
			return nil, fmt.Errorf("valr: K线 low 非法: %w", err)
		}
		if candle.Close, err = decimal.NewFromString(bucket.Close); err != nil {
			return nil, fmt.Errorf("valr: K线 close 非法: %w", err)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// OpenOrderIDs 返回指定交易对的全部挂单ID。
func (v *VALR) OpenOrderIDs(ctx context.Context, pair string) ([]string, error) {
	body, err := v.get(ctx, "orders/open", nil)
	if err != nil {
		return nil, err
	}

	var orders []struct {
		OrderID      string `json:"orderId"`
		CurrencyPair string `json:"currencyPair"`
	}
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("valr: 解析挂单响应失败: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		if pair != "" && order.CurrencyPair != pair {
			continue
		}
		ids = append(ids, order.OrderID)
	}

	return ids, nil
}

// CloseOrder 撤销一笔挂单。
func (v *VALR) CloseOrder(ctx context.Context, pair, orderID string) error {
	payload := map[string]string{
		"pair":    pair,
		"orderId": orderID,
	}
	_, err := v.delete(ctx, "orders/order", payload)
	return err
}

// PlaceBuyOrder 提交一笔限价买单。
func (v *VALR) PlaceBuyOrder(ctx context.Context, pair string, price, quantity decimal.Decimal) error {
	payload := map[string]string{
		"side":            "BUY",
		"quantity":        quantity.String(),
		"price":           price.String(),
		"pair":            pair,
		"customerOrderId": strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	_, err := v.post(ctx, "orders/limit", payload)
	return err
}

func (v *VALR) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return v.request(ctx, http.MethodGet, path, nil, params)
}

func (v *VALR) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return v.request(ctx, http.MethodPost, path, body, nil)
}

func (v *VALR) patch(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return v.request(ctx, http.MethodPatch, path, body, nil)
}

func (v *VALR) delete(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return v.request(ctx, http.MethodDelete, path, body, nil)
}

func (v *VALR) request(ctx context.Context, verb, path string, body interface{}, params url.Values) ([]byte, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("valr: 序列化请求体失败: %w", err)
		}
		payload = encoded
	}

	endpoint := v.base + path
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("valr: 非法请求路径 %q: %w", path, err)
	}
	if params != nil {
		parsed.RawQuery = params.Encode()
	}

	timestamp := time.Now().UnixMilli()
	signature := v.sign(timestamp, verb, parsed.Path, payload)

	req, err := http.NewRequestWithContext(ctx, verb, parsed.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("valr: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VALR-API-KEY", v.cfg.APIKey)
	req.Header.Set("X-VALR-SIGNATURE", signature)
	req.Header.Set("X-VALR-TIMESTAMP", strconv.FormatInt(timestamp, 10))

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("valr: 请求 %s %s 失败: %w", verb, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("valr: 读取响应失败: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		v.logger.Error("VALR 请求返回异常状态",
			zap.String("verb", verb),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return nil, fmt.Errorf("valr: 请求 %s %s 状态 %d", verb, path, resp.StatusCode)
	}

	// 空响应体视为成功确认。
	return respBody, nil
}

func (v *VALR) sign(timestamp int64, verb, path string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.APISecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte(strings.ToUpper(verb)))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// parseValrTime 宽松解析 VALR 的时间字段，失败时返回零值。
func parseValrTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	if epoch, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC()
	}
	return time.Time{}
}

var _ Gateway = (*VALR)(nil)
