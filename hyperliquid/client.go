package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client is a typed façade over the venue's info and exchange endpoints.
// All reads are issued for the master account; all writes are signed by the
// API wallet. The two addresses are distinct on purpose.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	masterAccount string
	signer        *signer
	log           zerolog.Logger

	mu     sync.RWMutex
	assets map[string]AssetMeta // symbol -> meta, filled at construction
}

type AssetMeta struct {
	ID          int
	SzDecimals  int
	MaxLeverage int
	MinSz       float64
}

// NewClient builds the client and fetches the perp universe. The meta fetch
// runs under the standard rate-limit retry regime: the venue throttles cold
// clients.
func NewClient(ctx context.Context, masterAccount, privateKey string, testnet bool, log zerolog.Logger) (*Client, error) {
	baseURL := MainnetAPIURL
	if testnet {
		baseURL = TestnetAPIURL
	}

	sg, err := newSigner(privateKey, !testnet)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		masterAccount: masterAccount,
		signer:        sg,
		log:           log,
		assets:        make(map[string]AssetMeta),
	}

	meta, err := c.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}
	c.loadMeta(meta)

	c.log.Info().
		Int("assets", len(c.assets)).
		Str("wallet", sg.address().Hex()).
		Bool("testnet", testnet).
		Msg("venue client ready")

	return c, nil
}

func (c *Client) loadMeta(meta *Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range meta.Universe {
		c.assets[a.Name] = AssetMeta{
			ID:          i,
			SzDecimals:  a.SzDecimals,
			MaxLeverage: a.MaxLeverage,
			MinSz:       math.Pow(10, -float64(a.SzDecimals)),
		}
	}
}

// Asset returns the cached meta for a symbol.
func (c *Client) Asset(symbol string) (AssetMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[symbol]
	if !ok {
		return AssetMeta{}, fmt.Errorf("unknown asset %q", symbol)
	}
	return a, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	c.log.Warn().Msgf(format, args...)
}

// post sends one JSON request and maps HTTP 429 to ErrRateLimited.
func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", path, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, truncateBody(respBody))
	}

	return respBody, nil
}

func truncateBody(b []byte) string {
	s := string(b)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

// info issues one info-endpoint query with retry and decodes into out.
func (c *Client) info(ctx context.Context, what string, payload interface{}, out interface{}) error {
	body, err := withRetry(ctx, c.logf, what, func() ([]byte, error) {
		return c.post(ctx, "/info", payload)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func (c *Client) Meta(ctx context.Context) (*Meta, error) {
	var meta Meta
	err := c.info(ctx, "meta", map[string]string{"type": "meta"}, &meta)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// MetaAndAssetCtxs returns the universe together with live asset contexts
// (funding, open interest, mark price). The wire shape is a two-element
// array.
func (c *Client) MetaAndAssetCtxs(ctx context.Context) (*Meta, []AssetCtx, error) {
	var raw []json.RawMessage
	if err := c.info(ctx, "metaAndAssetCtxs", map[string]string{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, nil, err
	}
	if len(raw) != 2 {
		return nil, nil, fmt.Errorf("metaAndAssetCtxs: expected 2 elements, got %d", len(raw))
	}
	var meta Meta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, nil, fmt.Errorf("decode meta: %w", err)
	}
	var ctxs []AssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, nil, fmt.Errorf("decode asset ctxs: %w", err)
	}
	return &meta, ctxs, nil
}

// AllMids returns the current mid price for every listed symbol.
func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	if err := c.info(ctx, "allMids", map[string]string{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}
	mids := make(map[string]float64, len(raw))
	for sym, px := range raw {
		if strings.HasPrefix(sym, "@") {
			continue // spot index entries
		}
		mids[sym] = parseF(px)
	}
	return mids, nil
}

// CandlesSnapshot fetches the most recent `limit` bars of the interval.
func (c *Client) CandlesSnapshot(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	stepMs, ok := intervalMs[interval]
	if !ok {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	endMs := time.Now().UTC().UnixMilli()
	startMs := endMs - int64(limit)*stepMs

	var candles []Candle
	err := c.info(ctx, "candleSnapshot", map[string]interface{}{
		"type": "candleSnapshot",
		"req": map[string]interface{}{
			"coin":      symbol,
			"interval":  interval,
			"startTime": startMs,
			"endTime":   endMs,
		},
	}, &candles)
	if err != nil {
		return nil, err
	}
	return candles, nil
}

var intervalMs = map[string]int64{
	"1m":  60_000,
	"5m":  5 * 60_000,
	"15m": 15 * 60_000,
	"1h":  60 * 60_000,
	"4h":  4 * 60 * 60_000,
	"1d":  24 * 60 * 60_000,
}

func (c *Client) L2Snapshot(ctx context.Context, symbol string) (*L2Book, error) {
	var book L2Book
	err := c.info(ctx, "l2Book", map[string]string{"type": "l2Book", "coin": symbol}, &book)
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) UserState(ctx context.Context) (*UserState, error) {
	var st UserState
	err := c.info(ctx, "clearinghouseState",
		map[string]string{"type": "clearinghouseState", "user": c.masterAccount}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) SpotUserState(ctx context.Context) (*SpotUserState, error) {
	var st SpotUserState
	err := c.info(ctx, "spotClearinghouseState",
		map[string]string{"type": "spotClearinghouseState", "user": c.masterAccount}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UserFills returns recent fills for the master account, newest first on the
// wire; callers sort as needed.
func (c *Client) UserFills(ctx context.Context) ([]Fill, error) {
	var fills []Fill
	err := c.info(ctx, "userFills",
		map[string]string{"type": "userFills", "user": c.masterAccount}, &fills)
	if err != nil {
		return nil, err
	}
	return fills, nil
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
