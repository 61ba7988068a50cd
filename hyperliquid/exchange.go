package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const DefaultSlippage = 0.01

type exchangePayload struct {
	Action       interface{} `json:"action"`
	Nonce        uint64      `json:"nonce"`
	Signature    signature   `json:"signature"`
	VaultAddress *string     `json:"vaultAddress"`
}

// postAction signs and submits one exchange action.
func (c *Client) postAction(ctx context.Context, action interface{}) (*ExchangeResponse, error) {
	nonce := uint64(time.Now().UnixMilli())

	sig, err := c.signer.sign(action, nonce)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/exchange", exchangePayload{
		Action:    action,
		Nonce:     nonce,
		Signature: sig,
	})
	if err != nil {
		return nil, err
	}

	var resp ExchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	if resp.Status != "ok" {
		return &resp, fmt.Errorf("exchange rejected action: %s", resp.Status)
	}
	return &resp, nil
}

// SetLeverage updates the leverage for a symbol, cross margin by default.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error {
	asset, err := c.Asset(symbol)
	if err != nil {
		return err
	}
	if leverage > asset.MaxLeverage {
		c.log.Warn().
			Str("symbol", symbol).
			Int("requested", leverage).
			Int("max", asset.MaxLeverage).
			Msg("requested leverage above asset maximum, clamping")
		leverage = asset.MaxLeverage
	}

	_, err = c.postAction(ctx, leverageAction{
		Type:     "updateLeverage",
		Asset:    asset.ID,
		IsCross:  isCross,
		Leverage: leverage,
	})
	return err
}

// MarketOpen submits an aggressive IoC limit order, the venue's market-order
// idiom. Size must already be rounded by the caller.
func (c *Client) MarketOpen(ctx context.Context, symbol string, isBuy bool, size, slippage float64) (*OrderResult, error) {
	return c.marketOrder(ctx, symbol, isBuy, size, slippage, false)
}

// MarketClose closes the live position on symbol with a reduce-only market
// order on the opposite side. Returns (nil, nil) when no position is open.
func (c *Client) MarketClose(ctx context.Context, symbol string) (*OrderResult, error) {
	st, err := c.UserState(ctx)
	if err != nil {
		return nil, fmt.Errorf("user state before close: %w", err)
	}

	pos, ok := FindPosition(extractPositions(st), symbol)
	if !ok {
		return nil, nil
	}

	size := pos.Size
	isBuy := size < 0 // closing a short buys back
	if size < 0 {
		size = -size
	}

	return c.marketOrder(ctx, pos.Symbol, isBuy, size, DefaultSlippage, true)
}

func (c *Client) marketOrder(ctx context.Context, symbol string, isBuy bool, size, slippage float64, reduceOnly bool) (*OrderResult, error) {
	asset, err := c.Asset(symbol)
	if err != nil {
		return nil, err
	}

	mids, err := c.AllMids(ctx)
	if err != nil {
		return nil, fmt.Errorf("mids for order price: %w", err)
	}
	mid, ok := mids[symbol]
	if !ok || mid <= 0 {
		return nil, fmt.Errorf("no mid price for %s", symbol)
	}

	px := SlippagePrice(mid, isBuy, slippage, asset.SzDecimals)
	size = RoundSize(size, asset.SzDecimals, asset.MinSz)

	resp, err := c.postAction(ctx, orderAction{
		Type: "order",
		Orders: []wireOrder{{
			Asset:      asset.ID,
			IsBuy:      isBuy,
			Price:      formatF(px),
			Size:       formatF(size),
			ReduceOnly: reduceOnly,
			Type:       orderType{Limit: limitTif{Tif: "Ioc"}},
		}},
		Grouping: "na",
	})
	if err != nil {
		return nil, err
	}

	statuses := resp.Response.Data.Statuses
	if len(statuses) == 0 {
		return nil, fmt.Errorf("order accepted but no status returned")
	}

	status := statuses[0]
	if status.Error != "" {
		return &OrderResult{ErrorMsg: status.Error}, nil
	}
	if status.Filled != nil {
		return &OrderResult{
			Filled:  true,
			TotalSz: parseF(status.Filled.TotalSz),
			AvgPx:   parseF(status.Filled.AvgPx),
			Oid:     status.Filled.Oid,
		}, nil
	}
	if status.Resting != nil {
		// IoC should never rest; treat as unfilled.
		return &OrderResult{Oid: status.Resting.Oid}, nil
	}
	return &OrderResult{}, nil
}

func formatF(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
