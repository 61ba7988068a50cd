package hyperliquid

const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"
)

// AssetInfo is one entry of the perp universe returned by the meta endpoint.
type AssetInfo struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated,omitempty"`
}

type Meta struct {
	Universe []AssetInfo `json:"universe"`
}

// AssetCtx carries live per-asset market state (funding, OI, mark price).
type AssetCtx struct {
	Funding      string   `json:"funding"`
	OpenInterest string   `json:"openInterest"`
	MarkPx       string   `json:"markPx"`
	MidPx        string   `json:"midPx"`
	OraclePx     string   `json:"oraclePx"`
	PrevDayPx    string   `json:"prevDayPx"`
	DayNtlVlm    string   `json:"dayNtlVlm"`
	ImpactPxs    []string `json:"impactPxs"`
}

func (a AssetCtx) FundingFloat() float64      { return parseF(a.Funding) }
func (a AssetCtx) OpenInterestFloat() float64 { return parseF(a.OpenInterest) }
func (a AssetCtx) MarkPxFloat() float64       { return parseF(a.MarkPx) }
func (a AssetCtx) DayNtlVlmFloat() float64    { return parseF(a.DayNtlVlm) }

type MarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUsd     string `json:"totalRawUsd"`
	TotalMarginUsed string `json:"totalMarginUsed"`
}

type PositionLeverage struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// AssetPosition wraps one open perp position in the user state payload.
type AssetPosition struct {
	Type     string `json:"type"`
	Position struct {
		Coin           string           `json:"coin"`
		Szi            string           `json:"szi"`
		EntryPx        string           `json:"entryPx"`
		PositionValue  string           `json:"positionValue"`
		UnrealizedPnl  string           `json:"unrealizedPnl"`
		ReturnOnEquity string           `json:"returnOnEquity"`
		Leverage       PositionLeverage `json:"leverage"`
		LiquidationPx  string           `json:"liquidationPx"`
		MarginUsed     string           `json:"marginUsed"`
	} `json:"position"`
}

type UserState struct {
	MarginSummary      MarginSummary   `json:"marginSummary"`
	CrossMarginSummary MarginSummary   `json:"crossMarginSummary"`
	Withdrawable       string          `json:"withdrawable"`
	AssetPositions     []AssetPosition `json:"assetPositions"`
	Time               int64           `json:"time"`
}

type SpotBalance struct {
	Coin     string `json:"coin"`
	Total    string `json:"total"`
	Hold     string `json:"hold"`
	EntryNtl string `json:"entryNtl"`
}

type SpotUserState struct {
	Balances []SpotBalance `json:"balances"`
}

// Candle is one OHLCV bar from the candleSnapshot endpoint.
type Candle struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Trades    int64  `json:"n"`
}

type L2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type L2Book struct {
	Coin   string       `json:"coin"`
	Time   int64        `json:"time"`
	Levels [2][]L2Level `json:"levels"` // [bids, asks]
}

// Fill is one entry of the user fill history.
type Fill struct {
	Coin          string `json:"coin"`
	Px            string `json:"px"`
	Sz            string `json:"sz"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	StartPosition string `json:"startPosition"`
	Dir           string `json:"dir"` // "Open Long", "Close Short", ...
	ClosedPnl     string `json:"closedPnl"`
	Hash          string `json:"hash"`
	Oid           int64  `json:"oid"`
	Crossed       bool   `json:"crossed"`
	Fee           string `json:"fee"`
	FeeToken      string `json:"feeToken"`
}

// Position is the parsed, numeric view of an open perp position.
type Position struct {
	Symbol        string
	Size          float64 // signed: >0 long, <0 short
	EntryPrice    float64
	PositionValue float64
	UnrealizedPnl float64
	Leverage      int
}

// Side reports "long" or "short" from the sign of Size.
func (p Position) Side() string {
	if p.Size < 0 {
		return "short"
	}
	return "long"
}

// OrderStatus is one per-order status inside an exchange response.
type OrderStatus struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     int64  `json:"oid"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

// ExchangeResponse is the envelope returned by the exchange endpoint.
type ExchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []OrderStatus `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// OrderResult is the adapter-facing outcome of a market order.
type OrderResult struct {
	Filled   bool
	TotalSz  float64
	AvgPx    float64
	Oid      int64
	ErrorMsg string
}
