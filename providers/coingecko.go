package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CoinGecko is the market-cap and stablecoin oracle used by the screener.
// It is not part of the ticker registry: it answers batch queries, not
// per-symbol snapshots.
type CoinGecko struct {
	http   *http.Client
	apiKey string
}

func NewCoinGecko(apiKey string) *CoinGecko {
	return &CoinGecko{
		http:   &http.Client{Timeout: 10 * time.Second},
		apiKey: apiKey,
	}
}

// MarketInfo is the subset of CoinGecko market data the screener consumes.
type MarketInfo struct {
	MarketCapUSD float64
	Volume24hUSD float64
}

// symbolToID maps venue symbols to CoinGecko coin ids for the assets the
// venue commonly lists. Symbols missing here simply get no market cap.
var symbolToID = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana", "AVAX": "avalanche-2",
	"BNB": "binancecoin", "XRP": "ripple", "ADA": "cardano", "DOGE": "dogecoin",
	"DOT": "polkadot", "LINK": "chainlink", "MATIC": "matic-network",
	"POL": "polygon-ecosystem-token", "LTC": "litecoin", "ATOM": "cosmos",
	"UNI": "uniswap", "APT": "aptos", "ARB": "arbitrum", "OP": "optimism",
	"NEAR": "near", "INJ": "injective-protocol", "SUI": "sui", "SEI": "sei-network",
	"TIA": "celestia", "TON": "the-open-network", "AAVE": "aave", "MKR": "maker",
	"LDO": "lido-dao", "CRV": "curve-dao-token", "SNX": "havven",
	"FIL": "filecoin", "RNDR": "render-token", "FET": "fetch-ai",
	"TAO": "bittensor", "WLD": "worldcoin-wld", "JUP": "jupiter-exchange-solana",
	"PYTH": "pyth-network", "JTO": "jito-governance-token", "ENA": "ethena",
	"W": "wormhole", "ONDO": "ondo-finance", "STX": "blockstack",
	"HYPE": "hyperliquid", "PEPE": "pepe", "KPEPE": "pepe", "WIF": "dogwifcoin",
	"BONK": "bonk", "SHIB": "shiba-inu", "KSHIB": "shiba-inu",
	"TRX": "tron", "BCH": "bitcoin-cash", "ETC": "ethereum-classic",
	"XLM": "stellar", "ALGO": "algorand", "ICP": "internet-computer",
	"HBAR": "hedera-hashgraph", "VET": "vechain", "GRT": "the-graph",
	"IMX": "immutable-x", "SAND": "the-sandbox", "MANA": "decentraland",
	"GALA": "gala", "AXS": "axie-infinity", "DYDX": "dydx-chain",
	"GMX": "gmx", "BLUR": "blur", "EIGEN": "eigenlayer", "STRK": "starknet",
}

var stablecoins = map[string]bool{
	"USDT": true, "USDC": true, "DAI": true, "BUSD": true, "TUSD": true,
	"USDP": true, "GUSD": true, "FRAX": true, "LUSD": true, "USDD": true,
	"FDUSD": true, "PYUSD": true, "USDE": true,
}

// IsStablecoin reports whether a symbol is a known stablecoin.
func (cg *CoinGecko) IsStablecoin(symbol string) bool {
	return stablecoins[strings.ToUpper(symbol)]
}

// CoinID returns the CoinGecko id for a venue symbol, or "".
func (cg *CoinGecko) CoinID(symbol string) string {
	return symbolToID[strings.ToUpper(symbol)]
}

// MarketData batch-fetches market caps for the given venue symbols.
// Unmapped symbols are silently absent from the result.
func (cg *CoinGecko) MarketData(ctx context.Context, symbols []string) (map[string]MarketInfo, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		if id := cg.CoinID(sym); id != "" {
			ids = append(ids, id)
			idToSymbol[id] = sym
		}
	}
	if len(ids) == 0 {
		return map[string]MarketInfo{}, nil
	}

	out := make(map[string]MarketInfo, len(ids))

	// The markets endpoint pages at 250 ids.
	for start := 0; start < len(ids); start += 250 {
		end := start + 250
		if end > len(ids) {
			end = len(ids)
		}

		url := fmt.Sprintf(
			"https://api.coingecko.com/api/v3/coins/markets?vs_currency=usd&ids=%s&per_page=250",
			strings.Join(ids[start:end], ","))

		var rows []struct {
			ID          string  `json:"id"`
			MarketCap   float64 `json:"market_cap"`
			TotalVolume float64 `json:"total_volume"`
		}
		if err := cg.get(ctx, url, &rows); err != nil {
			return nil, fmt.Errorf("coingecko markets: %w", err)
		}

		for _, row := range rows {
			sym, ok := idToSymbol[row.ID]
			if !ok {
				continue
			}
			out[sym] = MarketInfo{
				MarketCapUSD: row.MarketCap,
				Volume24hUSD: row.TotalVolume,
			}
		}
	}

	return out, nil
}

func (cg *CoinGecko) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if cg.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", cg.apiKey)
	}

	resp, err := cg.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: status %d: %.120s", url, resp.StatusCode, string(body))
	}

	return decodeJSON(resp.Body, out)
}
