package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AlphaVantageProvider pulls quotes via GLOBAL_QUOTE. The macro trio is
// approximated from proxy tickers: VIXY for volatility, IEF-implied yield
// levels are not available on the free tier, so the 10y yield comes from
// the TREASURY_YIELD endpoint and the S&P day change from the SPY quote.
type AlphaVantageProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewAlphaVantageProvider builds the provider. A zero timeout defaults
// to 5s.
func NewAlphaVantageProvider(endpoint, apiKey string, timeout time.Duration) *AlphaVantageProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AlphaVantageProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ Provider = (*AlphaVantageProvider)(nil)

func (p *AlphaVantageProvider) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quotes upstream status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

type globalQuote struct {
	Quote struct {
		Price     string `json:"05. price"`
		ChangePct string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (p *AlphaVantageProvider) quote(ctx context.Context, symbol string) (price, changePct float64, err error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)

	body, err := p.get(ctx, q)
	if err != nil {
		return 0, 0, err
	}
	var parsed globalQuote
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, fmt.Errorf("parse quote for %s: %w", symbol, err)
	}
	price, err = strconv.ParseFloat(parsed.Quote.Price, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("quote for %s missing price", symbol)
	}
	changePct, _ = strconv.ParseFloat(strings.TrimSuffix(parsed.Quote.ChangePct, "%"), 64)
	return price, changePct, nil
}

// Quote returns the latest price for symbol.
func (p *AlphaVantageProvider) Quote(ctx context.Context, symbol string) (float64, error) {
	price, _, err := p.quote(ctx, symbol)
	return price, err
}

type treasuryYield struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Macro assembles VIX, the 10y treasury yield and the S&P day change.
func (p *AlphaVantageProvider) Macro(ctx context.Context) (Macro, error) {
	var m Macro

	vix, _, err := p.quote(ctx, "VIXY")
	if err != nil {
		return m, fmt.Errorf("vix proxy: %w", err)
	}
	m.VIX = vix

	_, spChg, err := p.quote(ctx, "SPY")
	if err != nil {
		return m, fmt.Errorf("sp500 proxy: %w", err)
	}
	m.SP500ChgPct = spChg

	q := url.Values{}
	q.Set("function", "TREASURY_YIELD")
	q.Set("interval", "daily")
	q.Set("maturity", "10year")
	body, err := p.get(ctx, q)
	if err != nil {
		return m, fmt.Errorf("treasury yield: %w", err)
	}
	var ty treasuryYield
	if err := json.Unmarshal(body, &ty); err != nil || len(ty.Data) == 0 {
		return m, fmt.Errorf("treasury yield payload malformed")
	}
	y, err := strconv.ParseFloat(ty.Data[0].Value, 64)
	if err != nil {
		return m, fmt.Errorf("treasury yield value malformed")
	}
	m.Yield10Y = y

	return m, nil
}
