package bybit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// GetKlines fetches every kline of the interval starting within [start, end),
// oldest first. The range is requested in pages of MaxKlineLimit rows.
func (c *RESTClient) GetKlines(ctx context.Context, category, symbol string, interval KlineInterval,
	start, end time.Time) ([]Kline, error) {
	if !interval.IsValid() {
		return nil, fmt.Errorf("invalid KlineInterval: %s", interval)
	}

	page := time.Duration(MaxKlineLimit) * interval.Duration()
	var out []Kline
	for cursor := start; cursor.Before(end); cursor = cursor.Add(page) {
		pageEnd := cursor.Add(page)
		if pageEnd.After(end) {
			pageEnd = end
		}

		klines, err := c.getKlinePage(ctx, category, symbol, interval, cursor, pageEnd.Add(-time.Millisecond))
		if err != nil {
			return nil, err
		}
		out = append(out, klines...)
	}
	return out, nil
}

func (c *RESTClient) getKlinePage(ctx context.Context, category, symbol string, interval KlineInterval,
	start, end time.Time) ([]Kline, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(MaxKlineLimit))
	endpoint := c.baseURL + "/v5/market/kline?" + q.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit error: %s", body)
	}

	var rawResp BybitResponse
	if err := sonic.Unmarshal(body, &rawResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rawResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", rawResp.RetCode, rawResp.RetMsg)
	}

	var result KlinesResponse
	if err := sonic.Unmarshal(rawResp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	return ParseKlineList(interval, result.List, c.now()), nil
}
