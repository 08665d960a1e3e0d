package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	domsvc "RegimeLab/internal/domain/service"
	xhttp "RegimeLab/pkg/http"
	"RegimeLab/pkg/util"
)

// Client talks to the backtest API that serves OHLC history.
type Client struct {
	client *xhttp.Client
}

type chartRequest struct {
	Asset    string `json:"asset"`
	Interval string `json:"interval"`
	DaysBack int    `json:"days_back"`
}

type chartPoint struct {
	X int64     `json:"x"`
	Y []float64 `json:"y"`
}

type chartResponse struct {
	Success  bool         `json:"success"`
	Error    string       `json:"error"`
	Data     []chartPoint `json:"data"`
	Ticker   string       `json:"ticker"`
	Interval string       `json:"interval"`
}

// New builds a client against baseURL. retries applies to transport
// errors and 5xx responses.
func New(baseURL string, timeout time.Duration, retries int) *Client {
	return &Client{
		client: xhttp.NewClient(
			xhttp.WithBaseURL(baseURL),
			xhttp.WithTimeout(timeout),
			xhttp.WithRetry(retries, 250*time.Millisecond),
		),
	}
}

// ChartData returns candles oldest first. Points with a malformed y array
// are skipped; zero prices are kept and handled as invalid downstream.
func (c *Client) ChartData(ctx context.Context, asset, interval string, daysBack int) ([]models.Candle, error) {
	var resp chartResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    "/api/chart-data",
		Body:   chartRequest{Asset: asset, Interval: interval, DaysBack: daysBack},
	}, &resp)
	if err != nil {
		if xhttp.IsStatus(err, http.StatusBadRequest) {
			return nil, fmt.Errorf("chart data %s: %w", asset, domrepo.ErrNoCandles)
		}
		return nil, fmt.Errorf("chart data %s: %w", asset, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("chart data %s: %s: %w", asset, resp.Error, domrepo.ErrNoCandles)
	}
	return toCandles(resp.Data), nil
}

func toCandles(points []chartPoint) []models.Candle {
	sort.SliceStable(points, func(i, j int) bool { return points[i].X < points[j].X })
	out := make([]models.Candle, 0, len(points))
	for _, p := range points {
		if len(p.Y) != 4 {
			continue
		}
		out = append(out, models.Candle{
			Date:  util.MillisToDate(p.X),
			Open:  p.Y[0],
			High:  p.Y[1],
			Low:   p.Y[2],
			Close: p.Y[3],
		})
	}
	return out
}

func (c *Client) Health(ctx context.Context) error {
	return c.client.SendAndParse(ctx, &xhttp.RequestOptions{Method: http.MethodGet, URL: "/api/health"}, nil)
}

var _ domsvc.PriceFeed = (*Client)(nil)
