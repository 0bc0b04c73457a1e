package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
)

// Article is one item of the news feed.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Published   string `json:"published"`
}

var ErrSentimentRange = errors.New("sentiment value outside 0-100")

// Sentiment is the fear and greed index.
type Sentiment struct {
	Value          float64 `json:"value"`
	Classification string  `json:"classification"`
	Zone           string  `json:"zone"`
}

// UnmarshalJSON accepts the value either as a number or a numeric string.
func (s *Sentiment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value          json.RawMessage `json:"value"`
		Classification string          `json:"classification"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	text := string(bytes.Trim(raw.Value, `"`))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("sentiment value %q: %w", text, err)
	}
	if math.IsNaN(v) || v < 0 || v > 100 {
		return fmt.Errorf("%w: %q", ErrSentimentRange, text)
	}
	s.Value = v
	s.Classification = raw.Classification
	return nil
}

// Zone buckets a 0-100 sentiment value.
func Zone(value float64) string {
	switch {
	case value < 25:
		return "extreme-fear"
	case value < 45:
		return "fear"
	case value < 55:
		return "neutral"
	case value < 75:
		return "greed"
	default:
		return "extreme-greed"
	}
}

func (c *Collector) News(ctx context.Context) ([]Article, error) {
	var articles []Article
	err := c.call(ctx, "news", func(ctx context.Context) error {
		return c.getJSON(ctx, c.cfg.NewsURL, &articles)
	})
	if err != nil {
		return nil, err
	}
	if articles == nil {
		articles = []Article{}
	}
	return articles, nil
}

func (c *Collector) Sentiment(ctx context.Context) (Sentiment, error) {
	var s Sentiment
	err := c.call(ctx, "sentiment", func(ctx context.Context) error {
		return c.getJSON(ctx, c.cfg.SentimentURL, &s)
	})
	if err != nil {
		return Sentiment{}, err
	}
	s.Zone = Zone(s.Value)
	return s, nil
}

func (c *Collector) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: unexpected status %d: %s", url, resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
