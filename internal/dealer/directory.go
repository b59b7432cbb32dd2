// Package dealer resolves dealer-directory entries for ingested call legs.
// The upstream directory is fetched over HTTP and cached in Redis so the
// worker does not hammer it once per event.
package dealer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"callyard.app/switchboard/internal/model"
)

const cacheKey = "dealers-data"

// Fetcher retrieves the full dealer list from the upstream directory.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Dealer, error)
}

// HTTPFetcher pulls the directory from a bearer-token protected endpoint.
type HTTPFetcher struct {
	URL    string
	Token  string
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]model.Dealer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dealer directory request: %w", err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dealer directory fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dealer directory fetch: status %d: %s", resp.StatusCode, body)
	}

	var dealers []model.Dealer
	if err := json.NewDecoder(resp.Body).Decode(&dealers); err != nil {
		return nil, fmt.Errorf("dealer directory decode: %w", err)
	}
	return dealers, nil
}

// Directory looks up dealers by id, refreshing the Redis cache when it is
// cold or expired.
type Directory struct {
	client  *redis.Client
	fetcher Fetcher
	ttl     time.Duration
}

func NewDirectory(client *redis.Client, fetcher Fetcher, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Directory{client: client, fetcher: fetcher, ttl: ttl}
}

// Lookup returns the directory entry for the dealer id, or nil when the
// dealer is unknown.
func (d *Directory) Lookup(ctx context.Context, dealerID string) (*model.Dealer, error) {
	if dealerID == "" {
		return nil, nil
	}

	dealers, err := d.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range dealers {
		if dealers[i].ID == dealerID {
			return &dealers[i], nil
		}
	}
	return nil, nil
}

func (d *Directory) load(ctx context.Context) ([]model.Dealer, error) {
	raw, err := d.client.JSONGet(ctx, cacheKey, "$").Result()
	if err == nil && raw != "" && raw != "[]" {
		var cached [][]model.Dealer
		if err := json.Unmarshal([]byte(raw), &cached); err == nil && len(cached) == 1 {
			return cached[0], nil
		}
	} else if err != nil && err != redis.Nil {
		slog.WarnContext(ctx, "dealer cache read failed", "error", err)
	}

	dealers, err := d.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(dealers)
	if err != nil {
		return nil, fmt.Errorf("dealer cache encode: %w", err)
	}
	if err := d.client.JSONSet(ctx, cacheKey, "$", string(payload)).Err(); err != nil {
		slog.WarnContext(ctx, "dealer cache write failed", "error", err)
	} else if err := d.client.Expire(ctx, cacheKey, d.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "dealer cache expire failed", "error", err)
	}

	slog.InfoContext(ctx, "dealer directory refreshed", "dealers", len(dealers))
	return dealers, nil
}
