// Package pubchem resolves ingredient names to compound records via the
// external PUG REST service. Each resolution is two lookups (name → CID,
// CID → properties), rate-limited to 5 requests per second process-wide,
// with a 2 s per-request timeout and exponential-backoff retries on
// transient failures. 429 responses surface immediately as rate-limited.
package pubchem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/umami-labs/brigade/pkg/models"
)

const (
	requestTimeout   = 2 * time.Second
	requestSpacing   = 200 * time.Millisecond // 5 rps
	maxRetries       = 3
	propertyCSV      = "MolecularFormula,MolecularWeight,IUPACName"
	initialBackoff   = 100 * time.Millisecond
)

// Sentinel errors for callers that branch on resolution failure kind.
var (
	ErrNotFound    = errors.New("compound not found")
	ErrRateLimited = errors.New("compound lookup rate limited")
	ErrUpstream    = errors.New("compound lookup upstream error")
)

// Result is the outcome of one batch resolution.
type Result struct {
	Resolved      []models.ResolvedCompound `json:"resolved"`
	Unresolved    []string                  `json:"unresolved"`
	TotalDuration time.Duration             `json:"total_duration_ms"`
}

// Confidence is |resolved| / (|resolved| + |unresolved|), zero on empty input.
func (r *Result) Confidence() float64 {
	total := len(r.Resolved) + len(r.Unresolved)
	if total == 0 {
		return 0
	}
	return float64(len(r.Resolved)) / float64(total)
}

// Client is the resolution client. Safe for concurrent use; the rate
// limiter and cache are shared across requests.
type Client struct {
	baseURL    string
	httpClient *http.Client

	limiterMu   sync.Mutex
	nextAllowed time.Time

	cacheMu sync.Mutex
	cache   map[string]models.ResolvedCompound
}

// NewClient creates a resolution client against the given PUG REST base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      make(map[string]models.ResolvedCompound),
	}
}

// FlushCache drops the resolution cache. Wired as the resource monitor's
// best-effort release hook.
func (c *Client) FlushCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]models.ResolvedCompound)
}

// ResolveIngredients resolves each name, recording failures as unresolved
// rather than failing the batch. Rate-limit errors abort the remainder of
// the batch; everything not yet resolved lands in Unresolved.
func (c *Client) ResolveIngredients(ctx context.Context, names []string) *Result {
	start := time.Now()
	result := &Result{}

	for i, name := range names {
		compound, err := c.resolveOne(ctx, name)
		if err == nil {
			result.Resolved = append(result.Resolved, compound)
			continue
		}
		result.Unresolved = append(result.Unresolved, name)
		if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
			// Abort the batch; the rest cannot succeed right now.
			result.Unresolved = append(result.Unresolved, names[i+1:]...)
			slog.Warn("Compound resolution batch aborted",
				"name", name, "remaining", len(names)-i-1, "error", err)
			break
		}
		slog.Debug("Compound unresolved", "name", name, "error", err)
	}

	result.TotalDuration = time.Since(start)
	return result
}

func (c *Client) resolveOne(ctx context.Context, name string) (models.ResolvedCompound, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	c.cacheMu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.cacheMu.Unlock()
		cached.FromCache = true
		return cached, nil
	}
	c.cacheMu.Unlock()

	start := time.Now()

	cid, err := c.lookupCID(ctx, key)
	if err != nil {
		return models.ResolvedCompound{}, err
	}
	compound, err := c.lookupProperties(ctx, cid)
	if err != nil {
		return models.ResolvedCompound{}, err
	}
	compound.Name = key
	compound.Duration = time.Since(start)

	c.cacheMu.Lock()
	c.cache[key] = compound
	c.cacheMu.Unlock()
	return compound, nil
}

type cidResponse struct {
	IdentifierList struct {
		CID []int `json:"CID"`
	} `json:"IdentifierList"`
}

func (c *Client) lookupCID(ctx context.Context, name string) (int, error) {
	endpoint := fmt.Sprintf("%s/compound/name/%s/cids/JSON", c.baseURL, url.PathEscape(name))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	var parsed cidResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("%w: decode cids: %v", ErrUpstream, err)
	}
	if len(parsed.IdentifierList.CID) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return parsed.IdentifierList.CID[0], nil
}

type propertyResponse struct {
	PropertyTable struct {
		Properties []struct {
			CID              int     `json:"CID"`
			MolecularFormula string  `json:"MolecularFormula"`
			MolecularWeight  string  `json:"MolecularWeight"`
			IUPACName        string  `json:"IUPACName"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

func (c *Client) lookupProperties(ctx context.Context, cid int) (models.ResolvedCompound, error) {
	endpoint := fmt.Sprintf("%s/compound/cid/%d/property/%s/JSON", c.baseURL, cid, propertyCSV)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return models.ResolvedCompound{}, err
	}
	var parsed propertyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.ResolvedCompound{}, fmt.Errorf("%w: decode properties: %v", ErrUpstream, err)
	}
	if len(parsed.PropertyTable.Properties) == 0 {
		return models.ResolvedCompound{}, fmt.Errorf("%w: cid %d", ErrNotFound, cid)
	}
	p := parsed.PropertyTable.Properties[0]
	return models.ResolvedCompound{
		CID:              cid,
		MolecularFormula: p.MolecularFormula,
		MolecularWeight:  p.MolecularWeight,
		IUPACName:        p.IUPACName,
	}, nil
}

// get performs one rate-limited HTTP GET with backoff retries on timeouts
// and 5xx. 429 and 404 surface immediately.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte

	operation := func() error {
		c.waitTurn()

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrUpstream, err) // retryable (timeout, transient)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return backoff.Permanent(ErrRateLimited)
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initialBackoff),
		), maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// waitTurn enforces the 5 rps spacing across all goroutines.
func (c *Client) waitTurn() {
	c.limiterMu.Lock()
	now := time.Now()
	if c.nextAllowed.Before(now) {
		c.nextAllowed = now
	}
	wait := c.nextAllowed.Sub(now)
	c.nextAllowed = c.nextAllowed.Add(requestSpacing)
	c.limiterMu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}
