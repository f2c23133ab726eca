// Package collector fetches alerts from Grafana and merges them with alerts
// delivered by webhook.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/config"
	"alertagent/internal/metrics"
	"alertagent/internal/retry"
)

const (
	alertsPath = "/api/v1/alerts"
	healthPath = "/api/health"

	defaultPageSize = 500
	defaultMaxPages = 20
	maxBodyBytes    = 10 << 20
)

// Client talks to the Grafana alerting API.
type Client struct {
	baseURL  string
	token    string
	orgID    int
	pageSize int
	maxPages int

	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Policy
	log     logr.Logger
	now     func() time.Time
}

// NewClient builds a Client from the grafana config section.
func NewClient(cfg config.GrafanaConfig, policy retry.Policy, log logr.Logger) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		orgID:    cfg.OrgID,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		http:     &http.Client{Timeout: cfg.Timeout},
		retry:    policy,
		log:      log.WithName("grafana"),
		now:      time.Now,
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// FetchAlerts returns every alert whose timestamp falls inside the lookback
// window, deduplicated by id and in the order Grafana returned them.
func (c *Client) FetchAlerts(ctx context.Context, lookback time.Duration) ([]alert.Alert, error) {
	since := c.now().Add(-lookback).UTC()

	seen := make(map[string]bool)
	var out []alert.Alert
	for page := 1; page <= c.maxPages; page++ {
		alerts, more, err := c.FetchAlertPage(ctx, since, page)
		if err != nil {
			return nil, err
		}
		for _, a := range alerts {
			if a.Timestamp.Before(since) || seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
		if !more {
			break
		}
		if page == c.maxPages {
			c.log.Info("stopped paging at the page limit", "maxPages", c.maxPages, "collected", len(out))
		}
	}

	metrics.AlertsCollected.WithLabelValues("grafana").Add(float64(len(out)))
	c.log.V(1).Info("fetched alerts", "since", since, "count", len(out))
	return out, nil
}

// FetchAlertPage fetches one page of alerts since the given instant. The bool
// reports whether another page may follow.
func (c *Client) FetchAlertPage(ctx context.Context, since time.Time, page int) ([]alert.Alert, bool, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, alertsPath, q)
	if err != nil {
		return nil, false, err
	}

	raws, err := decodeAlerts(body)
	if err != nil {
		return nil, false, err
	}

	now := c.now()
	alerts := make([]alert.Alert, 0, len(raws))
	for _, r := range raws {
		a, err := alert.Normalize(r, "grafana", now)
		if err != nil {
			c.log.Error(err, "skipping malformed alert", "id", r.ID)
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, len(raws) >= c.pageSize, nil
}

// Health probes /api/health.
func (c *Client) Health(ctx context.Context) alert.ComponentHealth {
	start := time.Now()
	h := alert.ComponentHealth{Name: "grafana", CheckedAt: start.UTC()}

	if c.baseURL == "" {
		h.Status = alert.HealthUnknown
		h.Message = "grafana.baseUrl not configured"
		return h
	}

	_, err := c.get(ctx, healthPath, nil)
	h.Latency = time.Since(start)
	if err != nil {
		h.Status = alert.HealthUnhealthy
		h.Message = err.Error()
		return h
	}
	h.Status = alert.HealthHealthy
	return h
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	return retry.Value(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", config.AppName+"/"+config.AppVersion)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if c.orgID > 0 {
			req.Header.Set("X-Grafana-Org-Id", strconv.Itoa(c.orgID))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, retry.Permanent(ctx.Err())
			}
			return nil, apperr.GrafanaConnection("Grafana request failed", path, 0).Wrap(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, apperr.GrafanaConnection("failed to read Grafana response", path, resp.StatusCode).Wrap(err)
		}
		return body, statusError(path, resp, body)
	})
}

func statusError(path string, resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return retry.Permanent(apperr.GrafanaAuthentication("Grafana rejected the API token").With("status_code", code))
	case code == http.StatusTooManyRequests:
		return apperr.RateLimit("Grafana rate limit exceeded", "grafana", retryAfter(resp.Header.Get("Retry-After")))
	case code >= 500:
		return apperr.GrafanaConnectionFailed(path, code, string(body))
	default:
		return retry.Permanent(apperr.GrafanaConnectionFailed(path, code, string(body)))
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// decodeAlerts accepts a bare list, {"data":{"alerts":[...]}} and
// {"alerts":[...]}.
func decodeAlerts(body []byte) ([]alert.RawAlert, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []alert.RawAlert
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, dataError(err, trimmed)
		}
		return list, nil
	}

	var envelope struct {
		Alerts []alert.RawAlert `json:"alerts"`
		Data   *struct {
			Alerts []alert.RawAlert `json:"alerts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, dataError(err, trimmed)
	}
	if envelope.Data != nil {
		return envelope.Data.Alerts, nil
	}
	if envelope.Alerts != nil {
		return envelope.Alerts, nil
	}
	return nil, dataError(errors.New("no alerts field in response"), trimmed)
}

func dataError(err error, body string) error {
	return retry.Permanent(apperr.GrafanaData("Invalid data format received from Grafana", body).Wrap(err))
}
