// Package collector posts structured event envelopes to an HTTP log
// collector endpoint as JSON arrays.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/httputil"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/cefstream/cefstream/jsonrs"
	"github.com/cefstream/cefstream/processor"
)

// Config holds the destination settings.
type Config struct {
	URL          string
	AuthToken    string
	Timeout      time.Duration
	MinRetryTime time.Duration
	MaxRetryTime time.Duration
	MaxRetry     int
}

// ConfigFromConf reads the destination settings from conf.
func ConfigFromConf(conf *config.Config) Config {
	return Config{
		URL:          conf.GetString("Router.Collector.url", ""),
		AuthToken:    conf.GetString("Router.Collector.authToken", ""),
		Timeout:      conf.GetDuration("Router.Collector.timeout", 30, time.Second),
		MinRetryTime: conf.GetDuration("Router.Collector.minRetryTime", 100, time.Millisecond),
		MaxRetryTime: conf.GetDuration("Router.Collector.maxRetryTime", 10, time.Second),
		MaxRetry:     conf.GetInt("Router.Collector.maxRetry", 5),
	}
}

// Validate reports the first configuration violation it finds.
func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("collector url %q is not a valid http(s) endpoint", c.URL)
	}
	return nil
}

// Destination posts each group of events as a single JSON array. Retries on
// connection errors and retryable status codes are handled by the underlying
// client; the caller only sees the final outcome.
type Destination struct {
	conf   Config
	log    logger.Logger
	client *retryablehttp.Client
}

// NewDestination validates conf and builds the destination.
func NewDestination(conf Config, log logger.Logger) (*Destination, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = conf.Timeout
	client.Logger = nil // to avoid debug logs
	client.RetryWaitMin = conf.MinRetryTime
	client.RetryWaitMax = conf.MaxRetryTime
	client.RetryMax = conf.MaxRetry
	return &Destination{conf: conf, log: log.Child("collector"), client: client}, nil
}

// Send posts events as one JSON array. Events carrying no structured
// envelope contribute their encoded line as a JSON string. The whole group
// either lands or is reported undelivered.
func (d *Destination) Send(ctx context.Context, events []processor.EncodedEvent) (int, error) {
	payload := make([]json.RawMessage, 0, len(events))
	for _, event := range events {
		if len(event.Envelope) > 0 {
			payload = append(payload, json.RawMessage(event.Envelope))
			continue
		}
		line, err := jsonrs.Marshal(event.Line)
		if err != nil {
			return 0, fmt.Errorf("marshalling event line: %w", err)
		}
		payload = append(payload, line)
	}
	body, err := jsonrs.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshalling payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.conf.URL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.conf.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.conf.AuthToken)
	}
	if len(events) > 0 {
		req.Header.Set("X-Data-Type", events[0].DataType)
		req.Header.Set("X-Subtype", events[0].Subtype)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting to collector: %w", err)
	}
	defer func() { httputil.CloseResponse(resp) }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("collector responded with status %d", resp.StatusCode)
	}
	d.log.Debugn("posted events", logger.NewIntField("events", int64(len(events))))
	return len(events), nil
}

// Ping posts an empty array to verify that the endpoint accepts requests.
func (d *Destination) Ping(ctx context.Context) error {
	_, err := d.Send(ctx, nil)
	return err
}

// Close releases idle connections.
func (d *Destination) Close() error {
	d.client.HTTPClient.CloseIdleConnections()
	return nil
}
