// Package httpdriver issues one HTTP request per cycle. URL, body and
// header values may hold ${name} placeholders filled from the cycle's bound
// values.
//
// Parameters:
//
//	url       request URL (required)
//	method    HTTP method, default GET
//	body      request body
//	h.<Name>  request header
//	expect    comma separated JSONPaths that must exist in the response
//	eq.<Path> value the JSONPath must hold in the response
//	timeout   per-try timeout, default 10s
//
// A response status of 400 or above fails the try. Failed tries are repeated
// up to the activity's maxtries.
package httpdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/op"
	"cyclegen/internal/template"
)

// Name is the driver name used in activity definitions.
const Name = "http"

const (
	defaultTimeout = 10 * time.Second
	// maxExpectBodySize limits the response body read for expectations.
	maxExpectBodySize = 10 * 1024 * 1024
	// maxDebugBodySize limits the response body read only for logging.
	maxDebugBodySize = 4096
)

// ErrStatus is wrapped by failures caused by the response status.
var ErrStatus = errors.New("unexpected response status")

type config struct {
	method   string
	url      string
	body     string
	headers  map[string]string
	expect   []string
	equals   map[string]string
	timeout  time.Duration
	maxTries int
}

func parseConfig(def activity.Def) (config, error) {
	cfg := config{
		method:   strings.ToUpper(def.Param("method", http.MethodGet)),
		body:     def.Param("body", ""),
		headers:  def.ParamsWithPrefix("h."),
		equals:   def.ParamsWithPrefix("eq."),
		maxTries: def.MaxTries,
	}
	var errs []error
	url, err := def.RequireParam("url")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.url = url
	if cfg.timeout, err = def.DurationParam("timeout", defaultTimeout); err != nil {
		errs = append(errs, err)
	}
	for _, p := range strings.Split(def.Param("expect", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.expect = append(cfg.expect, p)
		}
	}
	return cfg, errors.Join(errs...)
}

// placeholders returns every placeholder name the config uses.
func (c config) placeholders() []string {
	texts := []string{c.url, c.body}
	for _, v := range c.headers {
		texts = append(texts, v)
	}
	for _, v := range c.equals {
		texts = append(texts, v)
	}
	return template.Names(strings.Join(texts, "\n"))
}

// Driver opens http dispensers sharing one client.
type Driver struct {
	client *http.Client
	debug  *DebugLogger
}

// New creates a driver. A nil client uses http.DefaultClient.
func New(client *http.Client, logger *slog.Logger) *Driver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Driver{client: client, debug: NewDebugLogger(logger)}
}

// Open validates def and returns its dispenser. Every placeholder must name
// a binding.
func (d *Driver) Open(_ context.Context, def activity.Def, b *bindings.Bindings) (activity.Dispenser, error) {
	cfg, err := parseConfig(def)
	if err != nil {
		return nil, err
	}
	bound := make(map[string]bool)
	if b != nil {
		for _, n := range b.Names() {
			bound[n] = true
		}
	}
	var unbound []string
	for _, n := range cfg.placeholders() {
		if !bound[n] {
			unbound = append(unbound, n)
		}
	}
	if len(unbound) > 0 {
		return nil, fmt.Errorf("placeholders without bindings: %s", strings.Join(unbound, ", "))
	}

	r := &requester{cfg: cfg, alias: def.Alias, client: d.client, debug: d.debug}
	return &activity.FuncDispenser{Bindings: b, Run: r.run}, nil
}

type requester struct {
	cfg    config
	alias  string
	client *http.Client
	debug  *DebugLogger
}

func (r *requester) run(ctx context.Context, o *op.Op, values map[string]any) (int, error) {
	vals := template.Map(values)
	return activity.Attempt(ctx, o, r.cfg.maxTries, func(ctx context.Context) (int, error) {
		return r.do(ctx, o.Cycle, vals)
	})
}

func (r *requester) do(ctx context.Context, cycle int64, vals template.Values) (int, error) {
	start := time.Now()
	url, err := template.Substitute(r.cfg.url, vals)
	if err != nil {
		return 0, fmt.Errorf("url: %w", err)
	}
	body, err := template.Substitute(r.cfg.body, vals)
	if err != nil {
		return 0, fmt.Errorf("body: %w", err)
	}
	headers, err := template.SubstituteMap(r.cfg.headers, vals)
	if err != nil {
		return 0, fmt.Errorf("headers: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.cfg.method, url, reqBody)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	r.debug.LogRequest(ctx, r.alias, cycle, req)

	resp, err := r.client.Do(req)
	if err != nil {
		r.debug.LogError(ctx, r.alias, cycle, err, time.Since(start))
		return 0, err
	}
	defer resp.Body.Close()

	var respBody []byte
	needsExpect := len(r.cfg.expect) > 0 || len(r.cfg.equals) > 0
	if needsExpect || r.debug.Enabled(ctx) {
		limit := int64(maxDebugBodySize)
		if needsExpect {
			limit = maxExpectBodySize
		}
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, limit))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	r.debug.LogResponse(ctx, r.alias, cycle, resp, respBody, time.Since(start))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	if needsExpect {
		if err := template.Expect(respBody, r.cfg.expect...); err != nil {
			return resp.StatusCode, err
		}
		if err := r.checkEquals(respBody, vals); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// checkEquals compares the values at the eq.<path> JSONPaths with their
// substituted expectations.
func (r *requester) checkEquals(body []byte, vals template.Values) error {
	if len(r.cfg.equals) == 0 {
		return nil
	}
	want, err := template.SubstituteMap(r.cfg.equals, vals)
	if err != nil {
		return err
	}
	rules := make(map[string]string, len(want))
	for path := range want {
		rules[path] = path
	}
	got, err := template.Extract(body, rules)
	if err != nil {
		return err
	}
	var errs []error
	for path, w := range want {
		if g := template.Format(got[path]); g != w {
			errs = append(errs, fmt.Errorf("%s is %q, want %q", path, g, w))
		}
	}
	return errors.Join(errs...)
}
