package socket

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/semaphore"
)

// connectionAttempt executes the sequential resolve-params → build-url →
// open-transport → await-ready pipeline of SPEC_FULL.md §4.7. A single
// sem of weight 1 is shared across all attempts for a Socket so at most
// one is ever in flight (§5).
type connectionAttempt struct {
	configuredURL string
	opts          *Options
	clock         Clock
	sem           *semaphore.Weighted
}

func newConnectionAttempt(configuredURL string, opts *Options, clock Clock) *connectionAttempt {
	return &connectionAttempt{
		configuredURL: configuredURL,
		opts:          opts,
		clock:         clock,
		sem:           semaphore.NewWeighted(1),
	}
}

// run executes one attempt. On success it returns a started Transport
// with its callbacks already wired by the caller's wiring funcs. On
// failure it returns the failure error (possibly *StopRetryError,
// *ParamsTimeoutError, or *ConnectionTimeoutError).
func (a *connectionAttempt) run(ctx context.Context, info RetryInfo, wire func(Transport)) (Transport, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)

	params, err := a.resolveParams(ctx, info)
	if err != nil {
		return nil, err
	}

	finalURL := a.buildURL(info, params)

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialTimedOut := make(chan struct{})
	dialTimer := a.clock.AfterFunc(a.opts.ConnectionTimeout, func() {
		close(dialTimedOut)
		cancel()
	})
	defer dialTimer.Stop()

	transport, err := a.opts.Dialer(dialCtx, finalURL, a.opts.Protocols, a.opts.Header)
	if err != nil {
		return nil, err
	}

	opened := make(chan struct{}, 1)
	failed := make(chan error, 1)

	transport.OnOpen(func() {
		select {
		case opened <- struct{}{}:
		default:
		}
	})
	transport.OnError(func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	wire(transport)
	transport.Start()

	select {
	case <-opened:
	case err := <-failed:
		_ = transport.Close(1006, "attempt failed")
		return nil, err
	case <-dialTimedOut:
		_ = transport.Close(1006, "connection timeout")
		return nil, &ConnectionTimeoutError{Timeout: a.opts.ConnectionTimeout.String()}
	case <-ctx.Done():
		_ = transport.Close(1006, "attempt canceled")
		return nil, ctx.Err()
	}

	if a.opts.ConnectionResolver != nil {
		if err := a.awaitResolver(dialCtx, transport); err != nil {
			_ = transport.Close(1006, "resolver rejected")
			return nil, err
		}
	}

	return transport, nil
}

func (a *connectionAttempt) awaitResolver(ctx context.Context, t Transport) error {
	r := a.opts.ConnectionResolver
	resolveCh := r.Resolve(ctx, t)
	var rejectCh <-chan error
	if r.Reject != nil {
		rejectCh = r.Reject(ctx, t)
	}

	select {
	case <-resolveCh:
		return nil
	case err := <-rejectCh:
		return err
	case <-ctx.Done():
		return &ConnectionTimeoutError{Timeout: a.opts.ConnectionTimeout.String()}
	}
}

func (a *connectionAttempt) resolveParams(ctx context.Context, info RetryInfo) (map[string]any, error) {
	if a.opts.Params == nil {
		return nil, nil
	}

	type result struct {
		params map[string]any
		err    error
	}
	resultCh := make(chan result, 1)

	paramsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timedOut := make(chan struct{})
	timer := a.clock.AfterFunc(a.opts.ParamsTimeout, func() {
		close(timedOut)
		cancel()
	})
	defer timer.Stop()

	go func() {
		p, err := a.opts.Params(paramsCtx, info)
		resultCh <- result{p, err}
	}()

	select {
	case r := <-resultCh:
		return r.params, r.err
	case <-timedOut:
		return nil, &ParamsTimeoutError{Timeout: a.opts.ParamsTimeout.String()}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// buildURL implements SPEC_FULL.md §6: if URLFunc is set, defer to it.
// Otherwise append resolved params as URL-encoded query pairs, merging
// with any existing query via "&", in stable key order.
func (a *connectionAttempt) buildURL(info RetryInfo, params map[string]any) string {
	if a.opts.URLFunc != nil {
		return a.opts.URLFunc(URLFuncArgs{RetryInfo: info, URL: a.configuredURL, Params: params})
	}
	if len(params) == 0 {
		return a.configuredURL
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var qs strings.Builder
	for i, k := range keys {
		if i > 0 {
			qs.WriteByte('&')
		}
		qs.WriteString(url.QueryEscape(k))
		qs.WriteByte('=')
		qs.WriteString(url.QueryEscape(formatParamValue(params[k])))
	}

	if strings.Contains(a.configuredURL, "?") {
		return a.configuredURL + "&" + qs.String()
	}
	return a.configuredURL + "?" + qs.String()
}

func formatParamValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
