package clinicorp

import (
	"context"
	"time"

	"github.com/odontomarket/dental-marketplace-platform/internal/observability/metrics"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Proxy wires resolver, normalizer, invoker and classifier into the single
// pipeline every inbound call flows through. Each invocation is independent:
// no shared mutable state, one upstream call in, one response out.
type Proxy struct {
	resolver   *Resolver
	normalizer *Normalizer
	invoker    *Invoker
	metrics    *metrics.ProxyMetrics
	logger     *logging.Logger
}

// ProxyOptions groups the pieces Proxy needs. SlugCache and Metrics are
// optional.
type ProxyOptions struct {
	Resolver  *Resolver
	Invoker   *Invoker
	SlugCache *SlugCache
	Metrics   *metrics.ProxyMetrics
	Logger    *logging.Logger
}

func NewProxy(opts ProxyOptions) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	p := &Proxy{
		resolver: opts.Resolver,
		invoker:  opts.Invoker,
		metrics:  opts.Metrics,
		logger:   logger,
	}
	p.normalizer = NewNormalizer(&codeLinkResolver{
		invoker: opts.Invoker,
		cache:   opts.SlugCache,
		logger:  logger,
	}, logger)
	return p
}

// Execute runs the full pipeline for one inbound request.
func (p *Proxy) Execute(ctx context.Context, userID string, req Request) (*Response, *Error) {
	creds, source, perr := p.resolver.Resolve(ctx, req, userID)
	if perr != nil {
		p.metrics.ObserveRequest(req.Method, string(perr.Code))
		return nil, perr
	}
	p.metrics.ObserveCredentialSource(source)

	nreq, perr := p.normalizer.Normalize(ctx, req, creds)
	if perr != nil {
		p.metrics.ObserveRequest(req.Method, string(perr.Code))
		return nil, perr
	}

	p.logger.Info("proxying upstream request",
		"original_path", req.Path,
		"corrected_path", nreq.Path,
		"method", nreq.Method,
		"clinic_id", req.ClinicID,
		"has_slug", creds.OnlineSlug != "",
	)

	start := time.Now()
	status, data, perr := p.invoker.Do(ctx, creds, nreq)
	p.metrics.ObserveUpstreamLatency(nreq.Method, time.Since(start).Seconds())
	if perr != nil {
		p.metrics.ObserveRequest(nreq.Method, string(perr.Code))
		return nil, perr
	}

	resp, perr := classifyResponse(nreq.Path, status, data)
	if perr != nil {
		p.metrics.ObserveRequest(nreq.Method, string(perr.Code))
		return nil, perr
	}
	p.metrics.ObserveRequest(nreq.Method, "success")
	return resp, nil
}

// codeLinkResolver resolves a human slug to the upstream's numeric code via
// the available-days endpoint, memoized in redis when a cache is wired. It is
// best-effort: any failure keeps the original value.
type codeLinkResolver struct {
	invoker *Invoker
	cache   *SlugCache
	logger  *logging.Logger
}

func (r *codeLinkResolver) ResolveNumericCodeLink(ctx context.Context, creds Credentials, subscriberID any, slug, date string) (string, bool) {
	subscriber := asString(subscriberID)
	if numeric, ok := r.cache.Get(ctx, subscriber, slug); ok {
		return numeric, true
	}

	query := map[string]any{
		"subscriber_id": subscriberID,
		"code_link":     slug,
		"from":          date,
		"to":            date,
	}
	status, data, perr := r.invoker.Do(ctx, creds, &NormalizedRequest{
		Path:   "/appointment/get_avaliable_days",
		Method: "GET",
		Query:  query,
	})
	if perr != nil || status < 200 || status >= 300 {
		r.logger.Warn("code_link resolution lookup failed", "slug", slug, "status", status)
		return "", false
	}

	numeric := extractNumericCodeLink(data)
	if numeric == "" {
		return "", false
	}
	r.cache.Set(ctx, subscriber, slug, numeric)
	return numeric, true
}

// extractNumericCodeLink digs a numeric code candidate out of the varied
// response shapes the available-days endpoint returns.
func extractNumericCodeLink(data any) string {
	var numeric string
	tryPick := func(obj any) {
		if numeric != "" {
			return
		}
		m, ok := obj.(map[string]any)
		if !ok {
			return
		}
		for _, key := range []string{"code_link", "codeLink", "code", "id", "codigo"} {
			switch v := m[key].(type) {
			case float64:
				numeric = asString(v)
				return
			case string:
				if numericRe.MatchString(v) {
					numeric = v
					return
				}
			}
		}
	}

	switch v := data.(type) {
	case []any:
		for _, item := range v {
			tryPick(item)
		}
	case map[string]any:
		if list, ok := v["data"].([]any); ok {
			for _, item := range list {
				tryPick(item)
			}
		}
		tryPick(v)
		if numeric == "" {
			if list, ok := v["available_days"].([]any); ok {
				for _, item := range list {
					tryPick(item)
				}
			}
		}
	}
	return numeric
}
