// Package client implements HttpExecutor: a fluent request builder, a
// retry policy, and an executor that authenticates, sends, classifies
// failures, and retries requests against a REST management surface.
package client

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nimrody/azure-simple-sdk/internal/correlation"
	"github.com/nimrody/azure-simple-sdk/pkg/apierrors"
)

// DefaultTimeout is the per-request timeout applied when a Builder does not
// override it (spec.md §4.E).
const DefaultTimeout = 30 * time.Second

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// Request is the built, immutable shape of a single HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    interface{}
	Timeout time.Duration
}

// Builder assembles a Request fluently. The zero value is not usable; use
// NewBuilder.
type Builder struct {
	product string
	version string
	req     Request
}

// NewBuilder returns a Builder that will stamp User-Agent as
// "<product>/<version>" on Build.
func NewBuilder(product, version string) *Builder {
	return &Builder{
		product: product,
		version: version,
		req: Request{
			Headers: make(map[string]string),
			Query:   make(map[string]string),
			Timeout: DefaultTimeout,
		},
	}
}

func (b *Builder) Method(method string) *Builder {
	b.req.Method = strings.ToUpper(method)
	return b
}

func (b *Builder) URL(url string) *Builder {
	b.req.URL = url
	return b
}

func (b *Builder) Header(key, value string) *Builder {
	b.req.Headers[key] = value
	return b
}

func (b *Builder) QueryParam(key, value string) *Builder {
	b.req.Query[key] = value
	return b
}

func (b *Builder) Body(v interface{}) *Builder {
	b.req.Body = v
	return b
}

func (b *Builder) Timeout(d time.Duration) *Builder {
	b.req.Timeout = d
	return b
}

// Version sets both an x-ms-version header and an api-version query
// parameter, per spec.md §4.E.
func (b *Builder) Version(v string) *Builder {
	b.Header("x-ms-version", v)
	b.QueryParam("api-version", v)
	return b
}

// Build validates and returns the assembled Request, attaching the default
// headers unconditionally: Accept, Content-Type, User-Agent, and a
// per-request correlation id rendered as a hyphenated hex string.
func (b *Builder) Build() (*Request, error) {
	if b.req.Method == "" {
		return nil, &apierrors.ConfigurationError{Message: "request method is required"}
	}
	if !allowedMethods[b.req.Method] {
		return nil, &apierrors.ConfigurationError{Message: fmt.Sprintf("unknown HTTP method %q", b.req.Method)}
	}
	if b.req.URL == "" {
		return nil, &apierrors.ConfigurationError{Message: "request URL is required"}
	}

	req := b.req
	req.Headers = cloneHeaders(b.req.Headers)
	req.Query = cloneHeaders(b.req.Query)

	setDefault(req.Headers, "Accept", "application/json")
	setDefault(req.Headers, "Content-Type", "application/json")
	setDefault(req.Headers, "User-Agent", fmt.Sprintf("%s/%s", b.product, b.version))
	setDefault(req.Headers, correlation.Header, correlation.New())

	return &req, nil
}

func cloneHeaders(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func setDefault(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// AssembleURL joins query parameters onto base without URL-encoding their
// values. This is a deliberate, documented policy choice (SPEC_FULL.md §7,
// spec.md §9): callers that need encoded values must encode them before
// calling QueryParam. The separator with the path is "?" when base carries
// no query string yet, "&" otherwise.
func AssembleURL(base string, query map[string]string) string {
	if len(query) == 0 {
		return base
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+query[k])
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(parts, "&")
}
