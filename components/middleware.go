package components

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/gobuffalo/buffalo"
	gocache "github.com/patrickmn/go-cache"
	"github.com/zeebo/blake3"

	"github.com/johnjansen/stamp/markup"
)

// Transform edits an expanded document before it is sent.
type Transform func(doc *markup.Node) error

// MiddlewareOptions configures ExpanderMiddleware.
type MiddlewareOptions struct {
	// Annotate adds component boundary comments to the output.
	Annotate bool

	// Cache stores expanded pages keyed by the registry and a digest of the
	// handler's output. Nil disables caching.
	Cache *gocache.Cache

	// Transforms run, in order, on every expanded document.
	Transforms []Transform

	// Logger defaults to the request logger. Wrap a logrus logger in
	// logger.Logrus to use it here.
	Logger buffalo.Logger
}

// ExpanderMiddleware returns middleware that expands components in HTML
// responses.
//
// registry is called once per request, so the registry in use can be
// swapped while the server runs. The handler's output is buffered; only
// text/html responses are expanded, everything else passes through
// untouched. Handlers must write through c.Response().
//
// An expansion failure is returned as a 500 error naming the defect. A half
// expanded page is never sent.
func ExpanderMiddleware(registry func() *Registry, opts MiddlewareOptions) buffalo.MiddlewareFunc {
	e := &Expander{Annotate: opts.Annotate}

	return func(next buffalo.Handler) buffalo.Handler {
		return func(c buffalo.Context) error {
			wrapper := &responseWrapper{
				ResponseWriter: c.Response(),
				body:           &bytes.Buffer{},
				statusCode:     http.StatusOK,
			}

			if err := next(capturedContext{Context: c, res: wrapper}); err != nil {
				return err
			}

			out := c.Response()
			if !strings.Contains(wrapper.Header().Get("Content-Type"), "text/html") {
				out.WriteHeader(wrapper.statusCode)
				_, err := out.Write(wrapper.body.Bytes())
				return err
			}

			log := opts.Logger
			if log == nil {
				log = c.Logger()
			}

			page, err := expandPage(e, c.Request().URL.Path, wrapper.body.Bytes(), registry(), opts)
			if err != nil {
				log.WithField("document", c.Request().URL.Path).Errorf("expansion failed: %v", err)
				return c.Error(http.StatusInternalServerError, err)
			}

			out.Header().Set("Content-Length", strconv.Itoa(len(page)))
			out.WriteHeader(wrapper.statusCode)
			_, err = out.Write(page)
			return err
		}
	}
}

func expandPage(e *Expander, name string, body []byte, reg *Registry, opts MiddlewareOptions) ([]byte, error) {
	var key string
	if opts.Cache != nil {
		// A request still holding a replaced registry stores under its own
		// generation, never under the current one.
		sum := blake3.Sum256(body)
		key = strconv.FormatUint(reg.generation, 10) + ":" + hex.EncodeToString(sum[:])
		if v, ok := opts.Cache.Get(key); ok {
			if page, ok := v.([]byte); ok {
				return page, nil
			}
		}
	}

	doc, err := markup.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Document: name, Reason: "parsing response", Cause: err}
	}
	if _, err := e.Tree(name, doc, reg); err != nil {
		return nil, err
	}
	for _, t := range opts.Transforms {
		if err := t(doc); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := markup.Render(&buf, doc); err != nil {
		return nil, err
	}
	page := buf.Bytes()

	if opts.Cache != nil {
		opts.Cache.SetDefault(key, page)
	}
	return page, nil
}

// capturedContext hands the wrapped response writer to the next handler.
type capturedContext struct {
	buffalo.Context
	res http.ResponseWriter
}

func (c capturedContext) Response() http.ResponseWriter {
	return c.res
}

// responseWrapper buffers a response so it can be expanded before it is
// written.
type responseWrapper struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	return w.body.Write(b)
}
