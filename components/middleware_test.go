package components

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/logger"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjansen/stamp/markup"
)

func writeHandler(contentType, body string) buffalo.Handler {
	return func(c buffalo.Context) error {
		c.Response().Header().Set("Content-Type", contentType)
		c.Response().WriteHeader(http.StatusOK)
		_, err := c.Response().Write([]byte(body))
		return err
	}
}

func newMiddlewareApp(t *testing.T, current *atomic.Pointer[Registry], opts MiddlewareOptions) *buffalo.App {
	t.Helper()
	app := buffalo.New(buffalo.Options{Env: "test"})
	app.Use(ExpanderMiddleware(current.Load, opts))
	app.GET("/page", writeHandler("text/html; charset=utf-8", "<main><Greeting><Name>Web</Name></Greeting></main>"))
	app.GET("/broken", writeHandler("text/html", "<main><Greeting></Greeting></main>"))
	app.GET("/data", writeHandler("application/json", `{"html":"<Greeting></Greeting>"}`))
	return app
}

func get(app http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	res := httptest.NewRecorder()
	app.ServeHTTP(res, req)
	return res
}

func TestExpanderMiddleware(t *testing.T) {
	var current atomic.Pointer[Registry]
	current.Store(newTestRegistry(t, greeting()))
	app := newMiddlewareApp(t, &current, MiddlewareOptions{})

	t.Run("expands html responses", func(t *testing.T) {
		res := get(app, "/page")
		assert.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "<main>Hello Web!</main>", res.Body.String())
	})

	t.Run("passes other content types through", func(t *testing.T) {
		res := get(app, "/data")
		assert.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, `{"html":"<Greeting></Greeting>"}`, res.Body.String())
	})

	t.Run("expansion errors become a 500", func(t *testing.T) {
		res := get(app, "/broken")
		assert.Equal(t, http.StatusInternalServerError, res.Code)
		assert.NotContains(t, res.Body.String(), "<main>")
	})

	t.Run("registry is resolved per request", func(t *testing.T) {
		current.Store(newTestRegistry(t, &Component{Name: "Greeting", Parameters: []string{"Name"}, Template: "Hi <Name/>"}))
		res := get(app, "/page")
		assert.Equal(t, "<main>Hi Web</main>", res.Body.String())
	})
}

func TestExpanderMiddlewareCache(t *testing.T) {
	var current atomic.Pointer[Registry]
	current.Store(newTestRegistry(t, greeting()))
	cache := gocache.New(time.Minute, time.Minute)
	app := newMiddlewareApp(t, &current, MiddlewareOptions{Cache: cache})

	res := get(app, "/page")
	assert.Equal(t, "<main>Hello Web!</main>", res.Body.String())
	assert.Equal(t, 1, cache.ItemCount())

	res = get(app, "/page")
	assert.Equal(t, "<main>Hello Web!</main>", res.Body.String())
	assert.Equal(t, 1, cache.ItemCount(), "same body and registry hit the cache")

	// A new registry misses the pages cached for the old one.
	current.Store(newTestRegistry(t, &Component{Name: "Greeting", Parameters: []string{"Name"}, Template: "Yo <Name/>"}))
	res = get(app, "/page")
	assert.Equal(t, "<main>Yo Web</main>", res.Body.String())
	assert.Equal(t, 2, cache.ItemCount())

	res = get(app, "/broken")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, 2, cache.ItemCount(), "failures are not cached")
}

func TestExpandPageLateWriteFromReplacedRegistry(t *testing.T) {
	old := newTestRegistry(t, greeting())
	cache := gocache.New(time.Minute, time.Minute)
	opts := MiddlewareOptions{Cache: cache}
	body := []byte("<Greeting><Name>Web</Name></Greeting>")

	// The registry is swapped and the cache flushed while a request that
	// loaded the old registry is still expanding.
	current := newTestRegistry(t, &Component{Name: "Greeting", Parameters: []string{"Name"}, Template: "Yo <Name/>"})
	cache.Flush()

	page, err := expandPage(&Expander{}, "/page", body, old, opts)
	require.NoError(t, err)
	assert.Equal(t, "Hello Web!", string(page))

	page, err = expandPage(&Expander{}, "/page", body, current, opts)
	require.NoError(t, err)
	assert.Equal(t, "Yo Web", string(page))
}

func TestExpanderMiddlewareLogger(t *testing.T) {
	var current atomic.Pointer[Registry]
	current.Store(newTestRegistry(t, greeting()))

	t.Run("request logger by default", func(t *testing.T) {
		app := newMiddlewareApp(t, &current, MiddlewareOptions{Logger: nil})
		res := get(app, "/broken")
		assert.Equal(t, http.StatusInternalServerError, res.Code)
	})

	t.Run("logrus through the buffalo adapter", func(t *testing.T) {
		var buf bytes.Buffer
		l := logrus.New()
		l.SetOutput(&buf)

		app := newMiddlewareApp(t, &current, MiddlewareOptions{Logger: logger.Logrus{FieldLogger: l}})
		res := get(app, "/broken")
		assert.Equal(t, http.StatusInternalServerError, res.Code)
		assert.Contains(t, buf.String(), "expansion failed")
		assert.Contains(t, buf.String(), "document=/broken")
	})
}

func TestExpanderMiddlewareTransformsAndAnnotate(t *testing.T) {
	var current atomic.Pointer[Registry]
	current.Store(newTestRegistry(t, greeting()))

	footer := func(doc *markup.Node) error {
		doc.AppendChild(markup.NewComment(" served "))
		return nil
	}
	app := newMiddlewareApp(t, &current, MiddlewareOptions{
		Annotate:   true,
		Transforms: []Transform{footer},
	})

	res := get(app, "/page")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "<main><!-- Greeting -->Hello Web!<!-- /Greeting --></main><!-- served -->", res.Body.String())
}
