// Package livereload tells browsers viewing the preview server to reload
// when sources or components change.
//
// Pages get a small script that opens a server-sent events stream. The
// Broker keeps track of those streams and pushes a "reload" event to all of
// them whenever Reload is called:
//
//	broker := livereload.NewBroker(livereload.Options{})
//	app.GET(livereload.DefaultPath, broker.ServeHTTP)
//	app.Use(components.ExpanderMiddleware(kit.Registry, components.MiddlewareOptions{
//	    Transforms: []components.Transform{broker.Inject},
//	}))
package livereload

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobuffalo/buffalo"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultPath is where the event stream is mounted.
const DefaultPath = "/__stamp/events"

// Event is a single server-sent event.
type Event struct {
	Name string
	Data []byte
}

type client struct {
	id      string
	events  chan Event
	closing chan struct{}
}

// Options configures a Broker.
type Options struct {
	// Path is the URL of the event stream. Defaults to DefaultPath.
	Path string

	// Heartbeat is the interval of keepalive events. Defaults to 25s.
	Heartbeat time.Duration

	Logger logrus.FieldLogger
}

// Broker fans reload events out to connected browsers.
//
// All client bookkeeping happens on the broker's own goroutine; the other
// methods only talk to it over channels.
type Broker struct {
	path      string
	log       logrus.FieldLogger
	heartbeat time.Duration

	broadcast  chan Event
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	stopped    atomic.Bool

	connected atomic.Int64
}

// NewBroker creates a broker and starts its event loop. Call Shutdown to
// stop it.
func NewBroker(opts Options) *Broker {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	b := &Broker{
		path:       opts.Path,
		log:        opts.Logger,
		heartbeat:  opts.Heartbeat,
		broadcast:  make(chan Event, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Path returns the URL of the event stream.
func (b *Broker) Path() string {
	return b.path
}

// Clients returns the number of connected browsers.
func (b *Broker) Clients() int {
	return int(b.connected.Load())
}

func (b *Broker) run() {
	clients := make(map[string]*client)
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-b.shutdown:
			for _, c := range clients {
				close(c.closing)
			}
			b.connected.Store(0)
			return

		case c := <-b.register:
			clients[c.id] = c
			b.connected.Store(int64(len(clients)))
			b.log.WithField("client", c.id).Debugf("live reload client connected (%d total)", len(clients))

		case c := <-b.unregister:
			if _, ok := clients[c.id]; ok {
				delete(clients, c.id)
				close(c.closing)
				b.connected.Store(int64(len(clients)))
				b.log.WithField("client", c.id).Debugf("live reload client disconnected (%d total)", len(clients))
			}

		case <-ticker.C:
			b.send(clients, Event{Name: "heartbeat", Data: []byte(time.Now().Format(time.RFC3339))})

		case ev := <-b.broadcast:
			b.send(clients, ev)
		}
	}
}

func (b *Broker) send(clients map[string]*client, ev Event) {
	for _, c := range clients {
		select {
		case c.events <- ev:
		default:
			b.log.WithField("client", c.id).Warnf("dropping %s event for slow client", ev.Name)
		}
	}
}

// Shutdown disconnects every client and stops the broker. It is safe to
// call more than once.
func (b *Broker) Shutdown() {
	if b.stopped.CompareAndSwap(false, true) {
		close(b.shutdown)
	}
}

// Reload asks every connected browser to reload. path names the file that
// changed and is sent as the event data.
func (b *Broker) Reload(path string) {
	select {
	case b.broadcast <- Event{Name: "reload", Data: []byte(path)}:
	case <-b.shutdown:
	default:
		b.log.WithField("path", path).Warn("reload queue full, dropping event")
	}
}

// ServeHTTP streams events to one browser until it disconnects or the
// broker shuts down.
func (b *Broker) ServeHTTP(c buffalo.Context) error {
	w := c.Response()
	flusher, ok := w.(http.Flusher)
	if !ok {
		return c.Error(http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	cl := &client{
		id:      uuid.NewString(),
		events:  make(chan Event, 8),
		closing: make(chan struct{}),
	}

	select {
	case b.register <- cl:
	case <-b.shutdown:
		return nil
	}
	defer func() {
		select {
		case b.unregister <- cl:
		case <-b.shutdown:
		}
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"id\":%q}\n\n", cl.id)
	flusher.Flush()

	done := c.Request().Context().Done()
	for {
		select {
		case ev := <-cl.events:
			if _, err := writeEvent(w, ev); err != nil {
				return nil
			}
			flusher.Flush()
		case <-cl.closing:
			return nil
		case <-done:
			return nil
		}
	}
}

func writeEvent(w io.Writer, ev Event) (int, error) {
	var sb strings.Builder
	if ev.Name != "" {
		fmt.Fprintf(&sb, "event: %s\n", ev.Name)
	}
	for _, line := range strings.Split(string(ev.Data), "\n") {
		fmt.Fprintf(&sb, "data: %s\n", line)
	}
	sb.WriteString("\n")
	return io.WriteString(w, sb.String())
}
