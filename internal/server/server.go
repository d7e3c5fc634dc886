package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/events"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/logger"
	"github.com/hanpama/viewexec/internal/reqid"
	"github.com/hanpama/viewexec/internal/view"
	"github.com/hanpama/viewexec/internal/viewdef"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-Id"

const sessionCookie = "viewexec_session"

// Handler is an http.Handler that serves the path displays of a set of
// views. Each request runs in its own executor.
type Handler struct {
	env   view.Env
	store viewdef.Store
	opt   Options

	mu     sync.RWMutex
	routes []route

	sessions *lru.Cache[string, *view.MemorySession]
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Account resolves the account of a request. Default is anonymous.
	Account func(r *http.Request) handler.Account

	// Sessions bounds the remembered exposed-input sessions.
	Sessions int
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithSessions(n int) Option { return func(o *Options) { o.Sessions = n } }
func WithAccount(f func(r *http.Request) handler.Account) Option {
	return func(o *Options) { o.Account = f }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// route maps a display path pattern to its view. "%" pieces capture one
// argument each.
type route struct {
	view    *viewdef.View
	display string
	pieces  []string
}

func (r route) literals() int {
	n := 0
	for _, p := range r.pieces {
		if p != "%" {
			n++
		}
	}
	return n
}

// match returns the arguments for path pieces, or false.
func (r route) match(pieces []string) ([]string, bool) {
	if len(pieces) < len(r.pieces) {
		return nil, false
	}
	var args []string
	for i, p := range r.pieces {
		switch {
		case p == "%":
			args = append(args, pieces[i])
		case p != pieces[i]:
			return nil, false
		}
	}
	return append(args, pieces[len(r.pieces):]...), true
}

// New creates a handler serving the views in store. env is copied per
// request with a fresh executor stack.
func New(env view.Env, store viewdef.Store, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, Sessions: 4096}
	for _, f := range opts {
		f(&op)
	}
	sessions, err := lru.New[string, *view.MemorySession](op.Sessions)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	h := &Handler{env: env, store: store, opt: op, sessions: sessions}
	if err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// Reload reads every view from the store and rebuilds the route table.
func (h *Handler) Reload() error {
	names, err := h.store.List()
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}
	var routes []route
	for _, name := range names {
		v, err := h.store.Load(name)
		if err != nil {
			return fmt.Errorf("load view %s: %w", name, err)
		}
		if !v.Enabled() {
			continue
		}
		for _, id := range v.DisplayIDs() {
			d, _ := v.Display(id)
			if d.Plugin != "page" && d.Plugin != "rest_export" {
				continue
			}
			path, _ := v.Option(id, "path")
			p, _ := path.(string)
			if p = strings.Trim(p, "/"); p == "" {
				continue
			}
			routes = append(routes, route{view: v, display: id, pieces: strings.Split(p, "/")})
		}
	}
	// most specific first
	sort.SliceStable(routes, func(i, j int) bool {
		if a, b := routes[i].literals(), routes[j].literals(); a != b {
			return a > b
		}
		return len(routes[i].pieces) > len(routes[j].pieces)
	})
	h.mu.Lock()
	h.routes = routes
	h.mu.Unlock()
	return nil
}

func (h *Handler) lookup(path string) (route, []string, bool) {
	pieces := strings.Split(strings.Trim(path, "/"), "/")
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.routes {
		if args, ok := r.match(pieces); ok {
			return r, args, true
		}
	}
	return route{}, nil, false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	var rid string
	if rid = r.Header.Get(RequestIDHeader); rid != "" {
		ctx = reqid.WithID(ctx, rid)
	} else {
		ctx, rid = reqid.NewContext(ctx)
	}
	w.Header().Set(RequestIDHeader, rid)

	status := http.StatusOK
	var viewName, displayID string
	start := time.Now()
	eventbus.Publish(ctx, h.env.Bus, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, h.env.Bus, events.HTTPFinish{
			Request: r, View: viewName, Display: displayID, Status: status, Duration: time.Since(start),
		})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorBody("method not allowed"), h.opt.Pretty)
		return
	}

	rt, args, ok := h.lookup(r.URL.Path)
	if !ok {
		status = http.StatusNotFound
		writeJSON(w, status, errorBody("no view serves this path"), h.opt.Pretty)
		return
	}
	viewName, displayID = rt.view.Name, rt.display

	env := h.env
	env.Stack = view.NewStack()
	env.Logger = logger.WithRequest(ctx, h.env.Logger)
	opts := []view.Option{view.WithRequest(view.Request{Query: r.URL.Query(), Session: h.session(w, r)})}
	if h.opt.Account != nil {
		if acct := h.opt.Account(r); acct != nil {
			opts = append(opts, view.WithAccount(acct))
		}
	}
	e := view.New(rt.view, &env, opts...)
	defer e.Destroy()

	if !e.Access([]string{rt.display}, nil) {
		status = http.StatusForbidden
		writeJSON(w, status, errorBody("access denied"), h.opt.Pretty)
		return
	}
	out, err := e.ExecuteDisplay(ctx, rt.display, args)
	if err != nil {
		env.Logger.Error("view execution failed", "view", viewName, "display", displayID, "error", err)
		status = http.StatusInternalServerError
		writeJSON(w, status, errorBody("internal error"), h.opt.Pretty)
		return
	}
	resp := e.Response()
	status = resp.Status
	if out == nil {
		if status == http.StatusOK {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorBody(http.StatusText(status)), h.opt.Pretty)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if out.ContentType != "" {
		w.Header().Set("Content-Type", out.ContentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(out.Body))
		return
	}
	writeJSON(w, status, out, h.opt.Pretty)
}

// session returns the cookie-bound session, creating one on first use.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) view.Session {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if s, ok := h.sessions.Get(c.Value); ok {
			return s
		}
	}
	id := uuid.NewString()
	s := view.NewMemorySession()
	h.sessions.Add(id, s)
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	return s
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errorResponse { return errorResponse{Error: msg} }

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
