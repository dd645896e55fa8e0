// Package assets serves the embedded single-page app shell behind a versioned,
// cache-first response cache.
//
// The cache mirrors the contract of the shell's own service worker (sw.js is
// rendered with the same cache name):
//
//   - caches are named "dose-timer-<version>"; Activate drops every other
//     version held in the same Storage;
//   - Precache stores the fixed Shell list;
//   - only same-origin GET requests are served from or stored in the cache;
//   - only 200 responses are stored;
//   - a navigation request whose upstream answer is a 404 or a 5xx is
//     answered with the cached root document instead.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// CachePrefix prefixes every cache name owned by the app.
const CachePrefix = "dose-timer-"

// Shell lists the paths precached on install.
var Shell = []string{"/", "/index.html", "/app.js", "/style.css", "/manifest.json", "/sw.js"}

//go:embed web
var webFS embed.FS

// templated files are rendered with Params before being served.
var templated = map[string]bool{"app.js": true, "sw.js": true}

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dosetimer_asset_cache_requests_total",
		Help: "Asset requests by cache outcome: hit, miss, fallback, bypass.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(cacheRequests)
}

// Params are substituted into the templated shell files.
type Params struct {
	CacheName string
	Prefix    string
	APIBase   string
	Assets    []string
}

// Response is a stored 200 answer. Only the content type is kept: transport
// headers such as Content-Encoding belong to the original exchange.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Storage holds named caches, like the browser's CacheStorage. It is safe for
// concurrent use.
type Storage struct {
	mu    sync.RWMutex
	named map[string]map[string]Response
}

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{named: make(map[string]map[string]Response)}
}

// Names lists the caches currently held, sorted.
func (s *Storage) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.named))
	for n := range s.named {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Storage) get(name, key string) (Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.named[name][key]
	return r, ok
}

func (s *Storage) put(name, key string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.named[name]
	if !ok {
		b = make(map[string]Response)
		s.named[name] = b
	}
	b[key] = r
}

func (s *Storage) open(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.named[name]; !ok {
		s.named[name] = make(map[string]Response)
	}
}

func (s *Storage) delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.named, name)
}

type file struct {
	contentType string
	body        []byte
}

// Cache is the versioned asset cache plus the embedded "network" it fills
// from.
type Cache struct {
	name  string
	store *Storage
	files map[string]file
}

// New builds the cache for version over store (a fresh Storage when nil),
// rendering the templated shell files for apiBase.
func New(version, apiBase string, store *Storage) (*Cache, error) {
	if strings.TrimSpace(version) == "" {
		return nil, fmt.Errorf("assets: empty cache version")
	}
	if store == nil {
		store = NewStorage()
	}
	c := &Cache{
		name:  CachePrefix + version,
		store: store,
		files: make(map[string]file),
	}
	params := Params{CacheName: c.name, Prefix: CachePrefix, APIBase: strings.TrimRight(apiBase, "/"), Assets: Shell}

	root, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	err = fs.WalkDir(root, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		body, err := fs.ReadFile(root, p)
		if err != nil {
			return err
		}
		if templated[p] {
			if body, err = render(p, body, params); err != nil {
				return err
			}
		}
		ct := mime.TypeByExtension(path.Ext(p))
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.files["/"+p] = file{contentType: ct, body: body}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assets: load shell: %w", err)
	}
	c.files["/"] = c.files["/index.html"]
	return c, nil
}

func render(name string, src []byte, p Params) ([]byte, error) {
	t, err := template.New(name).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Name returns the versioned cache name.
func (c *Cache) Name() string { return c.name }

// Storage returns the backing storage.
func (c *Cache) Storage() *Storage { return c.store }

// Precache stores every Shell asset. It fails when one is missing, leaving
// whatever was stored so far in place.
func (c *Cache) Precache() error {
	c.store.open(c.name)
	for _, p := range Shell {
		f, ok := c.files[p]
		if !ok {
			return fmt.Errorf("assets: precache %s: not found", p)
		}
		c.store.put(c.name, p, Response{Status: http.StatusOK, ContentType: f.contentType, Body: f.body})
	}
	return nil
}

// Activate drops the caches of every other version and returns their names.
func (c *Cache) Activate() []string {
	var dropped []string
	for _, n := range c.store.Names() {
		if strings.HasPrefix(n, CachePrefix) && n != c.name {
			c.store.delete(n)
			dropped = append(dropped, n)
		}
	}
	return dropped
}

// Match returns the stored response for key.
func (c *Cache) Match(key string) (Response, bool) {
	return c.store.get(c.name, key)
}

// Put stores r under key if it is a 200 and reports whether it did.
func (c *Cache) Put(key string, r Response) bool {
	if r.Status != http.StatusOK {
		return false
	}
	c.store.put(c.name, key, r)
	return true
}

// Serve answers from the embedded shell. It is the upstream the cache
// middleware falls through to.
func (c *Cache) Serve(ctx *gin.Context) {
	f, ok := c.files[ctx.Request.URL.Path]
	if !ok {
		ctx.Status(http.StatusNotFound)
		return
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.Data(http.StatusOK, f.contentType, f.body)
}

// Middleware serves cache-first. Misses go upstream and 200 answers are
// stored; failed navigations get the cached root document.
func (c *Cache) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		r := ctx.Request
		if r.Method != http.MethodGet || !sameOrigin(r) {
			cacheRequests.WithLabelValues("bypass").Inc()
			ctx.Next()
			return
		}
		key := r.URL.Path
		if res, ok := c.Match(key); ok {
			cacheRequests.WithLabelValues("hit").Inc()
			write(ctx, res, "HIT")
			ctx.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = cw
		ctx.Next()
		ctx.Writer = cw.ResponseWriter

		status := cw.Status()
		if failed(status) && isNavigation(r) {
			if res, ok := c.Match("/"); ok {
				cacheRequests.WithLabelValues("fallback").Inc()
				write(ctx, res, "FALLBACK")
				return
			}
		}
		cacheRequests.WithLabelValues("miss").Inc()
		c.Put(key, Response{Status: status, ContentType: ctx.Writer.Header().Get("Content-Type"), Body: cw.buf.Bytes()})
		ctx.Writer.Header().Set("X-Cache", "MISS")
		ctx.Writer.WriteHeader(status)
		_, _ = ctx.Writer.Write(cw.buf.Bytes())
	}
}

// Fallback serves the cached root document for a navigation request that no
// route matched and reports whether it did.
func (c *Cache) Fallback(ctx *gin.Context) bool {
	r := ctx.Request
	if r.Method != http.MethodGet || !sameOrigin(r) || !isNavigation(r) {
		return false
	}
	res, ok := c.Match("/")
	if !ok {
		return false
	}
	cacheRequests.WithLabelValues("fallback").Inc()
	write(ctx, res, "FALLBACK")
	ctx.Abort()
	return true
}

func write(ctx *gin.Context, res Response, outcome string) {
	h := ctx.Writer.Header()
	h.Set("X-Cache", outcome)
	ctx.Data(res.Status, res.ContentType, res.Body)
}

func failed(status int) bool {
	return status == http.StatusNotFound || status >= http.StatusInternalServerError
}

// isNavigation reports whether r loads a document rather than a subresource.
func isNavigation(r *http.Request) bool {
	if m := r.Header.Get("Sec-Fetch-Mode"); m != "" {
		return m == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// sameOrigin trusts Sec-Fetch-Site when the browser sends it and otherwise
// compares the Origin header, if any, with the request host.
func sameOrigin(r *http.Request) bool {
	if s := r.Header.Get("Sec-Fetch-Site"); s != "" {
		return s == "same-origin" || s == "none"
	}
	o := r.Header.Get("Origin")
	if o == "" {
		return true
	}
	i := strings.Index(o, "://")
	return i >= 0 && strings.EqualFold(o[i+3:], r.Host)
}

// captureWriter holds the upstream answer back until the middleware decides
// whether to send it or the fallback.
type captureWriter struct {
	gin.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *captureWriter) WriteHeaderNow() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.WriteHeaderNow()
	return w.buf.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.WriteHeaderNow()
	return w.buf.WriteString(s)
}

func (w *captureWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *captureWriter) Size() int { return w.buf.Len() }

func (w *captureWriter) Written() bool { return w.status != 0 }

func (w *captureWriter) Flush() {}
