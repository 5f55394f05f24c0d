// Package listing owns the query state of one list view and drives every
// reload: debounced search, sort and page changes, deletes.
package listing

import (
	"context"
	"sync"
	"time"

	"newstech/pkg/api"
	"newstech/pkg/images"
	"newstech/pkg/models"

	"go.uber.org/zap"
)

// Result is one finished load, handed to the View.
type Result struct {
	Seq    uint64
	Query  models.Query
	Page   models.Page
	Probes map[int]images.Result
	Err    error
}

// View receives results in issue order. Render must not call back into the
// Controller.
type View interface {
	Render(Result)
}

type ViewFunc func(Result)

func (f ViewFunc) Render(r Result) { f(r) }

// Prober is the optional server-side image check.
type Prober interface {
	ProbeAll(ctx context.Context, posts []models.Post) map[int]images.Result
}

// Confirmer asks the user whether post id should really be deleted.
type Confirmer interface {
	Confirm(ctx context.Context, id int) (bool, error)
}

type ConfirmFunc func(ctx context.Context, id int) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, id int) (bool, error) { return f(ctx, id) }

// Confirmed is for callers that already asked, like a submitted form.
var Confirmed Confirmer = ConfirmFunc(func(context.Context, int) (bool, error) { return true, nil })

type Option func(*Controller)

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = NewDebouncer(d) }
}

func WithProber(p Prober) Option {
	return func(c *Controller) { c.prober = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithContext sets the parent of every load the controller starts on its
// own, so values such as forwarded credentials reach the backend.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.base = ctx }
}

// WithQuery sets the starting query state, e.g. one read from the URL.
func WithQuery(q models.Query) Option {
	return func(c *Controller) { c.query = q }
}

type Controller struct {
	backend  api.Backend
	view     View
	prober   Prober
	debounce *Debouncer
	log      *zap.Logger

	base  context.Context
	ctx   context.Context
	close context.CancelFunc
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
	query  models.Query
	meta   models.Meta
	seq    uint64
	cancel context.CancelFunc

	renderMu sync.Mutex
}

func New(backend api.Backend, view View, perPage int, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		view:    view,
		query:   models.NewQuery(perPage),
		meta:    models.DefaultMeta(),
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.close = context.WithCancel(c.base)
	if c.debounce == nil {
		c.debounce = NewDebouncer(DefaultDebounce)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.view == nil {
		c.view = ViewFunc(func(Result) {})
	}
	c.query = c.query.Normalized(perPage)
	return c
}

// State returns the current query and the meta of the last shown result.
func (c *Controller) State() (models.Query, models.Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query, c.meta
}

// Search sets the text filter after the debounce delay and goes back to
// page 1.
func (c *Controller) Search(q string) {
	c.debounce.Trigger(func() {
		c.mu.Lock()
		c.query.Q = q
		c.query.Page = 1
		c.mu.Unlock()
		c.reloadAsync()
	})
}

func (c *Controller) SetSort(s models.SortOrder) {
	c.mu.Lock()
	c.query.Sort = s
	c.query.Page = 1
	c.mu.Unlock()
	c.reloadAsync()
}

// GoTo navigates to page p. It reports false and does nothing when p is the
// current page or below 1.
func (c *Controller) GoTo(p int) bool {
	c.mu.Lock()
	if p < 1 || p == c.query.Page {
		c.mu.Unlock()
		return false
	}
	c.query.Page = p
	c.mu.Unlock()
	c.reloadAsync()
	return true
}

func (c *Controller) Refresh() {
	c.reloadAsync()
}

// Load reloads the current query and waits for the result. The result is
// also rendered unless a newer reload superseded it.
func (c *Controller) Load(ctx context.Context) Result {
	ctx, seq, q, done := c.begin(ctx)
	defer done()
	res, _ := c.run(ctx, seq, q, false)
	return res
}

// Delete removes post id after confirm agrees, then reloads the current
// query. When that leaves page p > 1 empty it steps back to p-1 once. On
// failure the query state is left untouched.
func (c *Controller) Delete(ctx context.Context, id int, confirm Confirmer) (bool, error) {
	if confirm != nil {
		ok, err := confirm.Confirm(ctx, id)
		if err != nil || !ok {
			return false, err
		}
	}
	if err := c.backend.DeletePost(ctx, id); err != nil {
		c.log.Warn("delete failed", zap.Int("id", id), zap.Error(err))
		return false, err
	}

	rctx, seq, q, done := c.begin(ctx)
	defer done()
	c.run(rctx, seq, q, true)
	return true, nil
}

// Close cancels in-flight loads and waits for them.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.debounce.Stop()
	c.close()
	c.wg.Wait()
}

// reloadAsync is a no-op once Close has started; a debounced search may
// still fire after its timer was stopped.
func (c *Controller) reloadAsync() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	ctx, seq, q, done := c.begin(c.ctx)
	go func() {
		defer c.wg.Done()
		defer done()
		c.run(ctx, seq, q, false)
	}()
}

// begin supersedes any running load and hands out a fresh sequence number.
func (c *Controller) begin(parent context.Context) (context.Context, uint64, models.Query, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	q := c.query
	c.cancel = cancel
	c.mu.Unlock()

	return ctx, seq, q, func() {
		stop()
		cancel()
	}
}

func (c *Controller) run(ctx context.Context, seq uint64, q models.Query, stepBack bool) (Result, bool) {
	res := Fetch(ctx, c.backend, c.prober, q)

	if stepBack && res.Err == nil && len(res.Page.Items) == 0 && q.Page > 1 {
		c.mu.Lock()
		if seq != c.seq {
			c.mu.Unlock()
			return res, false
		}
		q.Page--
		c.query.Page = q.Page
		c.mu.Unlock()
		c.log.Debug("page emptied by delete, stepping back", zap.Int("page", q.Page))
		res = Fetch(ctx, c.backend, c.prober, q)
	}
	res.Seq = seq

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if seq != c.seq || c.ctx.Err() != nil {
		c.mu.Unlock()
		c.log.Debug("discarding superseded load", zap.Uint64("seq", seq))
		return res, false
	}
	if res.Err == nil {
		c.meta = res.Page.Meta
		// the backend may clamp the page
		if res.Page.Meta.Page >= 1 {
			c.query.Page = res.Page.Meta.Page
			res.Query.Page = res.Page.Meta.Page
		}
	} else {
		c.log.Warn("list load failed", zap.Error(res.Err))
	}
	c.mu.Unlock()

	c.view.Render(res)
	return res, true
}

// Fetch performs one list load without touching any controller state.
func Fetch(ctx context.Context, backend api.Backend, prober Prober, q models.Query) Result {
	page, err := backend.ListPosts(ctx, q)
	if err != nil {
		return Result{Query: q, Page: models.Page{Meta: models.DefaultMeta()}, Err: err}
	}
	res := Result{Query: q, Page: page}
	if prober != nil {
		res.Probes = prober.ProbeAll(ctx, page.Items)
	}
	return res
}
