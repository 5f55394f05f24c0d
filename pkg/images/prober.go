// Package images decides how each card image should be served: as is, with
// a cache-busting retry, or marked permanently failed.
package images

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newstech/pkg/cache"
	"newstech/pkg/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type State int32

const (
	// Pending means nobody probed the image; the browser applies the retry policy.
	Pending State = iota
	Loaded
	// Recovered means the first attempt failed and the cache-busted one worked.
	Recovered
	// Failed means both attempts failed. The element stays in the card.
	Failed
)

type Result struct {
	Src   string
	State State
}

func (r Result) Retried() bool { return r.State == Recovered || r.State == Failed }
func (r Result) Failed() bool  { return r.State == Failed }

// WithCacheBuster sets b=<unix ms> on src, keeping any existing parameters.
func WithCacheBuster(src string, now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 10)
	u, err := url.Parse(src)
	if err != nil {
		sep := "?"
		if strings.Contains(src, "?") {
			sep = "&"
		}
		return src + sep + "b=" + stamp
	}
	q := u.Query()
	q.Set("b", stamp)
	u.RawQuery = q.Encode()
	return u.String()
}

// Prober checks image URLs server side, retrying each once.
type Prober struct {
	http        *http.Client
	redis       *cache.Redis
	ttl         time.Duration
	concurrency int
	now         func() time.Time
	base        *url.URL
	log         *zap.Logger
}

func NewProber(client *http.Client, redis *cache.Redis, log *zap.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{
		http:        client,
		redis:       redis,
		ttl:         10 * time.Minute,
		concurrency: 4,
		now:         time.Now,
		log:         log,
	}
}

// SetBase makes relative image URLs resolve against base. Without a base
// they are left Pending for the browser.
func (p *Prober) SetBase(base string) error {
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	if !httpScheme(u) || u.Host == "" {
		return fmt.Errorf("image base %q is not an absolute http(s) URL", base)
	}
	p.base = u
	return nil
}

// Probe returns the verdict for one image. Verdicts are cached so a page
// reload does not trigger the retry again. Only http(s) targets are fetched;
// anything else stays Pending with src untouched.
func (p *Prober) Probe(ctx context.Context, src string) Result {
	target, ok := p.resolve(src)
	if !ok {
		return Result{Src: src, State: Pending}
	}
	key := cacheKey(target)
	var cached wrapperspb.Int32Value
	if p.redis.GetProto(ctx, key, &cached) {
		return p.result(src, State(cached.GetValue()))
	}

	state := Loaded
	if !p.fetch(ctx, target) {
		state = Recovered
		if !p.fetch(ctx, WithCacheBuster(target, p.now())) {
			state = Failed
			p.log.Warn("image failed twice", zap.String("src", src))
		}
	}
	if ctx.Err() == nil {
		p.redis.SetProto(ctx, key, wrapperspb.Int32(int32(state)), p.ttl)
	}
	return p.result(src, state)
}

// ProbeAll probes the images of a page concurrently, keyed by post id.
func (p *Prober) ProbeAll(ctx context.Context, posts []models.Post) map[int]Result {
	results := make([]Result, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, post := range posts {
		if post.ImageURL == "" {
			continue
		}
		g.Go(func() error {
			results[i] = p.Probe(gctx, post.ImageURL)
			return nil
		})
	}
	g.Wait()

	out := make(map[int]Result, len(posts))
	for i, post := range posts {
		if post.ImageURL != "" {
			out[post.ID] = results[i]
		}
	}
	return out
}

func (p *Prober) result(src string, state State) Result {
	switch state {
	case Recovered, Failed:
		return Result{Src: WithCacheBuster(src, p.now()), State: state}
	default:
		return Result{Src: src, State: state}
	}
}

func (p *Prober) resolve(src string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if p.base == nil || u.Scheme != "" {
			return "", false
		}
		u = p.base.ResolveReference(u)
	}
	if !httpScheme(u) || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func httpScheme(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

func (p *Prober) fetch(ctx context.Context, src string) bool {
	status, err := p.request(ctx, http.MethodHead, src)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = p.request(ctx, http.MethodGet, src)
	}
	return err == nil && status >= 200 && status < 300
}

func (p *Prober) request(ctx context.Context, method, src string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, src, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusPartialContent {
		return http.StatusOK, nil
	}
	return resp.StatusCode, nil
}

func cacheKey(src string) string {
	sum := sha1.Sum([]byte(src))
	return "img:" + hex.EncodeToString(sum[:])
}
