// Package feeds reads the RSS sources of the sidebar and merges them into
// one date-sorted list.
package feeds

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"newstech/pkg/cache"
	"newstech/pkg/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit = 24
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0 Safari/537.36 NewsTechApp/1.0"
	failedPrefix = "[Falha ao ler feed] "
	failedSource = "rss-client"
)

var imageExt = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)$`)

type Fetcher struct {
	catalog     Catalog
	http        *http.Client
	redis       *cache.Redis
	ttl         time.Duration
	concurrency int
	log         *zap.Logger
}

func NewFetcher(catalog Catalog, client *http.Client, redis *cache.Redis, log *zap.Logger) *Fetcher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		catalog:     catalog,
		http:        client,
		redis:       redis,
		ttl:         5 * time.Minute,
		concurrency: 4,
		log:         log,
	}
}

func (f *Fetcher) Catalog() Catalog { return f.catalog }

// SetCacheTTL changes how long merged feeds stay in redis.
func (f *Fetcher) SetCacheTTL(d time.Duration) {
	if d > 0 {
		f.ttl = d
	}
}

// Fetch merges the feeds of category/sub (optionally one region), newest
// first, capped at limit. A feed that fails becomes a placeholder item
// instead of failing the whole call.
func (f *Fetcher) Fetch(ctx context.Context, category, sub, region string, limit int) ([]models.FeedItem, error) {
	urls, err := f.catalog.URLs(category, sub, region)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := fmt.Sprintf("feeds:%s:%s:%s:%d", norm(category), norm(sub), norm(region), limit)
	var cached []models.FeedItem
	if f.redis.Get(ctx, key, &cached) {
		return cached, nil
	}

	perFeed := make([][]models.FeedItem, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			items, err := f.fetchOne(gctx, u, limit)
			if err != nil {
				f.log.Warn("feed failed", zap.String("url", u), zap.Error(err))
				items = []models.FeedItem{{
					Title:       failedPrefix + u,
					Description: err.Error(),
					URL:         u,
					Source:      failedSource,
				}}
			}
			perFeed[i] = items
			return nil
		})
	}
	g.Wait()

	var all []models.FeedItem
	for _, items := range perFeed {
		all = append(all, items...)
	}
	SortByDate(all)
	if len(all) > limit {
		all = all[:limit]
	}

	if ctx.Err() == nil {
		f.redis.Set(ctx, key, all, f.ttl)
	}
	return all, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string, limit int) ([]models.FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://news-tech.local/")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	return Normalize(feed, limit), nil
}

// Normalize maps the first limit entries of feed to FeedItems.
func Normalize(feed *gofeed.Feed, limit int) []models.FeedItem {
	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = "RSS desconhecido"
	}
	entries := feed.Items
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]models.FeedItem, 0, len(entries))
	for _, e := range entries {
		desc := e.Description
		if desc == "" {
			desc = e.Content
		}
		it := models.FeedItem{
			Title:       CleanText(e.Title),
			Description: CleanText(desc),
			URL:         e.Link,
			ImageURL:    ExtractImage(e),
			Source:      source,
		}
		if it.Title == "" {
			it.Title = "(sem título)"
		}
		if t := entryTime(e); t != nil {
			it.PublishedAt = t.UTC().Format(time.RFC3339)
		}
		out = append(out, it)
	}
	return out
}

func entryTime(e *gofeed.Item) *time.Time {
	if e.PublishedParsed != nil {
		return e.PublishedParsed
	}
	return e.UpdatedParsed
}

// CleanText unescapes entities, drops markup and collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	if strings.ContainsAny(s, "<>") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// ExtractImage looks for a picture in media:content, media:thumbnail,
// image enclosures, the item image and finally the first <img> of the body.
func ExtractImage(e *gofeed.Item) string {
	if media, ok := e.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range e.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") || imageExt.MatchString(enc.URL) {
			return enc.URL
		}
	}
	if e.Image != nil && e.Image.URL != "" {
		return e.Image.URL
	}
	for _, body := range []string{e.Content, e.Description} {
		if !strings.Contains(body, "<img") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			continue
		}
		if src, ok := doc.Find("img[src]").First().Attr("src"); ok && src != "" {
			return src
		}
	}
	return ""
}

// SortByDate orders items newest first; undated items go last, keeping
// their relative order.
func SortByDate(items []models.FeedItem) {
	parsed := make(map[int]time.Time, len(items))
	for i, it := range items {
		if t, err := time.Parse(time.RFC3339, it.PublishedAt); err == nil {
			parsed[i] = t
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, oka := parsed[idx[a]]
		tb, okb := parsed[idx[b]]
		if oka != okb {
			return oka
		}
		return ta.After(tb)
	})
	sorted := make([]models.FeedItem, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}
