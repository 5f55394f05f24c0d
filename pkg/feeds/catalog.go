package feeds

import (
	"fmt"
	"sort"
	"strings"
)

// Source is one subcategory: plain URLs, URLs grouped by region, or both.
type Source struct {
	URLs    []string
	Regions map[string][]string
}

// All returns every URL of the source, regions in name order.
func (s Source) All() []string {
	out := append([]string(nil), s.URLs...)
	for _, r := range s.RegionNames() {
		out = append(out, s.Regions[r]...)
	}
	return out
}

func (s Source) RegionNames() []string {
	names := make([]string, 0, len(s.Regions))
	for r := range s.Regions {
		names = append(names, r)
	}
	sort.Strings(names)
	return names
}

// Catalog maps category -> subkey -> feeds.
type Catalog map[string]map[string]Source

// LookupError is an unknown category, subkey or region.
type LookupError struct {
	Message string
}

func (e *LookupError) Error() string { return e.Message }

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (c Catalog) Categories() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Subkeys lists the valid subkeys of category, or nil.
func (c Catalog) Subkeys(category string) []string {
	subs, ok := c[norm(category)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(subs))
	for k := range subs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// URLs resolves category/sub (and region when non-empty) to feed URLs.
func (c Catalog) URLs(category, sub, region string) ([]string, error) {
	cat, s, r := norm(category), norm(sub), norm(region)
	subs, ok := c[cat]
	if !ok {
		return nil, &LookupError{Message: "Categoria inválida: " + cat}
	}
	src, ok := subs[s]
	if !ok {
		return nil, &LookupError{Message: fmt.Sprintf("Subcategoria inválida: %s (válidas: %s)", s, strings.Join(c.Subkeys(cat), ", "))}
	}
	if r == "" {
		return src.All(), nil
	}
	urls, ok := src.Regions[r]
	if !ok || len(urls) == 0 {
		return nil, &LookupError{Message: fmt.Sprintf("Região '%s' não encontrada em %s/%s", r, cat, s)}
	}
	return urls, nil
}

// Link is a sidebar entry.
type Link struct {
	Category string
	Sub      string
	Label    string
}

func (c Catalog) Links() []Link {
	var out []Link
	for _, cat := range c.Categories() {
		for _, sub := range c.Subkeys(cat) {
			out = append(out, Link{Category: cat, Sub: sub, Label: cat + " / " + sub})
		}
	}
	return out
}

// DefaultCatalog is the built-in list of tech news feeds.
func DefaultCatalog() Catalog {
	return Catalog{
		"hardware": {
			"nacional": {URLs: []string{"https://canaltech.com.br/rss/hardware/"}},
			"internacional": {URLs: []string{
				"https://www.tomshardware.com/feeds/all",
				"https://www.extremetech.com/feed",
			}},
		},
		"games": {
			"nacional": {URLs: []string{
				"https://www.theenemy.com.br/rss",
				"https://www.gamevicio.com/rss/noticias/",
				"https://www.theenemy.com.br/games/rss-de-volta",
			}},
			"internacional": {URLs: []string{
				"https://www.pcgamer.com/rss/",
				"https://www.tweaktown.com/feeds/news-mf.xml",
			}},
			"console": {URLs: []string{
				"https://blog.playstation.com/feed/",
				"https://news.xbox.com/en-us/feed/",
				"https://store.steampowered.com/feeds/news.xml",
			}},
		},
		"tecnologia": {
			"ia": {Regions: map[string][]string{
				"nacional": {
					"https://canaltech.com.br/rss/inteligencia-artificial/",
					"https://olhardigital.com.br/feed/",
				},
				"internacional": {
					"https://www.theverge.com/rss/index.xml",
					"https://www.theverge.com/artificial-intelligence/rss/index.xml",
				},
			}},
			"seguranca": {Regions: map[string][]string{
				"nacional": {
					"https://www.cisoadvisor.com.br/feed/",
					"https://www.tecmundo.com.br/seguranca/rss",
				},
				"internacional": {
					"https://feeds.feedburner.com/TechCrunch/startups",
					"https://krebsonsecurity.com/feed/",
					"https://www.bleepingcomputer.com/feed/",
				},
			}},
			"gadgets": {Regions: map[string][]string{
				"nacional": {
					"https://www.tudocelular.com/rss/",
					"https://tecnoblog.net/feed/",
				},
				"internacional": {
					"https://www.engadget.com/rss.xml",
					"https://www.androidauthority.com/feed/",
					"https://www.techrepublic.com/rssfeeds/articles/",
				},
			}},
		},
		"desenvolvedores": {
			"nacional": {URLs: []string{
				"https://imasters.com.br/feed",
				"https://www.infoq.com/br/feed",
			}},
			"internacional": {URLs: []string{
				"https://news.ycombinator.com/rss",
				"https://stackoverflow.blog/feed/",
			}},
			"devops":   {URLs: []string{"https://dev.to/feed/tag/devops"}},
			"ai_tools": {URLs: []string{"https://dev.to/feed/tag/machinelearning"}},
		},
	}
}
