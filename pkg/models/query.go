package models

import (
	"net/url"
	"strconv"
	"strings"
)

type SortOrder string

const (
	SortRecent    SortOrder = "recente"
	SortOldest    SortOrder = "antigo"
	SortTitleAsc  SortOrder = "titulo-az"
	SortTitleDesc SortOrder = "titulo-za"
)

// ParseSortOrder maps a wire value to a SortOrder; unknown values fall back
// to SortRecent. The English names are accepted as aliases.
func ParseSortOrder(s string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "antigo", "oldest":
		return SortOldest
	case "titulo-az", "title-asc":
		return SortTitleAsc
	case "titulo-za", "title-desc":
		return SortTitleDesc
	default:
		return SortRecent
	}
}

// SortOrders lists the orders in the order the UI offers them.
var SortOrders = []SortOrder{SortRecent, SortOldest, SortTitleAsc, SortTitleDesc}

func (s SortOrder) Label() string {
	switch s {
	case SortOldest:
		return "Mais antigas"
	case SortTitleAsc:
		return "Título (A-Z)"
	case SortTitleDesc:
		return "Título (Z-A)"
	default:
		return "Mais recentes"
	}
}

// Query is the client-held state driving the next list fetch.
type Query struct {
	Q       string
	Page    int
	PerPage int
	Sort    SortOrder
}

func NewQuery(perPage int) Query {
	return Query{Page: 1, PerPage: perPage, Sort: SortRecent}
}

// Normalized clamps Page to at least 1 and fills empty fields.
func (q Query) Normalized(defaultPerPage int) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.Sort == "" {
		q.Sort = SortRecent
	}
	return q
}

// Values encodes the query the way the posts API expects it.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Q != "" {
		v.Set("q", q.Q)
	}
	v.Set("page", strconv.Itoa(q.Page))
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Sort != "" {
		v.Set("ordem", string(q.Sort))
	}
	return v
}

// PageValues is the shareable form used in frontend links: per_page is left
// out because it is a server setting.
func (q Query) PageValues(page int) url.Values {
	v := url.Values{}
	if q.Q != "" {
		v.Set("q", q.Q)
	}
	if q.Sort != "" && q.Sort != SortRecent {
		v.Set("ordem", string(q.Sort))
	}
	v.Set("page", strconv.Itoa(page))
	return v
}

// QueryFromValues reads a Query from URL parameters. Both "page" and the
// legacy "p" are accepted.
func QueryFromValues(v url.Values, defaultPerPage int) Query {
	q := Query{
		Q:    strings.TrimSpace(v.Get("q")),
		Sort: ParseSortOrder(v.Get("ordem")),
	}
	raw := v.Get("page")
	if raw == "" {
		raw = v.Get("p")
	}
	q.Page, _ = strconv.Atoi(raw)
	q.PerPage, _ = strconv.Atoi(v.Get("per_page"))
	return q.Normalized(defaultPerPage)
}
