package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"newstech/pkg/apierr"
	"newstech/pkg/models"

	"github.com/buger/jsonparser"
)

// itemKeys are the envelope keys known to carry the post list, in order of
// preference. "Objectitems" is what one of the older API builds emits.
var itemKeys = []string{"items", "Objectitems", "data", "posts", "results"}

var (
	pageKeys    = []string{"page", "current_page", "currentPage"}
	pagesKeys   = []string{"pages", "total_pages", "totalPages", "last_page"}
	totalKeys   = []string{"total", "total_items", "totalItems", "count"}
	hasPrevKeys = []string{"has_prev", "hasPrev", "has_previous"}
	hasNextKeys = []string{"has_next", "hasNext"}
)

// NormalizeEnvelope turns any of the list response shapes into a Page.
// Only a body that is not JSON at all is an error; every other surprise
// degrades to an empty list on page 1 of 1.
func NormalizeEnvelope(body []byte) (models.Page, error) {
	body = bytes.TrimSpace(body)
	page := models.Page{Items: []models.Post{}, Meta: models.DefaultMeta()}
	if len(body) == 0 {
		return page, nil
	}
	if !json.Valid(body) {
		return page, &apierr.ParseError{Op: "listar", Err: errors.New("JSON inválido")}
	}

	switch body[0] {
	case '[':
		page.Items = decodeItems(body)
		page.Meta = deriveMeta(models.Meta{}, false, false, len(page.Items))
	case '{':
		for _, key := range itemKeys {
			v, typ, _, err := jsonparser.Get(body, key)
			if err == nil && typ == jsonparser.Array {
				page.Items = decodeItems(v)
				break
			}
		}
		page.Meta = normalizeMeta(body, len(page.Items))
	}
	return page, nil
}

func decodeItems(arr []byte) []models.Post {
	items := []models.Post{}
	jsonparser.ArrayEach(arr, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		if err != nil || typ != jsonparser.Object {
			return
		}
		var p models.Post
		if json.Unmarshal(value, &p) != nil {
			return
		}
		items = append(items, p)
	})
	return items
}

// normalizeMeta reads pagination fields from "meta" when present, and from
// the top level of the envelope otherwise.
func normalizeMeta(envelope []byte, count int) models.Meta {
	src := envelope
	if v, typ, _, err := jsonparser.Get(envelope, "meta"); err == nil && typ == jsonparser.Object {
		src = v
	}

	var m models.Meta
	m.Page, _ = intField(src, pageKeys...)
	m.Pages, _ = intField(src, pagesKeys...)
	m.Total, _ = intField(src, totalKeys...)
	hasPrev, prevOK := boolField(src, hasPrevKeys...)
	hasNext, nextOK := boolField(src, hasNextKeys...)
	m.HasPrev, m.HasNext = hasPrev, hasNext

	return deriveMeta(m, prevOK, nextOK, count)
}

// deriveMeta fills in what the server left out.
func deriveMeta(m models.Meta, prevOK, nextOK bool, count int) models.Meta {
	if m.Page < 1 {
		m.Page = 1
	}
	if m.Pages < 1 {
		m.Pages = 1
	}
	if m.Page > m.Pages {
		m.Pages = m.Page
	}
	if m.Total == 0 && m.Pages == 1 {
		m.Total = count
	}
	if !prevOK {
		m.HasPrev = m.Page > 1
	}
	if !nextOK {
		m.HasNext = m.Page < m.Pages
	}
	return m
}

func intField(src []byte, keys ...string) (int, bool) {
	for _, key := range keys {
		v, typ, _, err := jsonparser.Get(src, key)
		if err != nil {
			continue
		}
		switch typ {
		case jsonparser.Number:
			if n, err := jsonparser.ParseInt(v); err == nil {
				return int(n), true
			}
			if f, err := jsonparser.ParseFloat(v); err == nil {
				return int(f), true
			}
		case jsonparser.String:
			if n, err := strconv.Atoi(string(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func boolField(src []byte, keys ...string) (bool, bool) {
	for _, key := range keys {
		v, typ, _, err := jsonparser.Get(src, key)
		if err != nil || typ != jsonparser.Boolean {
			continue
		}
		if b, err := jsonparser.ParseBoolean(v); err == nil {
			return b, true
		}
	}
	return false, false
}

// errorMessage extracts the server's error text from a JSON error body.
func errorMessage(body []byte) string {
	for _, key := range []string{"error", "erro", "message"} {
		if v, err := jsonparser.GetString(body, key); err == nil && v != "" {
			return v
		}
	}
	return ""
}
