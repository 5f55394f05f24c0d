package models

import (
	"strings"
	"time"
)

// Post is a news entry as returned by the posts API. The API is not
// consistent about field names, so the alternates are all kept and read
// through the accessor methods.
type Post struct {
	ID           int    `json:"id"`
	Titulo       string `json:"titulo"`
	Conteudo     string `json:"conteudo"`
	Autor        string `json:"autor,omitempty"`
	AutorNome    string `json:"autor_nome,omitempty"`
	AutorEmail   string `json:"autor_email,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	CriadoEm     string `json:"criado_em,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	AtualizadoEm string `json:"atualizado_em,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

const (
	untitled      = "Sem título"
	unknownAuthor = "Autor desconhecido"
)

// Title returns the display title.
func (p Post) Title() string {
	if strings.TrimSpace(p.Titulo) == "" {
		return untitled
	}
	return p.Titulo
}

// Author prefers the author's name, then email, then the free-form author field.
func (p Post) Author() string {
	for _, a := range []string{p.AutorNome, p.AutorEmail, p.Autor} {
		if strings.TrimSpace(a) != "" {
			return a
		}
	}
	return unknownAuthor
}

// Created returns the creation timestamp, if the server sent a parseable one.
func (p Post) Created() (time.Time, bool) {
	return firstTime(p.CreatedAt, p.CriadoEm)
}

// Updated returns the last update timestamp, if any.
func (p Post) Updated() (time.Time, bool) {
	return firstTime(p.UpdatedAt, p.AtualizadoEm)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02",
}

func firstTime(values ...string) (time.Time, bool) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if t, ok := ParseTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime accepts ISO-8601 (with or without zone) and the RFC 1123 form
// Flask's jsonify produces for datetimes.
func ParseTime(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PostFields are the user-editable fields of the publish form.
type PostFields struct {
	Titulo   string `json:"titulo"`
	Autor    string `json:"autor,omitempty"`
	Conteudo string `json:"conteudo"`
}

// Trimmed returns a copy with surrounding whitespace removed.
func (f PostFields) Trimmed() PostFields {
	return PostFields{
		Titulo:   strings.TrimSpace(f.Titulo),
		Autor:    strings.TrimSpace(f.Autor),
		Conteudo: strings.TrimSpace(f.Conteudo),
	}
}

// ImageFile is an optional upload attached to a publish request.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
