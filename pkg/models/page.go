package models

// Meta is the normalized pagination metadata of a list response.
type Meta struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	Total   int  `json:"total,omitempty"`
	HasPrev bool `json:"has_prev"`
	HasNext bool `json:"has_next"`
}

// DefaultMeta is page 1 of 1.
func DefaultMeta() Meta {
	return Meta{Page: 1, Pages: 1}
}

// Page is the canonical shape every backend returns.
type Page struct {
	Items []Post `json:"items"`
	Meta  Meta   `json:"meta"`
}

// Me is the response of /api/me.
type Me struct {
	Logged    bool   `json:"logged"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName is what the publish form puts in the author field.
func (m Me) DisplayName() string {
	switch {
	case m.Username != "":
		return m.Username
	case m.Email != "":
		return m.Email
	default:
		return "Usuário"
	}
}

// FeedItem is a normalized RSS entry for the sidebar.
type FeedItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	ImageURL    string `json:"urlToImage,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Source      string `json:"source"`
}
