package render

import (
	"fmt"
	"io"
	"strings"

	"newstech/pkg/models"
	"newstech/pkg/pagination"
)

// Text writes a page of posts as plain text, one block per card, followed
// by the count and the page label.
func (r *Renderer) Text(w io.Writer, page models.Page, c pagination.Control) error {
	return WriteText(w, BuildCards(page.Items, nil, r.opts), c)
}

func WriteText(w io.Writer, cards []Card, c pagination.Control) error {
	var b strings.Builder
	if len(cards) == 0 {
		b.WriteString(EmptyMessage + "\n")
	}
	for _, card := range cards {
		fmt.Fprintf(&b, "#%d  %s\n", card.ID, card.Title)
		meta := card.Author
		if card.When != "" {
			meta += " · " + card.When
		}
		fmt.Fprintf(&b, "     %s\n", meta)
		if card.Body != "" {
			fmt.Fprintf(&b, "     %s\n", strings.ReplaceAll(card.Body, "\n", "\n     "))
		}
		if card.Image != nil {
			fmt.Fprintf(&b, "     [img] %s\n", card.Image.Src)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s · %s\n", CountLabel(len(cards)), c.Label)
	_, err := io.WriteString(w, b.String())
	return err
}
