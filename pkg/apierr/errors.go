package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NetworkError means the request never produced an HTTP response: the
// connection failed, or the request timed out or was canceled.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: falha de rede: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response.
type HTTPError struct {
	Op      string
	Status  int
	Body    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Op, e.Status)
}

// Retryable reports whether the status is worth one more attempt.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ValidationError is raised before any network call when required fields
// are missing.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "campos obrigatórios: " + strings.Join(e.Fields, ", ")
}

// ParseError means the response body could not be decoded at all.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: resposta inválida: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Status returns the HTTP status carried by err, or 0.
func Status(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// IsUnauthorized reports a 401 anywhere in the chain.
func IsUnauthorized(err error) bool {
	return Status(err) == http.StatusUnauthorized
}

// Humanize turns a status code into a message fit for the user.
func Humanize(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Sem autorização (faça login novamente)."
	case status == http.StatusForbidden:
		return "Acesso negado."
	case status == http.StatusNotFound:
		return "Postagem não encontrada."
	case status == http.StatusTooManyRequests:
		return "Limite de uso atingido (tente novamente depois)."
	case status >= 500:
		return "Serviço temporariamente indisponível."
	default:
		return fmt.Sprintf("Erro HTTP %d.", status)
	}
}

// UserMessage picks the best message to show for err, falling back to
// fallback when nothing specific is known.
func UserMessage(err error, fallback string) string {
	var (
		he *HTTPError
		ve *ValidationError
		ne *NetworkError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &he):
		if he.Message != "" {
			return he.Message
		}
		return Humanize(he.Status)
	case errors.As(err, &ne):
		return "Falha de rede ou tempo esgotado."
	}
	return fallback
}
