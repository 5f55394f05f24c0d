package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newstech/pkg/apierr"
	"newstech/pkg/models"

	"go.uber.org/zap"
)

// Backend is the data path behind the listing and publish flows. The remote
// Client, the offline SQL repository and the caching service all satisfy it.
type Backend interface {
	ListPosts(ctx context.Context, q models.Query) (models.Page, error)
	GetPost(ctx context.Context, id int) (models.Post, error)
	DeletePost(ctx context.Context, id int) error
	// SavePost creates the post when id is zero and replaces it otherwise.
	SavePost(ctx context.Context, id int, fields models.PostFields, image *models.ImageFile) (models.Post, error)
}

// Session exposes the login state of the current user.
type Session interface {
	Me(ctx context.Context) (models.Me, error)
	Logout(ctx context.Context) error
}

const maxBody = 10 << 20

// Client talks to the external posts API.
type Client struct {
	base       *url.URL
	http       *http.Client
	postsPath  string
	imageField string
	timeout    time.Duration
	log        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithImageField sets the multipart field name used for uploads.
func WithImageField(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.imageField = name
		}
	}
}

func WithPostsPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.postsPath = path
		}
	}
}

// WithTimeout bounds list, delete and save calls. Zero leaves it to the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q precisa de esquema e host", baseURL)
	}
	c := &Client{
		base:       u,
		http:       &http.Client{},
		postsPath:  "/api/posts",
		imageField: "image",
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ListPosts(ctx context.Context, q models.Query) (models.Page, error) {
	body, err := c.do(ctx, "listar", http.MethodGet, c.postsPath, q.Values(), nil, "")
	if err != nil {
		return models.Page{}, err
	}
	page, err := NormalizeEnvelope(body)
	if err != nil {
		return page, err
	}
	c.log.Debug("posts listed",
		zap.String("q", q.Q), zap.Int("page", page.Meta.Page),
		zap.Int("pages", page.Meta.Pages), zap.Int("items", len(page.Items)))
	return page, nil
}

func (c *Client) GetPost(ctx context.Context, id int) (models.Post, error) {
	body, err := c.do(ctx, "carregar", http.MethodGet, c.postPath(id), nil, nil, "")
	if err != nil {
		return models.Post{}, err
	}
	var p models.Post
	if err := json.Unmarshal(body, &p); err != nil {
		return p, &apierr.ParseError{Op: "carregar", Err: err}
	}
	return p, nil
}

func (c *Client) DeletePost(ctx context.Context, id int) error {
	_, err := c.do(ctx, "excluir", http.MethodDelete, c.postPath(id), nil, nil, "")
	return err
}

func (c *Client) SavePost(ctx context.Context, id int, fields models.PostFields, image *models.ImageFile) (models.Post, error) {
	op, method, path := "criar", http.MethodPost, c.postsPath
	if id != 0 {
		op, method, path = "atualizar", http.MethodPut, c.postPath(id)
	}

	var (
		payload     []byte
		contentType string
		err         error
	)
	if image != nil && len(image.Data) > 0 {
		payload, contentType, err = c.multipartBody(fields, image)
	} else {
		payload, err = json.Marshal(fields)
		contentType = "application/json"
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: montando corpo: %w", op, err)
	}

	body, err := c.do(ctx, op, method, path, nil, bytes.NewReader(payload), contentType)
	if err != nil {
		return models.Post{}, err
	}
	var p models.Post
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, &apierr.ParseError{Op: op, Err: err}
	}
	return p, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody encodes the fields and the file. The content type, boundary
// included, always comes from the multipart writer.
func (c *Client) multipartBody(fields models.PostFields, image *models.ImageFile) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range [][2]string{
		{"titulo", fields.Titulo},
		{"autor", fields.Autor},
		{"conteudo", fields.Conteudo},
	} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	ct := image.ContentType
	if ct == "" {
		ct = http.DetectContentType(image.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(c.imageField), quoteEscaper.Replace(image.Filename)))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (c *Client) Me(ctx context.Context) (models.Me, error) {
	body, err := c.do(ctx, "sessão", http.MethodGet, "/api/me", nil, nil, "")
	if apierr.IsUnauthorized(err) {
		return models.Me{}, nil
	}
	if err != nil {
		return models.Me{}, err
	}
	var me models.Me
	if err := json.Unmarshal(body, &me); err != nil {
		return me, &apierr.ParseError{Op: "sessão", Err: err}
	}
	return me, nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "sair", http.MethodGet, "/logout", nil, nil, "")
	return err
}

func (c *Client) postPath(id int) string {
	return c.postsPath + "/" + strconv.Itoa(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie := CredentialsFrom(ctx); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apierr.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &apierr.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("api request failed",
			zap.String("op", op), zap.String("method", method),
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		snippet := data
		if len(snippet) > 2048 {
			snippet = snippet[:2048]
		}
		return nil, &apierr.HTTPError{
			Op:      op,
			Status:  resp.StatusCode,
			Body:    string(snippet),
			Message: errorMessage(data),
		}
	}
	return data, nil
}
