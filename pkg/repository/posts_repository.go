package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"newstech/pkg/apierr"
	"newstech/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxPerPage    = 50
	timeLayout    = "2006-01-02T15:04:05.000000Z"
	defaultAuthor = "Anônimo"
)

var allowedExts = map[string]bool{"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PostsRepository is the SQL post store behind offline mode. It answers
// the same Backend calls as the remote API, with the same error types.
type PostsRepository struct {
	db         *sql.DB
	uploadsDir string
	uploadsURL string
	now        func() time.Time
	log        *zap.Logger
}

func NewPostsRepository(db *sql.DB, uploadsDir string, log *zap.Logger) *PostsRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostsRepository{
		db:         db,
		uploadsDir: uploadsDir,
		uploadsURL: "/uploads/",
		now:        time.Now,
		log:        log,
	}
}

func notFound(op string) error {
	return &apierr.HTTPError{Op: op, Status: http.StatusNotFound, Message: "Postagem não encontrada."}
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(q)) + "%"
}

func orderClause(s models.SortOrder) string {
	switch s {
	case models.SortOldest:
		return "criado_em ASC, id ASC"
	case models.SortTitleAsc:
		return "LOWER(titulo) ASC, id ASC"
	case models.SortTitleDesc:
		return "LOWER(titulo) DESC, id DESC"
	default:
		return "criado_em DESC, id DESC"
	}
}

// ListPosts filters on title and body, case-insensitively, and clamps the
// page to [1, pages].
func (r *PostsRepository) ListPosts(ctx context.Context, q models.Query) (models.Page, error) {
	q = q.Normalized(10)
	if q.PerPage > maxPerPage {
		q.PerPage = maxPerPage
	}

	where := ""
	var args []interface{}
	if q.Q != "" {
		where = ` WHERE LOWER(titulo) LIKE $1 ESCAPE '\' OR LOWER(conteudo) LIKE $1 ESCAPE '\'`
		args = append(args, likePattern(q.Q))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return models.Page{}, fmt.Errorf("contar posts: %w", err)
	}

	pages := (total + q.PerPage - 1) / q.PerPage
	if pages < 1 {
		pages = 1
	}
	page := q.Page
	if page > pages {
		page = pages
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT id, titulo, autor, conteudo, COALESCE(image_filename, ''), criado_em, COALESCE(atualizado_em, '')
		FROM posts%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, where, orderClause(q.Sort), n+1, n+2)
	args = append(args, q.PerPage, (page-1)*q.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.Page{}, fmt.Errorf("listar posts: %w", err)
	}
	defer rows.Close()

	items, err := r.scanPosts(rows)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{
		Items: items,
		Meta: models.Meta{
			Page:    page,
			Pages:   pages,
			Total:   total,
			HasPrev: page > 1,
			HasNext: page < pages,
		},
	}, nil
}

func (r *PostsRepository) GetPost(ctx context.Context, id int) (models.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, titulo, autor, conteudo, COALESCE(image_filename, ''), criado_em, COALESCE(atualizado_em, '')
		FROM posts WHERE id = $1
	`, id)
	p, err := r.scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, notFound("get post")
	}
	return p, err
}

func (r *PostsRepository) DeletePost(ctx context.Context, id int) error {
	var filename string
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(image_filename, '') FROM posts WHERE id = $1`, id).Scan(&filename)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("delete post")
	}
	if err != nil {
		return fmt.Errorf("buscar post: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("excluir post: %w", err)
	}
	r.removeUpload(filename)
	return nil
}

// SavePost inserts when id is 0 and updates otherwise. A new image replaces
// the stored one.
func (r *PostsRepository) SavePost(ctx context.Context, id int, fields models.PostFields, image *models.ImageFile) (models.Post, error) {
	fields = fields.Trimmed()
	if fields.Titulo == "" || fields.Conteudo == "" {
		return models.Post{}, &apierr.HTTPError{Op: "save post", Status: http.StatusBadRequest, Message: "Campos obrigatórios: titulo, conteudo"}
	}
	if fields.Autor == "" {
		fields.Autor = defaultAuthor
	}

	var filename string
	if image != nil && len(image.Data) > 0 {
		name, err := r.storeUpload(image)
		if err != nil {
			return models.Post{}, err
		}
		filename = name
	}

	now := r.now().UTC().Format(timeLayout)
	if id == 0 {
		var newID int
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO posts (titulo, autor, conteudo, image_filename, criado_em)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			RETURNING id
		`, fields.Titulo, fields.Autor, fields.Conteudo, filename, now).Scan(&newID)
		if err != nil {
			r.removeUpload(filename)
			return models.Post{}, fmt.Errorf("criar post: %w", err)
		}
		r.log.Info("post criado", zap.Int("id", newID))
		return r.GetPost(ctx, newID)
	}

	var old string
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(image_filename, '') FROM posts WHERE id = $1`, id).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		r.removeUpload(filename)
		return models.Post{}, notFound("save post")
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("buscar post: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE posts
		SET titulo = $1, autor = $2, conteudo = $3,
		    image_filename = COALESCE(NULLIF($4, ''), image_filename),
		    atualizado_em = $5
		WHERE id = $6
	`, fields.Titulo, fields.Autor, fields.Conteudo, filename, now, id); err != nil {
		r.removeUpload(filename)
		return models.Post{}, fmt.Errorf("atualizar post: %w", err)
	}
	if filename != "" && old != "" {
		r.removeUpload(old)
	}
	return r.GetPost(ctx, id)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostsRepository) scanPost(s scanner) (models.Post, error) {
	var p models.Post
	var filename string
	if err := s.Scan(&p.ID, &p.Titulo, &p.Autor, &p.Conteudo, &filename, &p.CriadoEm, &p.AtualizadoEm); err != nil {
		return models.Post{}, err
	}
	if filename != "" {
		p.ImageURL = r.uploadsURL + filename
	}
	return p, nil
}

func (r *PostsRepository) scanPosts(rows *sql.Rows) ([]models.Post, error) {
	posts := []models.Post{}
	for rows.Next() {
		p, err := r.scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("ler post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// SafeFilename keeps only the base name and a conservative character set.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

// AllowedImage reports whether the file extension is an accepted image type.
func AllowedImage(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return allowedExts[ext]
}

func (r *PostsRepository) storeUpload(img *models.ImageFile) (string, error) {
	if !AllowedImage(img.Filename) {
		return "", &apierr.HTTPError{Op: "save post", Status: http.StatusUnsupportedMediaType, Message: "Extensão de imagem não permitida."}
	}
	base := SafeFilename(img.Filename)
	if base == "" {
		base = "imagem" + strings.ToLower(filepath.Ext(img.Filename))
	}
	name := fmt.Sprintf("%d_%s_%s", r.now().Unix(), uuid.NewString()[:8], base)

	if err := os.MkdirAll(r.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("criar pasta de uploads: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.uploadsDir, name), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("gravar imagem: %w", err)
	}
	return name, nil
}

func (r *PostsRepository) removeUpload(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(filepath.Join(r.uploadsDir, name)); err != nil && !os.IsNotExist(err) {
		r.log.Warn("falha ao remover imagem", zap.String("file", name), zap.Error(err))
	}
}
