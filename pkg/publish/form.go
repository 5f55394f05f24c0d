// Package publish is the create/edit form flow: login gate, loading an
// existing post, validation and submission.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"newstech/pkg/api"
	"newstech/pkg/apierr"
	"newstech/pkg/models"

	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Loading
	Submitting
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

const (
	MissingFieldsMessage = "Preencha todos os campos."
	LoadFailedMessage    = "Erro ao carregar a postagem."
	SaveFailedMessage    = "Erro ao salvar a postagem."
)

// ErrBusy is returned when a load or submit is already running.
var ErrBusy = errors.New("publish: operação em andamento")

// Outcome tells the caller where to go next. An empty Redirect means stay
// on the form.
type Outcome struct {
	Redirect string
	Post     models.Post
}

// Validate checks the required fields after trimming.
func Validate(f models.PostFields) error {
	f = f.Trimmed()
	var missing []string
	if f.Titulo == "" {
		missing = append(missing, "titulo")
	}
	if f.Autor == "" {
		missing = append(missing, "autor")
	}
	if f.Conteudo == "" {
		missing = append(missing, "conteudo")
	}
	if len(missing) > 0 {
		return &apierr.ValidationError{Fields: missing, Message: MissingFieldsMessage}
	}
	return nil
}

type Form struct {
	backend  api.Backend
	session  api.Session
	loginURL string
	doneURL  string
	log      *zap.Logger

	mu     sync.Mutex
	state  State
	id     int
	fields models.PostFields
	image  string
	locked bool
	err    error

	loadFailed bool
}

func NewForm(backend api.Backend, session api.Session, loginURL string, log *zap.Logger) *Form {
	if log == nil {
		log = zap.NewNop()
	}
	return &Form{
		backend:  backend,
		session:  session,
		loginURL: loginURL,
		doneURL:  "/",
		log:      log,
	}
}

// Snapshot is a copy of the form for rendering.
type Snapshot struct {
	State        State
	ID           int
	Fields       models.PostFields
	ImageURL     string
	AuthorLocked bool
	Err          error
	LoadFailed   bool
}

func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		State:        f.state,
		ID:           f.id,
		Fields:       f.fields,
		ImageURL:     f.image,
		AuthorLocked: f.locked,
		Err:          f.err,
		LoadFailed:   f.loadFailed,
	}
}

// Message is the text to show for the last failure, or "".
func (s Snapshot) Message() string {
	if s.Err == nil {
		return ""
	}
	fallback := SaveFailedMessage
	if s.LoadFailed {
		fallback = LoadFailedMessage
	}
	return apierr.UserMessage(s.Err, fallback)
}

// Gate lets only logged-in users through. When the user is logged in the
// author field is pre-filled with their name and locked.
func (f *Form) Gate(ctx context.Context) (Outcome, error) {
	if f.session == nil {
		return Outcome{}, nil
	}
	me, err := f.session.Me(ctx)
	if err != nil {
		if apierr.IsUnauthorized(err) {
			return Outcome{Redirect: f.loginURL}, nil
		}
		return Outcome{}, fmt.Errorf("check session: %w", err)
	}
	if !me.Logged {
		return Outcome{Redirect: f.loginURL}, nil
	}

	f.mu.Lock()
	if f.fields.Autor == "" {
		f.fields.Autor = me.DisplayName()
	}
	f.locked = true
	f.mu.Unlock()
	return Outcome{}, nil
}

// Load fetches post id into the form for editing.
func (f *Form) Load(ctx context.Context, id int) (Outcome, error) {
	if err := f.enter(Loading); err != nil {
		return Outcome{}, err
	}

	post, err := f.backend.GetPost(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
	if err != nil {
		if apierr.IsUnauthorized(err) {
			f.state = Idle
			return Outcome{Redirect: f.loginURL}, nil
		}
		f.state = Failed
		f.err = err
		f.loadFailed = true
		f.log.Warn("load post failed", zap.Int("id", id), zap.Error(err))
		return Outcome{}, err
	}
	f.fields = models.PostFields{Titulo: post.Titulo, Autor: post.Author(), Conteudo: post.Conteudo}
	if post.Autor != "" {
		f.fields.Autor = post.Autor
	}
	f.image = post.ImageURL
	f.state = Idle
	f.err = nil
	return Outcome{Post: post}, nil
}

// Submit validates and saves. id 0 creates a post, anything else updates it.
// Validation failures never reach the backend.
func (f *Form) Submit(ctx context.Context, id int, fields models.PostFields, image *models.ImageFile) (Outcome, error) {
	fields = fields.Trimmed()

	f.mu.Lock()
	if f.state == Loading || f.state == Submitting {
		f.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	if f.locked && f.fields.Autor != "" && id == 0 {
		fields.Autor = f.fields.Autor
	}
	f.id = id
	f.fields = fields
	f.loadFailed = false
	if err := Validate(fields); err != nil {
		f.state = Failed
		f.err = err
		f.mu.Unlock()
		return Outcome{}, err
	}
	f.state = Submitting
	f.err = nil
	f.mu.Unlock()

	post, err := f.backend.SavePost(ctx, id, fields, image)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		if apierr.IsUnauthorized(err) {
			f.state = Idle
			return Outcome{Redirect: f.loginURL}, nil
		}
		f.state = Failed
		f.err = err
		f.log.Warn("save post failed", zap.Int("id", id), zap.Error(err))
		return Outcome{}, err
	}
	f.state = Success
	return Outcome{Redirect: f.doneURL, Post: post}, nil
}

func (f *Form) enter(s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Loading || f.state == Submitting {
		return ErrBusy
	}
	f.state = s
	f.err = nil
	return nil
}

// ParseID reads the optional ?id= of the form URL. Blank means a new post.
func ParseID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("id inválido: %q", raw)
	}
	return id, nil
}
