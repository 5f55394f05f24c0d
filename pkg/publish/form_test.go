package publish

import (
	"context"
	"errors"
	"testing"

	"newstech/pkg/apierr"
	"newstech/pkg/models"
)

type fakeBackend struct {
	saves   int
	saveErr error
	getErr  error
	post    models.Post
	gotID   int
	gotData models.PostFields
}

func (f *fakeBackend) ListPosts(context.Context, models.Query) (models.Page, error) {
	return models.Page{}, nil
}

func (f *fakeBackend) GetPost(_ context.Context, id int) (models.Post, error) {
	if f.getErr != nil {
		return models.Post{}, f.getErr
	}
	p := f.post
	p.ID = id
	return p, nil
}

func (f *fakeBackend) DeletePost(context.Context, int) error { return nil }

func (f *fakeBackend) SavePost(_ context.Context, id int, fields models.PostFields, _ *models.ImageFile) (models.Post, error) {
	f.saves++
	f.gotID = id
	f.gotData = fields
	if f.saveErr != nil {
		return models.Post{}, f.saveErr
	}
	return models.Post{ID: 42, Titulo: fields.Titulo}, nil
}

type fakeSession struct {
	me  models.Me
	err error
}

func (s fakeSession) Me(context.Context) (models.Me, error) { return s.me, s.err }
func (s fakeSession) Logout(context.Context) error          { return nil }

func TestValidate(t *testing.T) {
	err := Validate(models.PostFields{Titulo: "  ", Autor: "ana", Conteudo: "\n"})
	var ve *apierr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Error() != MissingFieldsMessage {
		t.Errorf("message %q", ve.Error())
	}
	if len(ve.Fields) != 2 || ve.Fields[0] != "titulo" || ve.Fields[1] != "conteudo" {
		t.Errorf("fields %v", ve.Fields)
	}
	if err := Validate(models.PostFields{Titulo: "a", Autor: "b", Conteudo: "c"}); err != nil {
		t.Errorf("valid fields rejected: %v", err)
	}
}

func TestSubmitValidationNeverCallsBackend(t *testing.T) {
	b := &fakeBackend{}
	f := NewForm(b, nil, "/login", nil)

	_, err := f.Submit(context.Background(), 0, models.PostFields{Titulo: "t"}, nil)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if b.saves != 0 {
		t.Error("invalid form reached the backend")
	}
	snap := f.Snapshot()
	if snap.State != Failed || snap.Message() != MissingFieldsMessage {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Fields.Titulo != "t" {
		t.Error("form should keep what was typed")
	}
}

func TestSubmitSuccess(t *testing.T) {
	b := &fakeBackend{}
	f := NewForm(b, fakeSession{me: models.Me{Logged: true, Username: "ana"}}, "/login", nil)
	if out, err := f.Gate(context.Background()); err != nil || out.Redirect != "" {
		t.Fatalf("Gate = %+v, %v", out, err)
	}

	out, err := f.Submit(context.Background(), 0, models.PostFields{Titulo: " T ", Autor: "intruso", Conteudo: "C"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Redirect != "/" || out.Post.ID != 42 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if b.gotData.Titulo != "T" || b.gotData.Autor != "ana" {
		t.Errorf("unexpected payload %+v", b.gotData)
	}
	if f.Snapshot().State != Success {
		t.Error("state should be success")
	}
}

func TestSubmitServerError(t *testing.T) {
	b := &fakeBackend{saveErr: &apierr.HTTPError{Status: 400, Message: "Título muito longo"}}
	f := NewForm(b, nil, "/login", nil)

	_, err := f.Submit(context.Background(), 3, models.PostFields{Titulo: "T", Autor: "a", Conteudo: "C"}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	snap := f.Snapshot()
	if snap.State != Failed || snap.Message() != "Título muito longo" {
		t.Errorf("unexpected snapshot %+v / %q", snap, snap.Message())
	}
	if b.gotID != 3 {
		t.Errorf("update went to id %d", b.gotID)
	}
}

func TestUnauthorizedRedirectsToLogin(t *testing.T) {
	b := &fakeBackend{saveErr: &apierr.HTTPError{Status: 401}}
	f := NewForm(b, nil, "/login", nil)

	out, err := f.Submit(context.Background(), 0, models.PostFields{Titulo: "T", Autor: "a", Conteudo: "C"}, nil)
	if err != nil || out.Redirect != "/login" {
		t.Fatalf("Submit = %+v, %v", out, err)
	}

	b.getErr = &apierr.HTTPError{Status: 401}
	out, err = f.Load(context.Background(), 5)
	if err != nil || out.Redirect != "/login" {
		t.Fatalf("Load = %+v, %v", out, err)
	}
}

func TestGateRequiresLogin(t *testing.T) {
	f := NewForm(&fakeBackend{}, fakeSession{me: models.Me{Logged: false}}, "/login", nil)
	out, err := f.Gate(context.Background())
	if err != nil || out.Redirect != "/login" {
		t.Fatalf("Gate = %+v, %v", out, err)
	}
}

func TestLoadFillsForm(t *testing.T) {
	b := &fakeBackend{post: models.Post{Titulo: "Velho", Autor: "zé", Conteudo: "texto", ImageURL: "/uploads/a.png"}}
	f := NewForm(b, nil, "/login", nil)

	if _, err := f.Load(context.Background(), 8); err != nil {
		t.Fatal(err)
	}
	snap := f.Snapshot()
	if snap.ID != 8 || snap.Fields.Titulo != "Velho" || snap.Fields.Autor != "zé" || snap.ImageURL != "/uploads/a.png" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.State != Idle {
		t.Errorf("state %v, want idle", snap.State)
	}

	b.getErr = &apierr.HTTPError{Status: 404}
	if _, err := f.Load(context.Background(), 9); err == nil {
		t.Fatal("expected an error")
	}
	if msg := f.Snapshot().Message(); msg != apierr.Humanize(404) {
		t.Errorf("message %q", msg)
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID(""); id != 0 || err != nil {
		t.Errorf("blank: %d, %v", id, err)
	}
	if id, err := ParseID("12"); id != 12 || err != nil {
		t.Errorf("12: %d, %v", id, err)
	}
	for _, bad := range []string{"abc", "-1", "0", "12abc"} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}
