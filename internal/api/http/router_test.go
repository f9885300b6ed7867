package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-itembank/internal/auth"
	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/importer"
	"github.com/mind-engage/mindengage-itembank/internal/media"
	"github.com/mind-engage/mindengage-itembank/internal/question"
	"github.com/mind-engage/mindengage-itembank/internal/storage"
)

type fakeImporter struct {
	res     *importer.Result
	err     error
	imports []importer.Upload
}

func (f *fakeImporter) Import(_ context.Context, up importer.Upload) (*importer.Result, error) {
	f.imports = append(f.imports, up)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeImporter) Validate(_ context.Context, up importer.Upload) (*importer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &importer.Result{Status: importer.StatusSuccess, FileName: up.FileName}, nil
}

type recordingBank struct {
	section string
	saved   []*question.Question
	fail    error
	during  func() // runs inside SaveImport
}

func (b *recordingBank) SaveImport(_ context.Context, section string, qs []*question.Question, _ []*media.Asset) (bank.SaveResult, error) {
	if b.during != nil {
		b.during()
	}
	if b.fail != nil {
		return bank.SaveResult{}, b.fail
	}
	b.section = section
	b.saved = qs
	res := bank.SaveResult{SectionID: section, Questions: len(qs)}
	for _, q := range qs {
		res.QuestionIDs = append(res.QuestionIDs, q.ID)
	}
	return res, nil
}

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	auth     *auth.AuthService
	imp      *fakeImporter
	bank     *recordingBank
	sessions *Sessions
	objects  *storage.FSStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	objects, err := storage.NewFSStore(t.TempDir(), "/assets")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		t:    t,
		auth: auth.NewAuthService("test-secret"),
		imp: &fakeImporter{res: &importer.Result{
			Status:   importer.StatusSuccess,
			FileName: "exam.docx",
			Questions: []*question.Question{
				{ID: "q1", Number: 1, Type: question.TypeSingle, Content: "one"},
				{ID: "q2", Number: 2, Type: question.TypeSingle, Content: "two"},
				{ID: "q3", Number: 3, Type: question.TypeSingle, Content: "three"},
			},
		}},
		bank:    &recordingBank{},
		objects: objects,
	}
	h.sessions = NewSessions(time.Minute, t.TempDir(), objects, nil)
	h.srv = httptest.NewServer(NewRouter(RouterDeps{
		Auth:       h.auth,
		Accounts:   auth.Accounts{DevLogins: true},
		LocalLogin: true,
		Importer:   h.imp,
		Sessions:   h.sessions,
		Bank:       h.bank,
		Events: func(*http.Request, int) ([]bank.Event, error) {
			return []bank.Event{{Seq: 1, Type: "import.completed", Key: "sec-1"}}, nil
		},
		Assets:    objects,
		MaxUpload: 1 << 20,
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) token(sub, role string) string {
	tok, _, err := h.auth.IssueJWT(sub, role)
	if err != nil {
		h.t.Fatal(err)
	}
	return tok
}

func (h *harness) do(method, path, tok string, body io.Reader, contentType string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	if err != nil {
		h.t.Fatal(err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) upload(path, tok, name string, data []byte) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		h.t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return h.do(http.MethodPost, path, tok, &buf, mw.FormDataContentType())
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestLoginThenStageAndCommit(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodPost, "/auth/login", "", strings.NewReader(`{"username":"teacher","password":"teacher"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"access_token"`
		Role  string `json:"role"`
	}
	decode(t, resp, &login)
	if login.Role != "teacher" {
		t.Fatalf("role = %q", login.Role)
	}

	resp = h.upload("/imports", login.Token, "exam.docx", []byte("PK fake"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("stage status = %d", resp.StatusCode)
	}
	var staged struct {
		ID    string `json:"id"`
		Total int    `json:"total"`
	}
	decode(t, resp, &staged)
	if staged.ID == "" || staged.Total != 3 {
		t.Fatalf("staged = %+v", staged)
	}
	if up := h.imp.imports[0]; up.Save || up.FileName != "exam.docx" {
		t.Fatalf("staging must not save: %+v", up)
	}

	resp = h.do(http.MethodGet, "/imports/"+staged.ID+"?page=2&limit=2", login.Token, nil, "")
	var page struct {
		Total     int                  `json:"total"`
		Questions []*question.Question `json:"questions"`
	}
	decode(t, resp, &page)
	if page.Total != 3 || len(page.Questions) != 1 || page.Questions[0].ID != "q3" {
		t.Fatalf("page 2 = %+v", page)
	}

	resp = h.do(http.MethodGet, "/imports/"+staged.ID+"/source", login.Token, nil, "")
	src, _ := io.ReadAll(resp.Body)
	if string(src) != "PK fake" {
		t.Fatalf("source = %q", src)
	}

	resp = h.do(http.MethodPost, "/imports/"+staged.ID+"/commit", login.Token,
		strings.NewReader(`{"section_id":"sec-1","question_ids":["q3","q1"]}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("commit status = %d: %s", resp.StatusCode, body)
	}
	if h.bank.section != "sec-1" || len(h.bank.saved) != 2 || h.bank.saved[0].ID != "q1" {
		t.Fatalf("saved %d questions into %q", len(h.bank.saved), h.bank.section)
	}

	resp = h.do(http.MethodGet, "/imports/"+staged.ID, login.Token, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("committed session still present: %d", resp.StatusCode)
	}
	if h.sessions.Arena.Len() != 0 {
		t.Fatalf("arena len = %d", h.sessions.Arena.Len())
	}
}

func TestCommitRejectsUnknownQuestions(t *testing.T) {
	h := newHarness(t)
	tok := h.token("teacher", "teacher")
	id, _ := h.sessions.Arena.Put(&Staged{Owner: "teacher", Result: h.imp.res})

	resp := h.do(http.MethodPost, "/imports/"+id+"/commit", tok,
		strings.NewReader(`{"section_id":"sec-1","question_ids":["q9"]}`), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if h.sessions.Arena.Len() != 1 {
		t.Fatal("rejected commit dropped the session")
	}
}

func TestCommitFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.bank.fail = errors.New("disk full")
	tok := h.token("teacher", "teacher")
	id, _ := h.sessions.Arena.Put(&Staged{Owner: "teacher", Result: h.imp.res})

	resp := h.do(http.MethodPost, "/imports/"+id+"/commit", tok, strings.NewReader(`{"section_id":"s"}`), "application/json")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := h.sessions.Arena.Get(id); err != nil {
		t.Fatalf("session lost after failed commit: %v", err)
	}
}

func TestSessionsAreOwned(t *testing.T) {
	h := newHarness(t)
	id, _ := h.sessions.Arena.Put(&Staged{Owner: "alice", Result: h.imp.res})

	if resp := h.do(http.MethodGet, "/imports/"+id, h.token("bob", "teacher"), nil, ""); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("other teacher: %d", resp.StatusCode)
	}
	if resp := h.do(http.MethodGet, "/imports/"+id, h.token("root", "admin"), nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin: %d", resp.StatusCode)
	}
}

func TestDiscardReleasesUploadedMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := "images/1_fig.png"
	if _, err := h.objects.Upload(ctx, []byte("png"), key, "image/png", true); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "staged.docx")
	os.WriteFile(src, []byte("x"), 0o644)
	res := &importer.Result{Assets: []*media.Asset{{FileName: "fig.png", StorageKey: key}}}
	id, _ := h.sessions.Arena.Put(&Staged{Owner: "teacher", SourcePath: src, Result: res})

	resp := h.do(http.MethodDelete, "/imports/"+id, h.token("teacher", "teacher"), nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ok, _ := h.objects.Exists(ctx, key); ok {
		t.Fatal("media object survived discard")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source copy survived discard: %v", err)
	}
}

func TestPermissions(t *testing.T) {
	h := newHarness(t)
	reviewer := h.token("rita", "reviewer")

	if resp := h.upload("/packages/validate", "", "exam.zip", []byte("x")); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous validate: %d", resp.StatusCode)
	}
	if resp := h.upload("/packages/validate", reviewer, "exam.zip", []byte("x")); resp.StatusCode != http.StatusOK {
		t.Fatalf("reviewer validate: %d", resp.StatusCode)
	}
	if resp := h.upload("/imports", reviewer, "exam.zip", []byte("x")); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reviewer stage: %d", resp.StatusCode)
	}
	if resp := h.do(http.MethodGet, "/events", reviewer, nil, ""); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reviewer events: %d", resp.StatusCode)
	}
	resp := h.do(http.MethodGet, "/events?limit=5", h.token("root", "admin"), nil, "")
	var evs []bank.Event
	decode(t, resp, &evs)
	if len(evs) != 1 || evs[0].Type != "import.completed" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestImportPackageSaveNeedsSection(t *testing.T) {
	h := newHarness(t)
	tok := h.token("teacher", "teacher")

	resp := h.upload("/packages/import?save=true", tok, "exam.docx", []byte("x"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp = h.upload("/packages/import?save=true&section_id=s1", tok, "exam.docx", []byte("x"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if up := h.imp.imports[0]; !up.Save || up.SectionID != "s1" {
		t.Fatalf("upload = %+v", up)
	}
}

func TestImportErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&importer.ValidationError{Reason: "bad"}, http.StatusBadRequest},
		{&importer.IntegrityError{Entry: "../x", Reason: "escapes"}, http.StatusBadRequest},
		{&importer.PersistenceError{Err: errors.New("db")}, http.StatusInternalServerError},
	}
	for _, c := range cases {
		h := newHarness(t)
		h.imp.err = c.err
		resp := h.upload("/packages/import", h.token("teacher", "teacher"), "exam.docx", []byte("x"))
		if resp.StatusCode != c.want {
			t.Errorf("%T: status = %d, want %d", c.err, resp.StatusCode, c.want)
		}
	}
}

func TestAssetsServeStoredMedia(t *testing.T) {
	h := newHarness(t)
	if _, err := h.objects.Upload(context.Background(), []byte("img"), "images/2_a.png", "image/png", true); err != nil {
		t.Fatal(err)
	}
	resp := h.do(http.MethodGet, "/assets/images/2_a.png", "", nil, "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp := h.do(http.MethodGet, "/assets/images/missing.png", "", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset: %d", resp.StatusCode)
	}
}

func TestPick(t *testing.T) {
	qs := []*question.Question{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	got, missing := pick(qs, []string{"c", "a", "x"})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("got %v", got)
	}
	if len(missing) != 1 || missing[0] != "x" {
		t.Fatalf("missing %v", missing)
	}
}

func TestCommitKeepsMediaWhenSessionExpiresDuringSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := "images/1_kept.png"
	if _, err := h.objects.Upload(ctx, []byte("png"), key, "image/png", true); err != nil {
		t.Fatal(err)
	}
	res := &importer.Result{
		Questions: h.imp.res.Questions,
		Assets:    []*media.Asset{{FileName: "kept.png", StorageKey: key}},
	}
	id, _ := h.sessions.Arena.Put(&Staged{Owner: "teacher", Result: res})
	h.bank.during = func() { h.sessions.Arena.Sweep(time.Now().Add(time.Hour)) }

	resp := h.do(http.MethodPost, "/imports/"+id+"/commit", h.token("teacher", "teacher"), strings.NewReader(`{"section_id":"s"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ok, _ := h.objects.Exists(ctx, key); !ok {
		t.Fatal("sweep during commit deleted saved media")
	}
}

func TestFailedCommitOfEvictedSessionReleasesMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := "images/1_orphan.png"
	if _, err := h.objects.Upload(ctx, []byte("png"), key, "image/png", true); err != nil {
		t.Fatal(err)
	}
	res := &importer.Result{
		Questions: h.imp.res.Questions,
		Assets:    []*media.Asset{{FileName: "orphan.png", StorageKey: key}},
	}
	id, _ := h.sessions.Arena.Put(&Staged{Owner: "teacher", Result: res})
	h.bank.fail = errors.New("db down")
	h.bank.during = func() { h.sessions.Arena.Sweep(time.Now().Add(time.Hour)) }

	resp := h.do(http.MethodPost, "/imports/"+id+"/commit", h.token("teacher", "teacher"), strings.NewReader(`{"section_id":"s"}`), "application/json")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ok, _ := h.objects.Exists(ctx, key); ok {
		t.Fatal("media of an evicted, unsaved session was kept")
	}
}

func TestStageFailureReleasesUploadedMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := "images/1_staged.png"
	if _, err := h.objects.Upload(ctx, []byte("png"), key, "image/png", true); err != nil {
		t.Fatal(err)
	}
	h.imp.res.Assets = []*media.Asset{{FileName: "staged.png", StorageKey: key}}
	h.sessions.scratch = filepath.Join(t.TempDir(), "missing")

	resp := h.upload("/imports", h.token("teacher", "teacher"), "exam.docx", []byte("PK"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ok, _ := h.objects.Exists(ctx, key); ok {
		t.Fatal("media uploaded before a failed stage was kept")
	}
	if h.sessions.Arena.Len() != 0 {
		t.Fatal("failed stage left a session")
	}
}
