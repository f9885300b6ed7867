package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/importer"
	"github.com/mind-engage/mindengage-itembank/internal/logger"
	"github.com/mind-engage/mindengage-itembank/internal/question"
	"github.com/mind-engage/mindengage-itembank/internal/rbac"
	"github.com/mind-engage/mindengage-itembank/internal/session"
	"github.com/mind-engage/mindengage-itembank/internal/storage"
)

// Staged is a parsed upload waiting for review. SourcePath is a copy of
// the uploaded file, served back while the session lives.
type Staged struct {
	Owner      string
	FileName   string
	SourcePath string
	Result     *importer.Result
	Expires    time.Time

	committing sync.Mutex
	committed  atomic.Bool // saved media belongs to the bank
}

// Sessions bundles the arena with what eviction needs to clean up.
type Sessions struct {
	Arena   *session.Arena[*Staged]
	scratch string
	objects storage.ObjectStore
	log     *logger.Logger
}

// NewSessions builds the session arena. Sessions that expire or are
// discarded lose their source copy and the media objects they uploaded.
func NewSessions(ttl time.Duration, scratch string, objects storage.ObjectStore, log *logger.Logger) *Sessions {
	s := &Sessions{scratch: scratch, objects: objects, log: logger.OrNop(log).With("component", "sessions")}
	s.Arena = session.NewArena[*Staged](ttl,
		session.WithEvict(s.release),
		session.WithLogger[*Staged](s.log))
	return s
}

func (s *Sessions) release(id string, st *Staged) {
	if st.SourcePath != "" {
		_ = os.Remove(st.SourcePath)
	}
	if s.objects == nil || st.Result == nil || st.committed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, a := range st.Result.Assets {
		if a.StorageKey == "" {
			continue
		}
		if err := s.objects.Delete(ctx, a.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("release staged media", "session", id, "key", a.StorageKey, "error", err)
		}
	}
}

func (s *Sessions) lookup(w http.ResponseWriter, r *http.Request) (string, *Staged, bool) {
	id := chi.URLParam(r, "id")
	st, err := s.Arena.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return "", nil, false
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	if st.Owner != p.Subject && p.Role != "admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", nil, false
	}
	return id, st, true
}

// POST /imports (multipart: file=...) parses without saving and stages the
// result for review.
func StageImportHandler(svc Importer, s *Sessions, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := readUpload(w, r, maxBytes)
		if err != nil {
			writeImportError(w, err)
			return
		}
		res, err := svc.Import(r.Context(), importer.Upload{FileName: name, Data: data})
		if err != nil {
			writeImportError(w, err)
			return
		}
		src, err := os.CreateTemp(s.scratch, "staged-*"+filepath.Ext(name))
		if err != nil {
			s.release("", &Staged{Result: res})
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, werr := src.Write(data)
		if cerr := src.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			s.release("", &Staged{SourcePath: src.Name(), Result: res})
			http.Error(w, werr.Error(), http.StatusInternalServerError)
			return
		}
		p, _ := rbac.PrincipalFromContext(r.Context())
		st := &Staged{Owner: p.Subject, FileName: name, SourcePath: src.Name(), Result: res}
		id, exp := s.Arena.Put(st)
		st.Expires = exp
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":         id,
			"status":     res.Status,
			"total":      len(res.Questions),
			"statistics": res.Statistics,
			"errors":     res.Errors,
			"warnings":   res.Warnings,
			"expiresAt":  exp.Unix(),
		})
	}
}

// GET /imports/{id}?page=&limit=
func PreviewImportHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, st, ok := s.lookup(w, r)
		if !ok {
			return
		}
		qs := st.Result.Questions
		page := queryInt(r, "page", 1, 1, 1<<20)
		limit := queryInt(r, "limit", 20, 1, 100)
		from := (page - 1) * limit
		if from > len(qs) {
			from = len(qs)
		}
		to := from + limit
		if to > len(qs) {
			to = len(qs)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":          id,
			"fileName":    st.FileName,
			"status":      st.Result.Status,
			"parser":      st.Result.Strategy,
			"page":        page,
			"limit":       limit,
			"total":       len(qs),
			"questions":   qs[from:to],
			"statistics":  st.Result.Statistics,
			"association": st.Result.Association,
			"errors":      st.Result.Errors,
			"warnings":    st.Result.Warnings,
			"expiresAt":   st.Expires.Unix(),
		})
	}
}

// GET /imports/{id}/source returns the uploaded file.
func ImportSourceHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, st, ok := s.lookup(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(st.FileName)+`"`)
		http.ServeFile(w, r, st.SourcePath)
	}
}

// POST /imports/{id}/commit {"section_id": "...", "question_ids": [...]}
// An empty question_ids list commits everything.
func CommitImportHandler(s *Sessions, store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, st, ok := s.lookup(w, r)
		if !ok {
			return
		}
		var req struct {
			SectionID   string   `json:"section_id"`
			QuestionIDs []string `json:"question_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.SectionID == "" {
			http.Error(w, "section_id required", http.StatusBadRequest)
			return
		}
		selected, missing := pick(st.Result.Questions, req.QuestionIDs)
		if len(missing) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unknown question ids", "missing": missing})
			return
		}
		if !st.committing.TryLock() {
			http.Error(w, "commit already in progress", http.StatusConflict)
			return
		}
		defer st.committing.Unlock()
		if st.committed.Load() {
			http.Error(w, "import already committed", http.StatusConflict)
			return
		}

		// Flag first so a sweep during the save leaves the media alone.
		st.committed.Store(true)
		saved, err := store.SaveImport(r.Context(), req.SectionID, selected, st.Result.Assets)
		if err != nil {
			st.committed.Store(false)
			if _, gerr := s.Arena.Get(id); gerr != nil {
				// Evicted while saving; nothing else will release it now.
				s.release(id, st)
			}
			writeImportError(w, &importer.PersistenceError{Err: err})
			return
		}
		// Take skips eviction; an expired one still only drops the source copy.
		if _, err := s.Arena.Take(id); err == nil {
			_ = os.Remove(st.SourcePath)
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// DELETE /imports/{id}
func DiscardImportHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := s.lookup(w, r)
		if !ok {
			return
		}
		s.Arena.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// pick keeps top-level questions in document order, filtered by ids.
func pick(qs []*question.Question, ids []string) ([]*question.Question, []string) {
	if len(ids) == 0 {
		return qs, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*question.Question
	for _, q := range qs {
		if want[q.ID] {
			out = append(out, q)
			delete(want, q.ID)
		}
	}
	var missing []string
	for _, id := range ids {
		if want[id] {
			missing = append(missing, id)
			delete(want, id)
		}
	}
	return out, missing
}
