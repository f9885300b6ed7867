package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/importer"
	"github.com/mind-engage/mindengage-itembank/internal/media"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

// readUpload pulls the multipart "file" field into memory, refusing bodies
// larger than max.
func readUpload(w http.ResponseWriter, r *http.Request, max int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, max+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", nil, &importer.ValidationError{Reason: fmt.Sprintf("upload exceeds %d bytes", max)}
		}
		return "", nil, &importer.ValidationError{Reason: "multipart form with a file field required", Err: err}
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, &importer.ValidationError{Reason: "file required"}
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return "", nil, err
	}
	if int64(len(data)) > max {
		return "", nil, &importer.ValidationError{Reason: fmt.Sprintf("upload exceeds %d bytes", max)}
	}
	return hdr.Filename, data, nil
}

// writeImportError maps pipeline errors onto status codes.
func writeImportError(w http.ResponseWriter, err error) {
	var (
		ve *importer.ValidationError
		ie *importer.IntegrityError
		pe *importer.PersistenceError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ie):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bank.ErrNoSection):
		http.Error(w, "section_id required", http.StatusBadRequest)
	case errors.As(err, &pe):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, "import failed: "+err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

type unavailableBank struct{}

func (unavailableBank) SaveImport(context.Context, string, []*question.Question, []*media.Asset) (bank.SaveResult, error) {
	return bank.SaveResult{}, errors.New("question bank not configured")
}
