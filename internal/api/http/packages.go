package http

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-itembank/internal/importer"
	"github.com/mind-engage/mindengage-itembank/internal/rbac"
)

// Importer is what the handlers need from the pipeline.
type Importer interface {
	Import(ctx context.Context, up importer.Upload) (*importer.Result, error)
	Validate(ctx context.Context, up importer.Upload) (*importer.Result, error)
}

// POST /packages/import?save=true&section_id=... (multipart: file=exam.zip|exam.docx)
func ImportPackageHandler(svc Importer, checker *rbac.Checker, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		save := queryBool(r, "save")
		section := r.URL.Query().Get("section_id")
		if save {
			if !checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermSave) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if section == "" {
				http.Error(w, "section_id required when save=true", http.StatusBadRequest)
				return
			}
		}
		name, data, err := readUpload(w, r, maxBytes)
		if err != nil {
			writeImportError(w, err)
			return
		}
		res, err := svc.Import(r.Context(), importer.Upload{FileName: name, Data: data, Save: save, SectionID: section})
		if err != nil {
			writeImportError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /packages/validate (multipart: file=...)
func ValidatePackageHandler(svc Importer, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := readUpload(w, r, maxBytes)
		if err != nil {
			writeImportError(w, err)
			return
		}
		res, err := svc.Validate(r.Context(), importer.Upload{FileName: name, Data: data})
		if err != nil {
			writeImportError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":      true,
			"status":     res.Status,
			"fileName":   res.FileName,
			"totalMedia": res.Statistics.TotalMedia,
			"warnings":   res.Warnings,
		})
	}
}
