// Package bank persists imported questions, answers and media links.
package bank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-itembank/internal/media"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

var ErrNoSection = errors.New("section id is required")

type SaveResult struct {
	SectionID   string   `json:"sectionId"`
	QuestionIDs []string `json:"questionIds"` // top-level only
	Questions   int      `json:"questions"`   // including children
	Answers     int      `json:"answers"`
	Files       int      `json:"files"`
}

type Store interface {
	SaveImport(ctx context.Context, sectionID string, qs []*question.Question, assets []*media.Asset) (SaveResult, error)
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// SaveImport writes everything in one transaction. Any failure rolls the
// whole import back.
func (s *SQLStore) SaveImport(ctx context.Context, sectionID string, qs []*question.Question, assets []*media.Asset) (res SaveResult, err error) {
	if sectionID == "" {
		return SaveResult{}, ErrNoSection
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().Unix()
	res.SectionID = sectionID

	stored := map[string]bool{}
	for _, a := range assets {
		if a.UploadedURL == "" {
			continue
		}
		data, _ := a.Payload()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO files (id,name,original_name,mime_type,file_type,storage_key,url,size,created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ID, a.UploadName(), a.OriginalName, payloadMime(a), int(a.FileType), a.StorageKey, a.UploadedURL, len(data), now); err != nil {
			return SaveResult{}, fmt.Errorf("insert file %s: %w", a.OriginalName, err)
		}
		stored[a.ID] = true
		res.Files++
	}

	var insert func(q *question.Question, parentID *string) error
	insert = func(q *question.Question, parentID *string) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id,parent_id,section_id,number,type,content,original_content,group_content,clo,has_latex,shuffle,created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			q.ID, parentID, sectionID, q.Number, string(q.Type), q.Content, q.OriginalContent, q.GroupContent, q.CLO,
			boolInt(q.HasLatex), boolInt(q.ShuffleEligible), now); err != nil {
			return fmt.Errorf("insert question %d: %w", q.Number, err)
		}
		res.Questions++
		for _, a := range q.Answers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO answers (id,question_id,content,is_correct,ord,has_underline) VALUES ($1,$2,$3,$4,$5,$6)`,
				a.ID, q.ID, a.Content, boolInt(a.IsCorrect), a.Order, boolInt(a.HasUnderline)); err != nil {
				return fmt.Errorf("insert answer for question %d: %w", q.Number, err)
			}
			res.Answers++
		}
		for _, fid := range q.AttachedMedia {
			if !stored[fid] {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO question_files (question_id,file_id) VALUES ($1,$2)`, q.ID, fid); err != nil {
				return fmt.Errorf("link file to question %d: %w", q.Number, err)
			}
		}
		for _, c := range q.Children {
			if err := insert(c, &q.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, q := range qs {
		if err = insert(q, nil); err != nil {
			return SaveResult{}, err
		}
		res.QuestionIDs = append(res.QuestionIDs, q.ID)
	}

	payload, _ := json.Marshal(res)
	if err = NewEventRepo(tx).Append(ctx, Event{Type: "import.completed", Key: sectionID, DataJSON: string(payload)}); err != nil {
		return SaveResult{}, fmt.Errorf("append event: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

// CountQuestions returns how many rows (children included) a section holds.
func (s *SQLStore) CountQuestions(ctx context.Context, sectionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE section_id=$1`, sectionID).Scan(&n)
	return n, err
}

func payloadMime(a *media.Asset) string {
	_, m := a.Payload()
	return m
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
