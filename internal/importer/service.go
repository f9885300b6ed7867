// Package importer turns an uploaded Word document or exam package into
// structured questions with uploaded media.
package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/config"
	"github.com/mind-engage/mindengage-itembank/internal/content"
	"github.com/mind-engage/mindengage-itembank/internal/docx"
	"github.com/mind-engage/mindengage-itembank/internal/logger"
	"github.com/mind-engage/mindengage-itembank/internal/media"
	"github.com/mind-engage/mindengage-itembank/internal/parser"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

type State string

const (
	StateExtracting       State = "extracting"
	StateParsing          State = "parsing"
	StateMediaProcessing  State = "media_processing"
	StateContentReplacing State = "content_replacing"
	StatePersisting       State = "persisting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// DeriveStatus: warnings make a run partial whatever the errors; errors
// alone make it failed.
func DeriveStatus(errs, warnings []string) Status {
	switch {
	case len(warnings) > 0:
		return StatusPartial
	case len(errs) > 0:
		return StatusFailed
	default:
		return StatusSuccess
	}
}

// Upload is one file handed to the importer.
type Upload struct {
	FileName  string
	Data      []byte
	Save      bool
	SectionID string
}

type Result struct {
	Status      Status               `json:"status"`
	FileName    string               `json:"fileName"`
	Strategy    string               `json:"parser"`
	Questions   []*question.Question `json:"questions"`
	Assets      []*media.Asset       `json:"-"`
	Statistics  Statistics           `json:"statistics"`
	Association media.Trace          `json:"association"`
	Errors      []string             `json:"errors"`
	Warnings    []string             `json:"warnings"`
	Saved       *bank.SaveResult     `json:"saved,omitempty"`
}

type Service struct {
	cfg    config.Config
	chain  *parser.Chain
	assoc  media.Associator
	proc   *media.Processor
	engine *content.Engine
	store  bank.Store // nil disables saving
	log    *logger.Logger

	// observe, when set, sees every state transition.
	observe func(State)
}

type Deps struct {
	Chain      *parser.Chain
	Associator media.Associator
	Uploader   media.Uploader
	Store      bank.Store
	Log        *logger.Logger
}

func NewService(cfg config.Config, d Deps) *Service {
	log := logger.OrNop(d.Log).With("component", "importer")
	if d.Chain == nil {
		d.Chain = parser.Default(log, parser.NewProcessStrategy(cfg.ParserCommand, cfg.ParserTimeout))
	}
	if d.Associator == nil {
		d.Associator = media.KeywordAssociator{}
	}
	proc := media.NewProcessor(d.Uploader, media.ProcessOptions{
		MaxBytes:        cfg.Limits.MaxMediaBytes,
		TranscodeImages: cfg.Transcode.Images,
		Transcode: media.TranscodeOptions{
			MaxWidth:  cfg.Transcode.MaxWidth,
			MaxHeight: cfg.Transcode.MaxHeight,
			Quality:   cfg.Transcode.Quality,
		},
	}, log)
	return &Service{
		cfg:    cfg,
		chain:  d.Chain,
		assoc:  d.Associator,
		proc:   proc,
		engine: content.NewEngine(log),
		store:  d.Store,
		log:    log,
	}
}

func (s *Service) enter(st State, file string) {
	s.log.Debug("import state", "state", string(st), "file", file)
	if s.observe != nil {
		s.observe(st)
	}
}

// Validate runs the structure checks only.
func (s *Service) Validate(_ context.Context, up Upload) (*Result, error) {
	b, err := openUpload(up.FileName, up.Data, s.cfg.Limits)
	if err != nil {
		return nil, err
	}
	res := &Result{FileName: b.docName}
	if _, err := zip.NewReader(bytes.NewReader(b.docData), int64(len(b.docData))); err != nil {
		return nil, &ValidationError{Reason: "document is not a readable .docx", Err: err}
	}
	for _, f := range b.media {
		if int64(len(f.Data)) > s.cfg.Limits.MaxMediaBytes {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s exceeds %d bytes and will not be uploaded", f.Name, s.cfg.Limits.MaxMediaBytes))
		}
	}
	_, warnings := media.FromPackage(b.media, media.NewNamer())
	res.Warnings = append(res.Warnings, warnings...)
	res.Statistics.TotalMedia = len(b.media)
	res.Status = DeriveStatus(res.Errors, res.Warnings)
	return res, nil
}

// Import runs the whole pipeline. Fatal problems come back as an error
// and no result; everything else ends up in Result.Errors or Warnings.
func (s *Service) Import(ctx context.Context, up Upload) (res *Result, err error) {
	log := s.log.With("file", up.FileName)
	defer func() {
		if err != nil {
			s.enter(StateFailed, up.FileName)
			log.Warn("import failed", "error", err)
		}
	}()
	if up.Save && s.store == nil {
		return nil, &PersistenceError{Err: errors.New("no question bank is configured")}
	}

	s.enter(StateExtracting, up.FileName)
	b, err := openUpload(up.FileName, up.Data, s.cfg.Limits)
	if err != nil {
		return nil, err
	}
	scratch, err := os.MkdirTemp(s.cfg.ScratchDir, "import-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	docPath := filepath.Join(scratch, filepath.Base(b.docName))
	if err := os.WriteFile(docPath, b.docData, 0o600); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b.docData), int64(len(b.docData)))
	if err != nil {
		return nil, &ValidationError{Reason: "document is not a readable .docx", Err: err}
	}

	namer := media.NewNamer()
	var (
		doc       *docx.Document
		docAssets []*media.Asset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := docx.ExtractZip(zr)
		if err != nil {
			return &ValidationError{Reason: "document markup", Err: err}
		}
		doc = d
		return gctx.Err()
	})
	g.Go(func() error {
		a, err := media.FromDocx(zr, namer, s.cfg.Limits.MaxDocumentBytes)
		if err != nil {
			return &ValidationError{Reason: "embedded media", Err: err}
		}
		docAssets = a
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res = &Result{FileName: b.docName}
	pkgAssets, warnings := media.FromPackage(b.media, namer)
	res.Warnings = append(res.Warnings, warnings...)
	assets := append(docAssets, pkgAssets...)
	res.Assets = assets

	s.enter(StateParsing, up.FileName)
	parsed, err := s.chain.Parse(ctx, parser.Input{Lines: doc.Lines, DocPath: docPath})
	if err != nil {
		return nil, err
	}
	res.Strategy = parsed.Strategy
	res.Questions = parsed.Questions
	res.Errors = append(res.Errors, parsed.Errors...)
	res.Warnings = append(res.Warnings, parsed.Warnings...)
	if len(res.Questions) == 0 {
		res.Errors = append(res.Errors, "no questions found in document")
	}

	s.enter(StateMediaProcessing, up.FileName)
	res.Association = s.assoc.Associate(res.Questions, assets)
	rep := s.proc.Process(ctx, assets)
	res.Errors = append(res.Errors, rep.Errors...)
	res.Warnings = append(res.Warnings, rep.Warnings...)

	s.enter(StateContentReplacing, up.FileName)
	refs, unresolved := s.engine.ApplyAll(res.Questions, assets)
	res.Warnings = append(res.Warnings, unresolved...)
	res.Statistics = collect(res.Questions, assets, rep, refs)

	if up.Save {
		s.enter(StatePersisting, up.FileName)
		saved, err := s.store.SaveImport(ctx, up.SectionID, res.Questions, assets)
		if err != nil {
			return nil, &PersistenceError{Err: err}
		}
		res.Saved = &saved
	}

	res.Status = DeriveStatus(res.Errors, res.Warnings)
	s.enter(StateDone, up.FileName)
	log.Info("import finished", "status", string(res.Status), "parser", res.Strategy,
		"questions", res.Statistics.TotalQuestions, "media", len(assets),
		"errors", len(res.Errors), "warnings", len(res.Warnings))
	return res, nil
}
