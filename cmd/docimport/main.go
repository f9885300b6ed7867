// Command docimport runs the exam import pipeline on a local file and
// prints the result as JSON.
//
//	docimport [-save -section ID] input.docx|input.zip [output.json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mind-engage/mindengage-itembank/internal/bank"
	"github.com/mind-engage/mindengage-itembank/internal/config"
	"github.com/mind-engage/mindengage-itembank/internal/db"
	"github.com/mind-engage/mindengage-itembank/internal/importer"
	"github.com/mind-engage/mindengage-itembank/internal/logger"
	"github.com/mind-engage/mindengage-itembank/internal/storage"
)

var errUsage = errors.New("usage: docimport [-save -section ID] input.docx|input.zip [output.json]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintln(os.Stderr, errUsage)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "docimport:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fl := flag.NewFlagSet("docimport", flag.ContinueOnError)
	fl.SetOutput(stderr)
	save := fl.Bool("save", false, "persist the questions into the configured database")
	section := fl.String("section", "", "section id to save into (required with -save)")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 1 || fl.NArg() > 2 || (*save && *section == "") {
		return errUsage
	}
	in := fl.Arg(0)

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	objects, err := storage.NewFSStore(cfg.BlobBasePath, cfg.BlobPublicURL)
	if err != nil {
		return err
	}
	deps := importer.Deps{Uploader: objects, Log: log}
	if *save {
		dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbh.Close()
		deps.Store = bank.NewSQLStore(dbh, cfg.DBDriver)
	}

	res, err := importer.NewService(cfg, deps).Import(ctx, importer.Upload{
		FileName:  filepath.Base(in),
		Data:      data,
		Save:      *save,
		SectionID: *section,
	})
	if err != nil {
		return err
	}

	out := stdout
	if fl.NArg() == 2 {
		f, err := os.Create(fl.Arg(1))
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	log.Info("import finished", "file", res.FileName, "status", string(res.Status),
		"questions", len(res.Questions), "errors", len(res.Errors), "warnings", len(res.Warnings))
	return nil
}
