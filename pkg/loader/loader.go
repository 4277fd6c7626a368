package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

type LoaderConfig struct {
	Password string
	TempDir  string // empty means os.TempDir()
}

// PDFLoader stages uploaded bytes in a temporary file and extracts one text
// segment per page.
type PDFLoader struct {
	config LoaderConfig
}

func NewWithConfig(config LoaderConfig) *PDFLoader {
	return &PDFLoader{config: config}
}

func New() *PDFLoader {
	return NewWithConfig(LoaderConfig{})
}

// Load parses data as a PDF. Any failure, including a panic inside the PDF
// parser, is reported as types.ErrLoad. The staging file never outlives
// the call.
func (l *PDFLoader) Load(ctx context.Context, name string, data []byte) (pages []models.PageSegment, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrLoad, name)
	}

	path, err := l.stage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: staging %s: %v", types.ErrLoad, name, err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove staged document")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: parser panic: %v", types.ErrLoad, name, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrLoad, name, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrLoad, name, err)
	}

	var opts []documentloaders.PDFOptions
	if l.config.Password != "" {
		opts = append(opts, documentloaders.WithPassword(l.config.Password))
	}

	docs, err := documentloaders.NewPDF(f, stat.Size(), opts...).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrLoad, name, err)
	}

	pages = make([]models.PageSegment, 0, len(docs))
	for i, doc := range docs {
		number := i + 1
		if n, ok := doc.Metadata["page"].(int); ok {
			number = n
		}
		pages = append(pages, models.PageSegment{
			Number: number,
			Text:   doc.PageContent,
		})
	}

	log.Debug().Str("document", name).Int("pages", len(pages)).Msg("loaded document")
	return pages, nil
}

func (l *PDFLoader) stage(data []byte) (string, error) {
	f, err := os.CreateTemp(l.config.TempDir, "askdoc-*.pdf")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
