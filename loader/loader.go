package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/sitesage/core"
)

// DefaultMinWords is the smallest page, in words, worth indexing.
const DefaultMinWords = 40

// Loader reads documents from files and directories.
// A Loader is safe for concurrent use.
type Loader struct {
	minWords int
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// WithMinWords sets the minimum word count of a scraped page.
// Zero keeps every page that has any text.
func WithMinWords(n int) Option {
	return func(l *Loader) error {
		if n < 0 {
			return ErrInvalidMinWords
		}
		l.minWords = n
		return nil
	}
}

// New creates a Loader.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{
		minWords: DefaultMinWords,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "loader")
	return l, nil
}

// Supported reports whether path has an extension the loader reads.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".txt", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

// Load reads documents from a file or, recursively, a directory.
// Directory entries are visited in lexical order and files with
// unsupported extensions are skipped.
func (l *Loader) Load(ctx context.Context, path string) ([]*core.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return l.LoadFile(ctx, path)
	}

	var docs []*core.Document
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(p) {
			l.logger.Debug("skipping unsupported file", "path", p)
			return nil
		}
		loaded, err := l.LoadFile(ctx, p)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadFile reads documents from a single file, choosing the format by
// extension.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		docs, err := l.ParseSite(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return docs, nil
	case ".txt", ".md", ".markdown":
		return l.loadText(path)
	case ".pdf":
		return l.loadPDF(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// siteScrape mirrors the crawler's output file.
type siteScrape struct {
	SourceURL string `json:"source_url"`
	ScrapedAt string `json:"scraped_at"`
	SitePages struct {
		Pages []scrapedPage `json:"pages"`
	} `json:"site_pages"`
}

type scrapedPage struct {
	PageURL  string `json:"page_url"`
	Title    string `json:"title"`
	Headings []struct {
		Tag  string `json:"tag"`
		Text string `json:"text"`
	} `json:"headings"`
	FullText string `json:"full_text"`
}

// ParseSite decodes scraped-site JSON into one document per useful page.
func (l *Loader) ParseSite(r io.Reader) ([]*core.Document, error) {
	var scrape siteScrape
	if err := json.NewDecoder(r).Decode(&scrape); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScrape, err)
	}

	crawledAt := time.Now().UTC()
	if scrape.ScrapedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, scrape.ScrapedAt); err == nil {
			crawledAt = ts
		} else if ts, err := time.Parse("2006-01-02T15:04:05.999999", strings.TrimSuffix(scrape.ScrapedAt, "Z")); err == nil {
			crawledAt = ts.UTC()
		} else {
			l.logger.Warn("unparseable scrape timestamp", "scraped_at", scrape.ScrapedAt)
		}
	}

	docs := make([]*core.Document, 0, len(scrape.SitePages.Pages))
	skipped := 0
	for _, page := range scrape.SitePages.Pages {
		if page.PageURL == "" {
			skipped++
			l.logger.Warn("skipping page without url", "title", page.Title)
			continue
		}

		headings := make([]string, 0, len(page.Headings))
		for _, h := range page.Headings {
			headings = append(headings, h.Text)
		}
		text := strings.Join([]string{page.Title, strings.Join(headings, " "), page.FullText}, " ")

		words := len(strings.Fields(text))
		if words == 0 || words < l.minWords {
			skipped++
			l.logger.Info("skipping short page", "url", page.PageURL, "words", words, "min_words", l.minWords)
			continue
		}

		metadata := map[string]string{}
		if scrape.SourceURL != "" {
			metadata["site"] = scrape.SourceURL
		}
		if len(headings) > 0 {
			metadata["headings"] = strings.Join(headings, " | ")
		}

		docs = append(docs, &core.Document{
			Source:    page.PageURL,
			Title:     page.Title,
			Text:      text,
			Metadata:  metadata,
			CrawledAt: crawledAt,
		})
	}

	l.logger.Info("parsed site scrape", "site", scrape.SourceURL, "pages", len(docs), "skipped", skipped)
	return docs, nil
}

func (l *Loader) loadText(path string) ([]*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		l.logger.Info("skipping empty file", "path", path)
		return nil, nil
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".md" || ext == ".markdown" {
		if heading := markdownTitle(text); heading != "" {
			title = heading
		}
	}
	return []*core.Document{l.fileDocument(path, title, text)}, nil
}

func (l *Loader) loadPDF(path string) ([]*core.Document, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := rdr.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("reading pdf text %s: %w", path, err)
	}
	if _, err := io.Copy(&buf, b); err != nil {
		return nil, fmt.Errorf("reading pdf buffer %s: %w", path, err)
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		l.logger.Warn("no text extracted from pdf", "path", path)
		return nil, nil
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return []*core.Document{l.fileDocument(path, title, text)}, nil
}

func (l *Loader) fileDocument(path, title, text string) *core.Document {
	crawledAt := time.Now().UTC()
	if info, err := os.Stat(path); err == nil {
		crawledAt = info.ModTime().UTC()
	}
	source := path
	if abs, err := filepath.Abs(path); err == nil {
		source = abs
	}
	return &core.Document{
		Source:    source,
		Title:     title,
		Text:      text,
		Metadata:  map[string]string{"format": strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")},
		CrawledAt: crawledAt,
	}
}

// markdownTitle returns the text of the first level-one heading.
func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
