// Package extract turns fetched posting pages into model.Posting values.
//
// Extraction tries, in order: embedded JSON-LD JobPosting data, the adapter
// registered for the page's source, and finally generic page metadata.
// Only the JSON-LD path is stable across site redesigns; the per-source
// adapters target each platform's current markup and break when it changes.
package extract

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	ingesterrors "jobmate/job-ingest/internal/errors"
	"jobmate/job-ingest/internal/model"
)

// Page is a parsed document handed to extractors.
type Page struct {
	Doc *goquery.Document
	Raw string
	URL string
}

// Extractor pulls posting fields out of a page. Fields it cannot find are
// left empty.
type Extractor interface {
	Extract(page *Page) model.Posting
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(page *Page) model.Posting

func (f ExtractorFunc) Extract(page *Page) model.Posting { return f(page) }

// Registry dispatches pages to the extractor registered for their source.
type Registry struct {
	mu       sync.RWMutex
	bySource map[model.Source]Extractor
	fallback Extractor
}

// NewRegistry returns a registry with the built-in platform adapters and the
// generic fallback.
func NewRegistry() *Registry {
	r := &Registry{
		bySource: make(map[model.Source]Extractor),
		fallback: ExtractorFunc(extractGeneric),
	}
	r.Register(model.SourceGreenhouse, ExtractorFunc(extractGreenhouse))
	r.Register(model.SourceLever, ExtractorFunc(extractLever))
	r.Register(model.SourceWorkday, ExtractorFunc(extractWorkday))
	r.Register(model.SourceLinkedIn, ExtractorFunc(extractLinkedIn))
	r.Register(model.SourceIndeed, ExtractorFunc(extractIndeed))
	r.Register(model.SourceAshby, ExtractorFunc(extractAshby))
	return r
}

// Register sets the extractor used for src, replacing any previous one.
func (r *Registry) Register(src model.Source, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySource[src] = e
}

// Extract parses content fetched from pageURL. It fails only when the
// content cannot be parsed as HTML at all; a missing title is left for the
// caller to judge.
func (r *Registry) Extract(content string, src model.Source, pageURL string) (*model.Posting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, ingesterrors.Parse("parse html", err)
	}
	page := &Page{Doc: doc, Raw: content, URL: pageURL}

	posting, ok := extractJSONLD(page)
	if !ok {
		posting = r.heuristic(page, src)
	}

	posting.Source = src
	posting.PostingURL = pageURL
	if posting.ApplicationURL == "" {
		posting.ApplicationURL = pageURL
	}
	if posting.JobType == "" {
		posting.JobType = model.JobTypeUnknown
	}
	return &posting, nil
}

func (r *Registry) heuristic(page *Page, src model.Source) model.Posting {
	r.mu.RLock()
	e, ok := r.bySource[src]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		p := e.Extract(page)
		if p.Title != "" || p.Company != "" || p.Description != "" {
			return p
		}
	}
	return fallback.Extract(page)
}
