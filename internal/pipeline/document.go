package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/raspverry/ai-ocr/internal/errors"
)

// DocumentResult holds the page results of a document in page order
type DocumentResult struct {
	Pages []*PageResult `json:"pages"`
	// Failed lists the page numbers no engine could recognize
	Failed []int `json:"failed,omitempty"`
}

// Text joins the page texts with blank lines
func (d *DocumentResult) Text() string {
	var parts []string
	for _, p := range d.Pages {
		if p != nil && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Confidence is the mean page confidence over recognized pages
func (d *DocumentResult) Confidence() float64 {
	var sum float64
	n := 0
	for _, p := range d.Pages {
		if p == nil || p.Text == "" {
			continue
		}
		sum += p.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ProcessDocument processes pages on a worker pool and returns the results
// in input order. Pages every engine failed on keep their empty result and
// are listed in Failed; the document fails only when all pages did. A
// cancelled context discards everything.
func (p *Processor) ProcessDocument(ctx context.Context, pages []PageInput, opts Options) (*DocumentResult, error) {
	if len(pages) == 0 {
		return &DocumentResult{Pages: []*PageResult{}}, nil
	}

	pool, err := ants.NewPool(min(p.pageWorkers, len(pages)))
	if err != nil {
		return nil, fmt.Errorf("failed to create page worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]*PageResult, len(pages))
	errs := make([]error, len(pages))
	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("page %d panicked: %v", page.PageNum, r)
				}
			}()
			results[i], errs[i] = p.ProcessPage(ctx, page, opts)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("failed to submit page %d: %w", page.PageNum, err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &DocumentResult{Pages: results}
	engineFailures := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.IsCode(err, errors.ErrorAllEnginesFailed) && results[i] != nil {
			doc.Failed = append(doc.Failed, pages[i].PageNum)
			engineFailures++
			continue
		}
		return nil, err
	}
	if engineFailures == len(pages) {
		return doc, errs[0]
	}
	p.logger.Info("Document processed",
		"pages", len(pages),
		"failedPages", len(doc.Failed),
		"confidence", doc.Confidence())
	return doc, nil
}
