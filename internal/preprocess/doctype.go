package preprocess

// Document types with their own preprocessing presets
const (
	DocumentReceipt     = "receipt"
	DocumentInvoice     = "invoice"
	DocumentForm        = "form"
	DocumentHandwritten = "handwritten"
)

// PageTraits are the region findings document-type inference looks at
type PageTraits struct {
	HasHandwriting bool
	HasTable       bool
	HasStamps      bool
}

// InferDocumentType guesses the document type from the page shape and its
// special regions. Narrow tall pages lean towards receipts and wide ones
// towards invoices; handwriting, tables and stamps add to the types they
// are typical of. The highest score wins, earlier types on ties, and an
// empty string is returned when nothing scored.
func InferDocumentType(width, height int, traits PageTraits) string {
	order := []string{DocumentReceipt, DocumentInvoice, DocumentForm, DocumentHandwritten}
	scores := make(map[string]int, len(order))

	if height > 0 {
		aspect := float64(width) / float64(height)
		switch {
		case aspect <= 0.5:
			scores[DocumentReceipt] += 2
		case aspect > 0.5 && aspect <= 1.1:
			scores[DocumentForm]++
		case aspect > 1.1 && aspect <= 1.5:
			scores[DocumentInvoice]++
		case aspect > 1.5:
			scores[DocumentInvoice] += 2
		}
	}

	if traits.HasHandwriting {
		scores[DocumentHandwritten] += 3
		scores[DocumentForm]++
	}
	if traits.HasTable {
		scores[DocumentInvoice] += 2
		scores[DocumentForm]++
	}
	if traits.HasStamps {
		scores[DocumentInvoice]++
		scores[DocumentForm]++
	}

	best, bestScore := "", 0
	for _, t := range order {
		if scores[t] > bestScore {
			best, bestScore = t, scores[t]
		}
	}
	return best
}
