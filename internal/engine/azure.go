package engine

import (
	"context"
	"math"
	"strings"

	"github.com/raspverry/ai-ocr/internal/clients"
	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// AzureRead recognizes text with the Azure Read API
type AzureRead struct {
	client *clients.AzureReadClient
	logger *logging.Logger
}

// NewAzureRead wraps a Read client
func NewAzureRead(client *clients.AzureReadClient) *AzureRead {
	return &AzureRead{client: client, logger: logging.NewLogger("AzureRead")}
}

// NewAzureReadFromConfig builds the engine from AZURE_ENDPOINT and AZURE_API_KEY
func NewAzureReadFromConfig(cfg *config.Config) (Engine, error) {
	if cfg.AzureEndpoint == "" || cfg.AzureAPIKey == "" {
		return nil, errors.NewInvalidConfigError("AZURE_ENDPOINT", "azure_read needs AZURE_ENDPOINT and AZURE_API_KEY")
	}
	return NewAzureRead(clients.NewAzureReadClient(cfg.AzureEndpoint, cfg.AzureAPIKey)), nil
}

// Name implements Engine
func (a *AzureRead) Name() string { return NameAzureRead }

// Recognize implements Engine
func (a *AzureRead) Recognize(ctx context.Context, image []byte, languageHint string) (*Result, error) {
	analysis, err := a.client.Analyze(ctx, image, bcp47(languageHint))
	if err != nil {
		return nil, err
	}
	result := resultFromRead(analysis, languageHint)
	a.logger.Debug("Azure Read recognition complete",
		"language", result.Language,
		"confidence", result.Confidence,
		"lines", len(result.Regions))
	return result, nil
}

// resultFromRead joins lines with newlines; confidence is the mean word
// confidence and each line becomes a region scored by its words
func resultFromRead(analysis *clients.AnalyzeResult, languageHint string) *Result {
	var (
		lines   []string
		regions []Region
		sum     float64
		n       int
		lang    string
	)
	for _, page := range analysis.ReadResults {
		if lang == "" {
			lang = page.Language
		}
		for _, line := range page.Lines {
			lines = append(lines, line.Text)
			var lineSum float64
			for _, w := range line.Words {
				lineSum += w.Confidence
			}
			sum += lineSum
			n += len(line.Words)
			conf := 0.0
			if len(line.Words) > 0 {
				conf = lineSum / float64(len(line.Words))
			}
			regions = append(regions, Region{Text: line.Text, BBox: quadBox(line.BoundingBox), Confidence: conf})
		}
	}
	confidence := 0.0
	if n > 0 {
		confidence = sum / float64(n)
	}
	if lang == "" {
		lang = languageHint
	}
	return newResult(NameAzureRead, strings.Join(lines, "\n"), lang, confidence, regions)
}

// quadBox bounds an x1,y1,...,x4,y4 polygon
func quadBox(coords []float64) [4]int {
	if len(coords) < 2 {
		return [4]int{}
	}
	x1, y1, x2, y2 := coords[0], coords[1], coords[0], coords[1]
	for i := 0; i+1 < len(coords); i += 2 {
		x1, x2 = math.Min(x1, coords[i]), math.Max(x2, coords[i])
		y1, y2 = math.Min(y1, coords[i+1]), math.Max(y2, coords[i+1])
	}
	return [4]int{int(math.Floor(x1)), int(math.Floor(y1)), int(math.Ceil(x2)), int(math.Ceil(y2))}
}
