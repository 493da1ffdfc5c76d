/**
 * Ensemble recognition
 *
 * Runs every configured engine on the same page concurrently and merges the
 * answers: the most trusted confident text wins, the language is voted, the
 * confidence is the weight-averaged engine confidence. Results are cached by
 * image content and language.
 */

package ensemble

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// Name is reported as the engine of a merged result that no single engine produced
const Name = "ensemble"

// Options tune the arbitration
type Options struct {
	Weights         map[string]float64
	Threshold       float64
	DefaultLanguage string
	EngineTimeout   time.Duration
	CacheTTL        time.Duration
}

// OptionsFromConfig copies the ensemble settings out of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Weights:         cfg.EngineWeights,
		Threshold:       cfg.ConfidenceThreshold,
		DefaultLanguage: cfg.DefaultLanguage,
		EngineTimeout:   cfg.EngineTimeout,
		CacheTTL:        cfg.CacheTTL,
	}
}

// Outcome is what one engine returned for a page
type Outcome struct {
	Engine   string
	Result   *engine.Result
	Err      error
	Duration time.Duration
}

// usable reports whether the outcome can take part in arbitration
func (o Outcome) usable() bool {
	return o.Err == nil && !o.Result.Empty()
}

// Recognition is the merged answer for a page
type Recognition struct {
	Result   *engine.Result
	Cached   bool
	Outcomes []Outcome
}

// Engines lists the engines that produced text, in configuration order
func (r *Recognition) Engines() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.usable() {
			names = append(names, o.Engine)
		}
	}
	return names
}

// Coordinator fans a page out to engines and arbitrates their results
type Coordinator struct {
	engines []engine.Engine
	cache   Cache
	opts    Options
	logger  *logging.Logger
}

// NewCoordinator creates a coordinator. cache may be nil.
func NewCoordinator(engines []engine.Engine, cache Cache, opts Options, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewLogger("Ensemble")
	}
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 30 * time.Second
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = engine.LangJapanese
	}
	return &Coordinator{engines: engines, cache: cache, opts: opts, logger: logger}
}

// Recognize returns the ensemble result for one encoded page image. When
// every engine fails the error is an ALL_ENGINES_FAILED ProcessingError and
// the recognition still carries an empty zero-confidence result.
func (c *Coordinator) Recognize(ctx context.Context, image []byte, languageHint string) (*Recognition, error) {
	hint := engine.NormalizeLanguage(languageHint)
	key := CacheKey(image, hint)

	if cached := c.cached(ctx, key); cached != nil {
		return &Recognition{Result: cached, Cached: true}, nil
	}

	outcomes := make([]Outcome, len(c.engines))
	var g errgroup.Group
	for i, e := range c.engines {
		g.Go(func() error {
			outcomes[i] = c.call(ctx, e, image, hint)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failures := make(map[string]string)
	succeeded := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures[o.Engine] = o.Err.Error()
			c.logger.Warn("Engine excluded from ensemble", "engine", o.Engine, "error", o.Err, "duration", o.Duration)
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		rec := &Recognition{
			Result: &engine.Result{
				Language: c.fallbackLanguage(hint),
				Engine:   Name,
			},
			Outcomes: outcomes,
		}
		return rec, errors.NewAllEnginesFailedError(failures)
	}

	result := c.arbitrate(outcomes, hint)
	rec := &Recognition{Result: result, Outcomes: outcomes}
	c.logger.Debug("Ensemble result",
		"engine", result.Engine,
		"language", result.Language,
		"confidence", result.Confidence,
		"engines", len(c.engines),
		"failed", len(failures))

	if !result.Empty() {
		c.store(ctx, key, result)
	}
	return rec, nil
}

// call runs one engine under its own timeout. A panic or a missing result
// counts as a failure; an engine ignoring its context is abandoned at the
// deadline.
func (c *Coordinator) call(ctx context.Context, e engine.Engine, image []byte, hint string) Outcome {
	start := time.Now()
	ectx, cancel := context.WithTimeout(ctx, c.opts.EngineTimeout)
	defer cancel()

	type reply struct {
		result *engine.Result
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		res, err := e.Recognize(ectx, image, hint)
		done <- reply{result: res, err: err}
	}()

	out := Outcome{Engine: e.Name()}
	select {
	case r := <-done:
		out.Result, out.Err = r.result, r.err
		if out.Err == nil && out.Result == nil {
			out.Err = fmt.Errorf("engine returned no result")
		}
	case <-ectx.Done():
		out.Err = ectx.Err()
	}
	if out.Err != nil {
		out.Err = errors.NewEngineFailedError(out.Engine, out.Err)
		out.Result = nil
	}
	out.Duration = time.Since(start)
	return out
}

// arbitrate merges successful outcomes. At least one outcome succeeded.
func (c *Coordinator) arbitrate(outcomes []Outcome, hint string) *engine.Result {
	var (
		best      = -1
		bestScore float64
		wSum      float64
		cwSum     float64
		cSum      float64
		n         int
	)
	for i, o := range outcomes {
		if !o.usable() {
			continue
		}
		w := c.opts.Weights[o.Engine]
		conf := o.Result.Confidence
		wSum += w
		cwSum += conf * w
		cSum += conf
		n++
		if conf >= c.opts.Threshold {
			if score := conf * w; best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
	}

	language := c.voteLanguage(outcomes, hint)
	if n == 0 {
		return &engine.Result{Language: language, Engine: Name}
	}

	mean := cSum / float64(n)
	if best < 0 {
		longest := -1
		longestLen := 0
		for i, o := range outcomes {
			if !o.usable() {
				continue
			}
			if l := utf8.RuneCountInString(o.Result.Text); longest < 0 || l > longestLen {
				longest, longestLen = i, l
			}
		}
		chosen := outcomes[longest].Result
		return &engine.Result{
			Text:       chosen.Text,
			Language:   language,
			Confidence: engine.ClampConfidence(mean),
			Engine:     chosen.Engine,
			Regions:    chosen.Regions,
		}
	}

	confidence := mean
	if wSum > 0 {
		confidence = cwSum / wSum
	}
	chosen := outcomes[best].Result
	return &engine.Result{
		Text:       chosen.Text,
		Language:   language,
		Confidence: engine.ClampConfidence(confidence),
		Engine:     chosen.Engine,
		Regions:    chosen.Regions,
	}
}

// voteLanguage takes the most reported language; ties go to the language
// reported first in engine order
func (c *Coordinator) voteLanguage(outcomes []Outcome, hint string) string {
	counts := make(map[string]int)
	var order []string
	for _, o := range outcomes {
		if !o.usable() || o.Result.Language == "" {
			continue
		}
		if counts[o.Result.Language] == 0 {
			order = append(order, o.Result.Language)
		}
		counts[o.Result.Language]++
	}
	winner := ""
	for _, lang := range order {
		if winner == "" || counts[lang] > counts[winner] {
			winner = lang
		}
	}
	if winner == "" {
		return c.fallbackLanguage(hint)
	}
	return winner
}

func (c *Coordinator) fallbackLanguage(hint string) string {
	if hint != "" {
		return hint
	}
	return c.opts.DefaultLanguage
}

func (c *Coordinator) cached(ctx context.Context, key string) *engine.Result {
	if c.cache == nil {
		return nil
	}
	result, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed", "key", key, "error", errors.NewCacheFailedError("get", err))
		return nil
	}
	if !ok {
		return nil
	}
	c.logger.Debug("Cache hit", "key", key)
	return result
}

func (c *Coordinator) store(ctx context.Context, key string, result *engine.Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, result.WithoutRegions(), c.opts.CacheTTL); err != nil {
		c.logger.Warn("Cache write failed", "key", key, "error", errors.NewCacheFailedError("set", err))
	}
}
