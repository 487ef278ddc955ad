package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/candidates"
	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/llmutil"
	"github.com/xkilldash9x/locsmith/internal/observability"
)

// AnalysisRun records one identification attempt on the default platform.
type AnalysisRun struct {
	ID         string                   `json:"id"`
	Index      int                      `json:"index"`
	Outcome    string                   `json:"outcome"`
	Elements   []schemas.Element        `json:"elements"`
	Dedupe     candidates.DedupeReport  `json:"dedupe"`
	Validation schemas.ValidationResult `json:"validation"`
	Score      int                      `json:"score"`
}

// PlatformStatus is the result of extending elements to a secondary platform.
type PlatformStatus string

const (
	PlatformMapped  PlatformStatus = "mapped"
	PlatformSkipped PlatformStatus = "skipped"
)

// PlatformReport describes one secondary platform.
type PlatformReport struct {
	Platform   string                    `json:"platform"`
	Status     PlatformStatus            `json:"status"`
	Mapped     int                       `json:"mapped"`
	Validation *schemas.ValidationResult `json:"validation,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// AnalysisResult is the full output of an identification pass.
type AnalysisResult struct {
	Elements        []schemas.Element `json:"elements"`
	DefaultPlatform string            `json:"defaultPlatform"`
	BestRun         int               `json:"bestRun"`
	Runs            []AnalysisRun     `json:"runs"`
	Platforms       []PlatformReport  `json:"platforms"`
}

// VisualAnalysisOrchestrator identifies named elements on a page.
type VisualAnalysisOrchestrator struct {
	client schemas.GenerativeClient
	sink   schemas.DiagnosticSink
	cfg    config.PipelineConfig
	logger *zap.Logger
}

// NewVisualAnalysisOrchestrator wires the orchestrator. A nil sink discards
// diagnostics.
func NewVisualAnalysisOrchestrator(
	client schemas.GenerativeClient,
	sink schemas.DiagnosticSink,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) (*VisualAnalysisOrchestrator, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize visual analysis orchestrator with nil dependencies")
	}
	return &VisualAnalysisOrchestrator{
		client: client,
		sink:   observability.SinkOrNop(sink),
		cfg:    cfg,
		logger: logger.Named("visual_orchestrator"),
	}, nil
}

// IdentifyElements returns the winning element list extended to every target
// platform.
func (o *VisualAnalysisOrchestrator) IdentifyElements(ctx context.Context, page schemas.Page, targetPlatforms []string, nRuns int) ([]schemas.Element, error) {
	res, err := o.Analyze(ctx, page, targetPlatforms, nRuns)
	if err != nil {
		return nil, err
	}
	return res.Elements, nil
}

// Analyze runs nRuns attempts on the default platform, keeps the best scoring
// one and maps its elements onto the remaining target platforms. A
// non-positive nRuns uses the configured run count.
func (o *VisualAnalysisOrchestrator) Analyze(ctx context.Context, page schemas.Page, targetPlatforms []string, nRuns int) (*AnalysisResult, error) {
	if len(page.States) == 0 {
		return nil, ErrNoStates
	}
	if nRuns <= 0 {
		nRuns = o.cfg.AnalysisRuns
	}
	defaultPlatform := schemas.NormalizePlatform(o.cfg.DefaultPlatform)

	runs := make([]AnalysisRun, 0, nRuns)
	scores := make([]int, 0, nRuns)
	for i := 0; i < nRuns; i++ {
		run, err := o.identifyRun(ctx, page, defaultPlatform, i)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
		scores = append(scores, run.Score)
	}

	best := candidates.Best(scores)
	result := &AnalysisResult{
		Elements:        runs[best].Elements,
		DefaultPlatform: defaultPlatform,
		BestRun:         best,
		Runs:            runs,
	}
	o.logger.Info("Selected best identification run",
		zap.String("page_id", page.ID),
		zap.Int("run", best),
		zap.Int("score", runs[best].Score),
		zap.Ints("scores", scores),
		zap.Int("elements", len(result.Elements)),
	)

	var secondary []string
	for _, p := range normalizePlatforms(targetPlatforms) {
		if p != defaultPlatform {
			secondary = append(secondary, p)
		}
	}
	if len(secondary) == 0 {
		return result, nil
	}

	elements, reports, err := o.extendToPlatforms(ctx, page, result.Elements, secondary)
	if err != nil {
		return nil, err
	}
	result.Elements = elements
	result.Platforms = reports
	return result, nil
}

// identifyRun performs one generation attempt. Malformed output yields an
// empty run rather than an error.
func (o *VisualAnalysisOrchestrator) identifyRun(ctx context.Context, page schemas.Page, platform string, index int) (AnalysisRun, error) {
	gc := schemas.GenerationContext{
		PageID:   page.ID,
		PageName: page.Name,
		Platform: platform,
		Attempt:  index,
		States:   stateInputs(page, platform),
	}

	out, err := generateWithRetry(ctx, o.client, o.cfg.Retry.Policy(), schemas.TaskIdentifyElements, gc, o.logger)
	if err != nil {
		return AnalysisRun{}, fmt.Errorf("identification run %d for platform %s: %w", index, platform, err)
	}

	parsed := llmutil.ParseList[schemas.Element](out)
	run := AnalysisRun{ID: uuid.NewString(), Index: index, Outcome: parsed.Kind.String()}
	if parsed.Kind == llmutil.Malformed {
		o.logger.Warn("Identification run returned malformed output",
			zap.Int("run", index), zap.Error(parsed.Err))
		o.sink.Record("analysis.malformed", map[string]any{"run": index, "raw": parsed.Raw})
	}

	run.Elements, run.Dedupe = candidates.RemoveDuplicates(parsed.Value)
	if run.Elements == nil {
		run.Elements = []schemas.Element{}
	}
	if run.Dedupe.Removed > 0 {
		o.logger.Debug("Removed duplicate elements",
			zap.Int("run", index),
			zap.Int("removed", run.Dedupe.Removed),
			zap.Strings("keys", run.Dedupe.DuplicatedKeys))
	}

	run.Validation = candidates.ValidateAgainstPage(run.Elements, page, platform)
	run.Score = candidates.Score(run.Elements, run.Validation)

	o.logger.Debug("Identification run scored",
		zap.Int("run", index),
		zap.String("outcome", run.Outcome),
		zap.Int("elements", len(run.Elements)),
		zap.Int("score", run.Score),
		zap.Bool("valid", run.Validation.Valid))
	o.sink.Record("analysis.run", run)
	return run, nil
}

// extendToPlatforms maps every element onto each secondary platform. Mapping
// calls may run concurrently; merging happens in platform order afterwards.
func (o *VisualAnalysisOrchestrator) extendToPlatforms(
	ctx context.Context,
	page schemas.Page,
	elements []schemas.Element,
	platforms []string,
) ([]schemas.Element, []PlatformReport, error) {
	mappings := make([]map[string]string, len(platforms))
	reports := make([]PlatformReport, len(platforms))

	g := new(errgroup.Group)
	g.SetLimit(concurrencyLimit(o.cfg.Concurrency))
	for i, platform := range platforms {
		g.Go(func() error {
			mapping, err := o.mapStateIDs(ctx, page, elements, platform)
			if err != nil {
				o.logger.Warn("Skipping platform after mapping failure",
					zap.String("platform", platform), zap.Error(err))
				reports[i] = PlatformReport{Platform: platform, Status: PlatformSkipped, Error: err.Error()}
				return nil
			}
			mappings[i] = mapping
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	out := elements
	for i, platform := range platforms {
		if reports[i].Status == PlatformSkipped {
			continue
		}

		merged := make([]schemas.Element, len(out))
		mapped := 0
		for j, el := range out {
			if stateID, ok := mappings[i][el.DevName]; ok && stateID != "" {
				merged[j] = el.WithPlatformState(platform, stateID)
				mapped++
			} else {
				merged[j] = el
			}
		}
		out = merged

		validation := candidates.ValidateAgainstPage(out, page, platform)
		if !validation.Valid {
			o.logger.Warn("Platform state mapping failed validation",
				zap.String("platform", platform),
				zap.Int("missing", len(validation.MissingElements)),
				zap.Strings("duplicates", validation.DuplicateDevNames))
		}
		reports[i] = PlatformReport{Platform: platform, Status: PlatformMapped, Mapped: mapped, Validation: &validation}
		o.sink.Record("analysis.platform_mapping", reports[i])
	}
	return out, reports, nil
}

func (o *VisualAnalysisOrchestrator) mapStateIDs(ctx context.Context, page schemas.Page, elements []schemas.Element, platform string) (map[string]string, error) {
	gc := schemas.GenerationContext{
		PageID:   page.ID,
		PageName: page.Name,
		Platform: platform,
		States:   stateInputs(page, platform),
		Elements: elements,
	}
	out, err := generateWithRetry(ctx, o.client, o.cfg.Retry.Policy(), schemas.TaskMapStateID, gc, o.logger)
	if err != nil {
		return nil, err
	}

	parsed := llmutil.ParseObject[map[string]string](out)
	switch parsed.Kind {
	case llmutil.Parsed:
		return parsed.Value, nil
	case llmutil.Malformed:
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, parsed.Err)
	default:
		return nil, fmt.Errorf("%w: empty state mapping", ErrMalformedOutput)
	}
}

// stateInputs lists every state of the page with its screenshot for platform,
// when one exists.
func stateInputs(page schemas.Page, platform string) []schemas.StateInput {
	inputs := make([]schemas.StateInput, 0, len(page.States))
	for _, s := range page.States {
		in := schemas.StateInput{StateID: s.ID, Title: s.Title}
		if v, ok := s.Version(platform); ok {
			in.Screenshot = v.Screenshot
		}
		inputs = append(inputs, in)
	}
	return inputs
}
