// File: internal/orchestrator/orchestrator.go
// Description: Chains element identification, locator synthesis and locator
// repair for one page. Each stage is injected with the shared generative
// client and evaluator, so the whole flow can run against fakes in tests.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/xpatheval"
)

// PipelineResult holds every intermediate product of one Run.
type PipelineResult struct {
	RunID      string                       `json:"runId"`
	PageID     string                       `json:"pageId"`
	Platforms  []string                     `json:"platforms"`
	Analysis   *AnalysisResult              `json:"analysis"`
	Synthesis  *SynthesisResult             `json:"synthesis"`
	Repair     *RepairResult                `json:"repair"`
	Locators   []schemas.ElementWithLocator `json:"locators"`
	StartedAt  time.Time                    `json:"startedAt"`
	FinishedAt time.Time                    `json:"finishedAt"`
}

// Pipeline runs identify, synthesize and repair in order.
type Pipeline struct {
	cfg       config.Interface
	logger    *zap.Logger
	visual    *VisualAnalysisOrchestrator
	synthesis *LocatorSynthesisOrchestrator
	repair    *LocatorRepairOrchestrator
}

// NewPipeline builds the three orchestrators around one client, sink and
// evaluator.
func NewPipeline(cfg config.Interface, client schemas.GenerativeClient, sink schemas.DiagnosticSink, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil || client == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize pipeline with nil dependencies")
	}

	evaluator := xpatheval.NewEvaluator()
	visual, err := NewVisualAnalysisOrchestrator(client, sink, cfg.Pipeline(), logger)
	if err != nil {
		return nil, err
	}
	synthesis, err := NewLocatorSynthesisOrchestrator(client, evaluator, sink, cfg.Pipeline(), logger)
	if err != nil {
		return nil, err
	}
	repair, err := NewLocatorRepairOrchestrator(client, evaluator, sink, cfg.Repair(), logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		logger:    logger.Named("pipeline"),
		visual:    visual,
		synthesis: synthesis,
		repair:    repair,
	}, nil
}

// Visual exposes the identification stage.
func (p *Pipeline) Visual() *VisualAnalysisOrchestrator { return p.visual }

// Synthesis exposes the locator synthesis stage.
func (p *Pipeline) Synthesis() *LocatorSynthesisOrchestrator { return p.synthesis }

// Repairer exposes the repair stage.
func (p *Pipeline) Repairer() *LocatorRepairOrchestrator { return p.repair }

// Run executes the full flow for page. With no platforms the configured
// default platform is used. Generation failures in identification or
// synthesis are fatal; repair always yields a result.
func (p *Pipeline) Run(ctx context.Context, page schemas.Page, platforms []string) (*PipelineResult, error) {
	platforms = normalizePlatforms(platforms)
	if len(platforms) == 0 {
		platforms = []string{schemas.NormalizePlatform(p.cfg.Pipeline().DefaultPlatform)}
	}

	res := &PipelineResult{
		RunID:     uuid.NewString(),
		PageID:    page.ID,
		Platforms: platforms,
		StartedAt: time.Now(),
	}
	logger := p.logger.With(zap.String("run_id", res.RunID), zap.String("page_id", page.ID))
	logger.Info("Pipeline starting", zap.Strings("platforms", platforms))

	analysis, err := p.visual.Analyze(ctx, page, platforms, p.cfg.Pipeline().AnalysisRuns)
	if err != nil {
		return nil, fmt.Errorf("element identification failed: %w", err)
	}
	res.Analysis = analysis
	logger.Info("Elements identified", zap.Int("elements", len(analysis.Elements)))

	synthesis, err := p.synthesis.Synthesize(ctx, analysis.Elements, page, platforms, p.cfg.Pipeline().SynthesisRuns)
	if err != nil {
		return nil, fmt.Errorf("locator synthesis failed: %w", err)
	}
	res.Synthesis = synthesis
	logger.Info("Locators synthesized", zap.Int("locators", len(synthesis.Elements)))

	repair, err := p.repair.Repair(ctx, synthesis.Elements, page)
	if err != nil {
		return nil, fmt.Errorf("locator repair failed: %w", err)
	}
	res.Repair = repair
	res.Locators = repair.Elements
	res.FinishedAt = time.Now()

	logger.Info("Pipeline finished",
		zap.Int("locators", len(res.Locators)),
		zap.Int("repaired", repair.Applied),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}
