package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/candidates"
	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/llmutil"
	"github.com/xkilldash9x/locsmith/internal/observability"
	"github.com/xkilldash9x/locsmith/internal/xpatheval"
)

// xpathProposal is one entry of a generate-xpaths response.
type xpathProposal struct {
	schemas.Element
	XPathLocator string `json:"xpathLocator"`
}

// SynthesisRun records one locator generation attempt for a group.
type SynthesisRun struct {
	ID         string                       `json:"id"`
	Index      int                          `json:"index"`
	Outcome    string                       `json:"outcome"`
	Locators   []schemas.ElementWithLocator `json:"locators"`
	Unknown    []string                     `json:"unknownDevNames,omitempty"`
	ValidCount int                          `json:"validCount"`
	TotalCount int                          `json:"totalCount"`
	ValidRatio float64                      `json:"validRatio"`
}

// SynthesisGroupReport summarizes one stateId_platform group.
type SynthesisGroupReport struct {
	Key      string    `json:"key"`
	StateID  string    `json:"stateId"`
	Platform string    `json:"platform"`
	Elements int       `json:"elements"`
	Skipped  string    `json:"skipped,omitempty"`
	BestRun  int       `json:"bestRun"`
	Ratios   []float64 `json:"ratios,omitempty"`
	Unique   int       `json:"unique"`
	Omitted  int       `json:"omitted"`
}

// SynthesisResult is the full output of a synthesis pass.
type SynthesisResult struct {
	Elements []schemas.ElementWithLocator `json:"elements"`
	Groups   []SynthesisGroupReport       `json:"groups"`
}

// synthesisGroup is the unit of work: elements sharing a state and platform.
type synthesisGroup struct {
	key      string
	stateID  string
	platform string
	elements []schemas.Element
	version  schemas.StateVersion
	skipped  string
}

// LocatorSynthesisOrchestrator generates and verifies XPath locators.
type LocatorSynthesisOrchestrator struct {
	client    schemas.GenerativeClient
	evaluator *xpatheval.Evaluator
	sink      schemas.DiagnosticSink
	cfg       config.PipelineConfig
	logger    *zap.Logger
}

// NewLocatorSynthesisOrchestrator wires the orchestrator. A nil evaluator gets
// a fresh one; a nil sink discards diagnostics.
func NewLocatorSynthesisOrchestrator(
	client schemas.GenerativeClient,
	evaluator *xpatheval.Evaluator,
	sink schemas.DiagnosticSink,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) (*LocatorSynthesisOrchestrator, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize locator synthesis orchestrator with nil dependencies")
	}
	if evaluator == nil {
		evaluator = xpatheval.NewEvaluator()
	}
	return &LocatorSynthesisOrchestrator{
		client:    client,
		evaluator: evaluator,
		sink:      observability.SinkOrNop(sink),
		cfg:       cfg,
		logger:    logger.Named("synthesis_orchestrator"),
	}, nil
}

// SynthesizeLocators returns the winning locators of every group in group
// order. The page supplies each group's XML.
func (o *LocatorSynthesisOrchestrator) SynthesizeLocators(
	ctx context.Context,
	elements []schemas.Element,
	page schemas.Page,
	platforms []string,
	mRuns int,
) ([]schemas.ElementWithLocator, error) {
	res, err := o.Synthesize(ctx, elements, page, platforms, mRuns)
	if err != nil {
		return nil, err
	}
	return res.Elements, nil
}

// Synthesize is SynthesizeLocators with per-group reporting. A non-positive
// mRuns uses the configured run count.
func (o *LocatorSynthesisOrchestrator) Synthesize(
	ctx context.Context,
	elements []schemas.Element,
	page schemas.Page,
	platforms []string,
	mRuns int,
) (*SynthesisResult, error) {
	if mRuns <= 0 {
		mRuns = o.cfg.SynthesisRuns
	}
	requested := normalizePlatforms(platforms)
	if len(requested) == 0 {
		requested = []string{schemas.NormalizePlatform(o.cfg.DefaultPlatform)}
	}

	groups := groupForSynthesis(elements, page, requested)
	winners := make([][]schemas.ElementWithLocator, len(groups))
	reports := make([]SynthesisGroupReport, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit(o.cfg.Concurrency))
	for i, grp := range groups {
		reports[i] = SynthesisGroupReport{
			Key:      grp.key,
			StateID:  grp.stateID,
			Platform: grp.platform,
			Elements: len(grp.elements),
			Skipped:  grp.skipped,
			BestRun:  -1,
		}
		if grp.skipped != "" {
			o.logger.Warn("Skipping synthesis group",
				zap.String("group", grp.key), zap.String("reason", grp.skipped))
			continue
		}
		g.Go(func() error {
			locators, report, err := o.synthesizeGroup(gctx, page, grp, mRuns)
			if err != nil {
				return err
			}
			report.Key, report.StateID, report.Platform = grp.key, grp.stateID, grp.platform
			report.Elements = len(grp.elements)
			winners[i] = locators
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []schemas.ElementWithLocator
	for _, w := range winners {
		out = append(out, w...)
	}
	if out == nil {
		out = []schemas.ElementWithLocator{}
	}
	return &SynthesisResult{Elements: out, Groups: reports}, nil
}

func (o *LocatorSynthesisOrchestrator) synthesizeGroup(
	ctx context.Context,
	page schemas.Page,
	grp synthesisGroup,
	mRuns int,
) ([]schemas.ElementWithLocator, SynthesisGroupReport, error) {
	runs := make([]SynthesisRun, 0, mRuns)
	ratios := make([]float64, 0, mRuns)

	for i := 0; i < mRuns; i++ {
		gc := schemas.GenerationContext{
			PageID:     page.ID,
			PageName:   page.Name,
			Platform:   grp.platform,
			StateID:    grp.stateID,
			Attempt:    i,
			Elements:   grp.elements,
			PageSource: grp.version.PageSource,
			Screenshot: grp.version.Screenshot,
		}
		out, err := generateWithRetry(ctx, o.client, o.cfg.Retry.Policy(), schemas.TaskGenerateXPaths, gc, o.logger)
		if err != nil {
			return nil, SynthesisGroupReport{}, fmt.Errorf("synthesis run %d for group %s: %w", i, grp.key, err)
		}

		run := o.evaluateRun(grp, llmutil.ParseList[xpathProposal](out))
		run.Index = i
		runs = append(runs, run)
		ratios = append(ratios, run.ValidRatio)

		o.logger.Debug("Synthesis run scored",
			zap.String("group", grp.key),
			zap.Int("run", i),
			zap.String("outcome", run.Outcome),
			zap.Int("locators", len(run.Locators)),
			zap.Float64("valid_ratio", run.ValidRatio))
		o.sink.Record("synthesis.run", map[string]any{"group": grp.key, "run": run})
	}

	best := candidates.Best(ratios)
	winner := runs[best]
	locators := o.padOmitted(grp, winner.Locators)

	o.logger.Info("Selected best synthesis run",
		zap.String("group", grp.key),
		zap.Int("run", best),
		zap.Float64("valid_ratio", winner.ValidRatio),
		zap.Int("omitted", len(locators)-len(winner.Locators)))

	return locators, SynthesisGroupReport{
		BestRun: best,
		Ratios:  ratios,
		Unique:  winner.ValidCount,
		Omitted: len(locators) - len(winner.Locators),
	}, nil
}

// evaluateRun checks every proposed locator against the group XML. Proposals
// for devNames outside the group, and repeats after the first per devName, are
// dropped from the locators but still count as invalid in the ratio.
func (o *LocatorSynthesisOrchestrator) evaluateRun(grp synthesisGroup, parsed llmutil.Outcome[[]xpathProposal]) SynthesisRun {
	run := SynthesisRun{ID: uuid.NewString(), Outcome: parsed.Kind.String(), Locators: []schemas.ElementWithLocator{}}
	if parsed.Kind == llmutil.Malformed {
		o.logger.Warn("Synthesis run returned malformed output",
			zap.String("group", grp.key), zap.Error(parsed.Err))
		return run
	}

	byDevName := make(map[string]schemas.Element, len(grp.elements))
	for _, el := range grp.elements {
		byDevName[el.DevName] = el
	}
	seen := make(map[string]struct{}, len(parsed.Value))
	run.TotalCount = len(parsed.Value)

	for _, p := range parsed.Value {
		el, ok := byDevName[p.DevName]
		if !ok {
			run.Unknown = append(run.Unknown, p.DevName)
			continue
		}
		if _, dup := seen[p.DevName]; dup {
			continue
		}
		seen[p.DevName] = struct{}{}

		result := o.evaluator.Evaluate(grp.version.PageSource, p.XPathLocator)
		if result.IsUnique() {
			run.ValidCount++
		}
		run.Locators = append(run.Locators, schemas.ElementWithLocator{Element: el, XPath: result})
	}
	if len(run.Unknown) > 0 {
		o.logger.Debug("Dropped locators for unknown elements",
			zap.String("group", grp.key), zap.Strings("dev_names", run.Unknown))
	}
	if run.TotalCount > 0 {
		run.ValidRatio = float64(run.ValidCount) / float64(run.TotalCount)
	}
	return run
}

// padOmitted appends a sentinel locator for every group element the winning
// run did not cover, so repair can pick them up.
func (o *LocatorSynthesisOrchestrator) padOmitted(grp synthesisGroup, locators []schemas.ElementWithLocator) []schemas.ElementWithLocator {
	covered := make(map[string]struct{}, len(locators))
	for _, l := range locators {
		covered[l.DevName] = struct{}{}
	}
	out := slices.Clone(locators)
	for _, el := range grp.elements {
		if _, ok := covered[el.DevName]; ok {
			continue
		}
		out = append(out, schemas.ElementWithLocator{
			Element: el,
			XPath:   o.evaluator.Evaluate(grp.version.PageSource, schemas.SentinelXPath),
		})
	}
	return out
}

// groupForSynthesis expands each element over the requested platforms and
// groups by stateId_platform in first-seen order. An element with an explicit
// platform only joins that platform.
func groupForSynthesis(elements []schemas.Element, page schemas.Page, requested []string) []synthesisGroup {
	index := make(map[string]int)
	var groups []synthesisGroup

	for _, el := range elements {
		platforms := requested
		if el.Platform != "" {
			p := schemas.NormalizePlatform(el.Platform)
			if !slices.Contains(requested, p) {
				continue
			}
			platforms = []string{p}
		}

		for _, p := range platforms {
			stateID := el.ResolveStateID(p)
			key := groupKey(stateID, p)
			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, newSynthesisGroup(key, stateID, p, page))
			}
			scoped := el
			scoped.Platform = p
			scoped.StateID = stateID
			groups[i].elements = append(groups[i].elements, scoped)
		}
	}
	return groups
}

func newSynthesisGroup(key, stateID, platform string, page schemas.Page) synthesisGroup {
	grp := synthesisGroup{key: key, stateID: stateID, platform: platform}
	state, ok := page.State(stateID)
	if !ok {
		grp.skipped = "state not found on page"
		return grp
	}
	version, ok := state.Version(platform)
	if !ok {
		grp.skipped = "no version for platform"
		return grp
	}
	if version.PageSource == "" {
		grp.skipped = "no XML page source"
		return grp
	}
	grp.version = version
	return grp
}
