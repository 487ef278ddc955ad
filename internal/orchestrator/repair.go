package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/llmutil"
	"github.com/xkilldash9x/locsmith/internal/observability"
	"github.com/xkilldash9x/locsmith/internal/retry"
	"github.com/xkilldash9x/locsmith/internal/xpatheval"
)

// GroupStatus is the processing state of a repair group.
type GroupStatus string

const (
	StatusReady                  GroupStatus = "ready"
	StatusMissingStateData       GroupStatus = "missing_state_data"
	StatusMissingPlatformVersion GroupStatus = "missing_platform_version"
	StatusComplete               GroupStatus = "complete"
	StatusError                  GroupStatus = "error"
)

// GroupReport describes what happened to one stateId_platform repair group.
type GroupReport struct {
	Key                 string      `json:"key"`
	StateID             string      `json:"stateId"`
	Platform            string      `json:"platform"`
	Status              GroupStatus `json:"status"`
	Elements            int         `json:"elements"`
	Batches             int         `json:"batches"`
	Fixed               int         `json:"fixed"`
	Placeholders        int         `json:"placeholders"`
	Omitted             int         `json:"omitted"`
	XMLSimplified       bool        `json:"xmlSimplified"`
	OmittedNodes        int         `json:"omittedNodes,omitempty"`
	ScreenshotOversized bool        `json:"screenshotOversized"`
	Error               string      `json:"error,omitempty"`
}

// RepairResult is the repaired collection plus per-group reports.
type RepairResult struct {
	Elements []schemas.ElementWithLocator `json:"elements"`
	Groups   []GroupReport                `json:"groups"`
	Applied  int                          `json:"applied"`
}

// repairProposal is one entry of a repair-xpaths response.
type repairProposal struct {
	ID         string                    `json:"id"`
	DevName    string                    `json:"devName"`
	StateID    string                    `json:"stateId"`
	Platform   string                    `json:"platform"`
	Candidates []schemas.RepairCandidate `json:"candidates"`
}

// fixedElement is the validated candidate list for one failing element.
type fixedElement struct {
	key        string
	candidates []schemas.RepairCandidate
}

type repairGroup struct {
	key      string
	stateID  string
	platform string
	elements []schemas.ElementWithLocator

	fullXML    string
	promptXML  string
	screenshot string
}

// LocatorRepairOrchestrator repairs locators that do not match exactly one node.
type LocatorRepairOrchestrator struct {
	client    schemas.GenerativeClient
	evaluator *xpatheval.Evaluator
	sink      schemas.DiagnosticSink
	cfg       config.RepairConfig
	logger    *zap.Logger
}

// NewLocatorRepairOrchestrator wires the orchestrator. A nil evaluator gets a
// fresh one; a nil sink discards diagnostics.
func NewLocatorRepairOrchestrator(
	client schemas.GenerativeClient,
	evaluator *xpatheval.Evaluator,
	sink schemas.DiagnosticSink,
	cfg config.RepairConfig,
	logger *zap.Logger,
) (*LocatorRepairOrchestrator, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize locator repair orchestrator with nil dependencies")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("repair batch size must be positive, got %d", cfg.BatchSize)
	}
	if evaluator == nil {
		evaluator = xpatheval.NewEvaluator()
	}
	return &LocatorRepairOrchestrator{
		client:    client,
		evaluator: evaluator,
		sink:      observability.SinkOrNop(sink),
		cfg:       cfg,
		logger:    logger.Named("repair_orchestrator"),
	}, nil
}

// Repair fixes failing locators and merges the fixes back. When nothing needs
// repair the input slice itself is returned. Group failures are reported, not
// returned; only context cancellation aborts the call.
func (o *LocatorRepairOrchestrator) Repair(ctx context.Context, elements []schemas.ElementWithLocator, page schemas.Page) (*RepairResult, error) {
	groups := groupFailing(elements)
	if len(groups) == 0 {
		o.logger.Debug("All locators match uniquely; nothing to repair", zap.Int("elements", len(elements)))
		return &RepairResult{Elements: elements, Groups: []GroupReport{}}, nil
	}

	reports := make([]GroupReport, len(groups))
	fixes := make([][]fixedElement, len(groups))

	g := new(errgroup.Group)
	g.SetLimit(concurrencyLimit(o.cfg.Concurrency))
	for i := range groups {
		g.Go(func() error {
			reports[i], fixes[i] = o.repairGroup(ctx, page, groups[i])
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lookup := make(map[string][]schemas.RepairCandidate)
	for _, fs := range fixes {
		for _, f := range fs {
			if _, exists := lookup[f.key]; !exists {
				lookup[f.key] = f.candidates
			}
		}
	}

	merged, applied := mergeFixes(elements, lookup)
	o.logger.Info("Locator repair finished",
		zap.Int("groups", len(groups)),
		zap.Int("applied", applied),
		zap.Int("elements", len(elements)))
	return &RepairResult{Elements: merged, Groups: reports, Applied: applied}, nil
}

// repairGroup never panics; a failure anywhere in the group is reported with
// StatusError.
func (o *LocatorRepairOrchestrator) repairGroup(ctx context.Context, page schemas.Page, grp repairGroup) (report GroupReport, fixes []fixedElement) {
	report = GroupReport{
		Key:      grp.key,
		StateID:  grp.stateID,
		Platform: grp.platform,
		Elements: len(grp.elements),
	}
	logger := o.logger.With(zap.String("group", grp.key))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Repair group failed", zap.Any("panic", r))
			report.Status = StatusError
			report.Error = fmt.Sprintf("%s: %v", reasonProcessingError, r)
			fixes = nil
		}
		o.sink.Record("repair.group", report)
	}()

	status, err := o.attachContext(page, &grp, &report)
	report.Status = status
	if status != StatusReady {
		logger.Warn("Skipping repair group", zap.String("status", string(status)), zap.Error(err))
		report.Error = err.Error()
		return report, nil
	}

	for start := 0; start < len(grp.elements); start += o.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+o.cfg.BatchSize, len(grp.elements))
		batchFixes, stats := o.repairBatch(ctx, grp, grp.elements[start:end], report.Batches)
		report.Batches++
		report.Fixed += stats.fixed
		report.Placeholders += stats.placeholders
		report.Omitted += stats.omitted
		fixes = append(fixes, batchFixes...)
	}

	if err := ctx.Err(); err != nil {
		report.Status = StatusError
		report.Error = err.Error()
		return report, nil
	}
	report.Status = StatusComplete
	logger.Info("Repair group complete",
		zap.Int("batches", report.Batches),
		zap.Int("fixed", report.Fixed),
		zap.Int("placeholders", report.Placeholders))
	return report, fixes
}

// attachContext resolves the group's screenshot and XML and applies the size
// guard.
func (o *LocatorRepairOrchestrator) attachContext(page schemas.Page, grp *repairGroup, report *GroupReport) (GroupStatus, error) {
	state, ok := page.State(grp.stateID)
	if !ok {
		return StatusMissingStateData, fmt.Errorf("state %q not found on page", grp.stateID)
	}
	version, ok := state.Version(grp.platform)
	if !ok {
		return StatusMissingPlatformVersion, fmt.Errorf("state %q has no version for platform %q", grp.stateID, grp.platform)
	}
	if version.PageSource == "" {
		return StatusMissingStateData, fmt.Errorf("state %q has no XML page source for platform %q", grp.stateID, grp.platform)
	}

	grp.fullXML = version.PageSource
	grp.promptXML = version.PageSource
	grp.screenshot = version.Screenshot

	if len(grp.fullXML) > o.cfg.MaxXMLBytes {
		simplified, removed, err := xpatheval.Simplify(grp.fullXML, o.cfg.SimplifyDepth)
		if err != nil {
			o.logger.Warn("Oversized XML could not be simplified; sending as is",
				zap.String("group", grp.key), zap.Int("bytes", len(grp.fullXML)), zap.Error(err))
		} else {
			grp.promptXML = simplified
			report.XMLSimplified = true
			report.OmittedNodes = removed
			o.logger.Info("Simplified oversized XML",
				zap.String("group", grp.key),
				zap.Int("bytes_before", len(grp.fullXML)),
				zap.Int("bytes_after", len(simplified)),
				zap.Int("omitted_nodes", removed))
		}
	}
	if len(grp.screenshot) > o.cfg.MaxScreenshotBytes {
		report.ScreenshotOversized = true
		o.logger.Warn("Screenshot exceeds size limit; sending unchanged",
			zap.String("group", grp.key), zap.Int("bytes", len(grp.screenshot)))
	}
	return StatusReady, nil
}

type batchStats struct {
	fixed        int
	placeholders int
	omitted      int
}

// repairBatch asks for ranked candidates under the repair retry policy and
// validates them. Exhausted retries degrade to placeholders.
func (o *LocatorRepairOrchestrator) repairBatch(ctx context.Context, grp repairGroup, batch []schemas.ElementWithLocator, index int) ([]fixedElement, batchStats) {
	op := func(ctx context.Context, attempt int) ([]repairProposal, error) {
		gc := schemas.GenerationContext{
			Platform:   grp.platform,
			StateID:    grp.stateID,
			Attempt:    attempt,
			Locators:   batch,
			PageSource: grp.promptXML,
			Screenshot: grp.screenshot,
		}
		out, err := o.client.Generate(ctx, schemas.TaskRepairXPaths, gc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		parsed := llmutil.ParseList[repairProposal](out)
		switch parsed.Kind {
		case llmutil.Parsed:
			return parsed.Value, nil
		case llmutil.Malformed:
			return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, parsed.Err)
		default:
			return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
		}
	}
	notify := func(err error, attempt int, next time.Duration) {
		o.logger.Warn("Repair batch attempt failed, retrying",
			zap.String("group", grp.key),
			zap.Int("batch", index),
			zap.Int("attempt", attempt+1),
			zap.Duration("next_delay", next),
			zap.Error(err))
	}

	proposals, err := retry.Do(ctx, o.cfg.Policy(), op, notify)
	if err != nil {
		reason := reasonAPIError
		if errors.Is(err, ErrMalformedOutput) {
			reason = reasonParseError
		}
		o.logger.Error("Repair batch exhausted retries; using placeholders",
			zap.String("group", grp.key), zap.Int("batch", index), zap.String("reason", reason), zap.Error(err))
		o.sink.Record("repair.batch", map[string]any{"group": grp.key, "batch": index, "error": err.Error()})
		return placeholderFixes(grp, batch, reason), batchStats{placeholders: len(batch)}
	}

	fixes, stats, err := o.validateBatch(grp, batch, proposals)
	if err != nil {
		o.logger.Error("Repair batch validation failed; using placeholders",
			zap.String("group", grp.key), zap.Int("batch", index), zap.Error(err))
		return placeholderFixes(grp, batch, reasonProcessingError), batchStats{placeholders: len(batch)}
	}
	o.sink.Record("repair.batch", map[string]any{"group": grp.key, "batch": index, "proposals": proposals, "fixed": stats.fixed})
	return fixes, stats
}

// validateBatch matches proposals to batch elements by id, then devName, and
// runs candidate validation for each. Elements without a proposal get
// placeholders.
func (o *LocatorRepairOrchestrator) validateBatch(grp repairGroup, batch []schemas.ElementWithLocator, proposals []repairProposal) (fixes []fixedElement, stats batchStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", reasonProcessingError, r)
		}
	}()

	byID := make(map[string]repairProposal, len(proposals))
	byDevName := make(map[string]repairProposal, len(proposals))
	for _, p := range proposals {
		if _, dup := byID[p.ID]; p.ID != "" && !dup {
			byID[p.ID] = p
		}
		if _, dup := byDevName[p.DevName]; p.DevName != "" && !dup {
			byDevName[p.DevName] = p
		}
	}

	fixes = make([]fixedElement, 0, len(batch))
	for _, el := range batch {
		p, ok := byID[el.ID]
		if !ok {
			p, ok = byDevName[el.DevName]
		}

		var cands []schemas.RepairCandidate
		if ok {
			cands = validateFixedXPaths(p.Candidates, grp.fullXML, o.evaluator)
		} else {
			stats.omitted++
			cands = placeholderCandidates(reasonMissing)
		}

		if _, accepted := acceptedPrimary(cands); accepted {
			stats.fixed++
		} else if !ok {
			stats.placeholders++
		}
		fixes = append(fixes, fixedElement{key: mergeKey(el.Element, grp.stateID, grp.platform), candidates: cands})
	}
	return fixes, stats, nil
}

func placeholderFixes(grp repairGroup, batch []schemas.ElementWithLocator, reason string) []fixedElement {
	out := make([]fixedElement, len(batch))
	for i, el := range batch {
		out[i] = fixedElement{
			key:        mergeKey(el.Element, grp.stateID, grp.platform),
			candidates: placeholderCandidates(reason),
		}
	}
	return out
}

// groupFailing selects elements whose locator needs repair and groups them by
// stateId_platform in first-seen order.
func groupFailing(elements []schemas.ElementWithLocator) []repairGroup {
	index := make(map[string]int)
	var groups []repairGroup
	for _, el := range elements {
		if !el.XPath.NeedsRepair() {
			continue
		}
		stateID, platform := elementScope(el.Element)
		key := groupKey(stateID, platform)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, repairGroup{key: key, stateID: stateID, platform: platform})
		}
		groups[i].elements = append(groups[i].elements, el)
	}
	return groups
}

// elementScope is the (stateId, platform) an element is repaired under.
func elementScope(el schemas.Element) (stateID, platform string) {
	platform = schemas.NormalizePlatform(el.Platform)
	return el.ResolveStateID(platform), platform
}
