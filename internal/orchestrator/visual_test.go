package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/mocks"
)

func newVisual(t *testing.T, client schemas.GenerativeClient, sink schemas.DiagnosticSink) *VisualAnalysisOrchestrator {
	t.Helper()
	o, err := NewVisualAnalysisOrchestrator(client, sink, testPipelineConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func devNames(elements []schemas.Element) []string {
	out := make([]string, len(elements))
	for i, el := range elements {
		out[i] = el.DevName
	}
	return out
}

func TestAnalyze_PicksBestRunKeepingEarliestTie(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskIdentifyElements,
		say(`[{"devName":"a","stateId":"s1"},{"devName":"b","stateId":"gone"}]`),
		say(`[{"devName":"a","stateId":"s1"},{"devName":"b","stateId":"s2"}]`),
		say(`[{"devName":"a","stateId":"s1"},{"devName":"a","stateId":"s2"},{"devName":"c","stateId":"s2"}]`),
	)
	sink := &mocks.RecordingSink{}

	res, err := newVisual(t, client, sink).Analyze(context.Background(), testPage(), nil, 0)
	require.NoError(t, err)

	require.Len(t, res.Runs, 3, "configured run count is used")
	assert.Equal(t, []int{0, 2, 2}, []int{res.Runs[0].Score, res.Runs[1].Score, res.Runs[2].Score})
	assert.Equal(t, 1, res.BestRun)
	assert.Equal(t, []string{"a", "b"}, devNames(res.Elements))
	assert.Equal(t, "android", res.DefaultPlatform)
	assert.Empty(t, res.Platforms)

	assert.Equal(t, 1, res.Runs[2].Dedupe.Removed)
	assert.Equal(t, []string{"a", "c"}, devNames(res.Runs[2].Elements))
	assert.False(t, res.Runs[0].Validation.Valid)
	require.Len(t, res.Runs[0].Validation.MissingElements, 1)
	assert.Equal(t, "b", res.Runs[0].Validation.MissingElements[0].DevName)

	calls := client.callsFor(schemas.TaskIdentifyElements)
	require.Len(t, calls, 3)
	for i, c := range calls {
		assert.Equal(t, i, c.gc.Attempt)
		assert.Equal(t, "android", c.gc.Platform)
		require.Len(t, c.gc.States, 2)
		assert.Equal(t, "c2NyZWVu", c.gc.States[0].Screenshot)
		assert.Equal(t, "Form", c.gc.States[1].Title)
	}

	labels := sink.Labels()
	assert.Equal(t, []string{"analysis.run", "analysis.run", "analysis.run"}, labels)
}

func TestAnalyze_MalformedRunScoresZero(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskIdentifyElements,
		say(`here you go: {"devName": `),
		say(``),
	)
	sink := &mocks.RecordingSink{}

	res, err := newVisual(t, client, sink).Analyze(context.Background(), testPage(), []string{"android"}, 2)
	require.NoError(t, err)

	require.Len(t, res.Runs, 2)
	assert.Equal(t, "malformed", res.Runs[0].Outcome)
	assert.Equal(t, "empty", res.Runs[1].Outcome)
	assert.Zero(t, res.Runs[0].Score)
	assert.NotNil(t, res.Elements)
	assert.Empty(t, res.Elements)
	assert.Contains(t, sink.Labels(), "analysis.malformed")
}

func TestAnalyze_GenerationFailureIsFatal(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskIdentifyElements,
		failMsg("boom"), failMsg("boom"), failMsg("boom"))

	_, err := newVisual(t, client, nil).Analyze(context.Background(), testPage(), nil, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, client.callsFor(schemas.TaskIdentifyElements), 3, "one call plus two retries")
}

func TestAnalyze_ExtendsToSecondaryPlatform(t *testing.T) {
	client := newScriptedClient().
		queue(schemas.TaskIdentifyElements, say(`[{"devName":"loginBtn","stateId":"s1"},{"devName":"user","stateId":"s2"}]`)).
		queue(schemas.TaskMapStateID, say(`{"loginBtn":"s1"}`))
	sink := &mocks.RecordingSink{}

	res, err := newVisual(t, client, sink).Analyze(context.Background(), testPage(), []string{"Android", "ios", "ios"}, 1)
	require.NoError(t, err)

	require.Len(t, res.Elements, 2)
	assert.Equal(t, "s1", res.Elements[0].StateIDs["ios"])
	assert.Equal(t, "s1", res.Elements[0].StateID, "the default platform state is untouched")
	assert.Nil(t, res.Elements[1].StateIDs, "unmapped elements keep their state")

	require.Len(t, res.Platforms, 1)
	report := res.Platforms[0]
	assert.Equal(t, "ios", report.Platform)
	assert.Equal(t, PlatformMapped, report.Status)
	assert.Equal(t, 1, report.Mapped)
	require.NotNil(t, report.Validation)
	assert.True(t, report.Validation.Valid)

	calls := client.callsFor(schemas.TaskMapStateID)
	require.Len(t, calls, 1)
	assert.Equal(t, "ios", calls[0].gc.Platform)
	assert.Equal(t, []string{"loginBtn", "user"}, devNames(calls[0].gc.Elements))
	assert.Contains(t, sink.Labels(), "analysis.platform_mapping")
}

func TestAnalyze_FailedPlatformMappingIsSkipped(t *testing.T) {
	client := newScriptedClient().
		queue(schemas.TaskIdentifyElements, say(`[{"devName":"loginBtn","stateId":"s1"}]`)).
		queue(schemas.TaskMapStateID, say(`["not", "an", "object"]`))

	res, err := newVisual(t, client, nil).Analyze(context.Background(), testPage(), []string{"ios"}, 1)
	require.NoError(t, err)

	require.Len(t, res.Platforms, 1)
	assert.Equal(t, PlatformSkipped, res.Platforms[0].Status)
	assert.NotEmpty(t, res.Platforms[0].Error)
	assert.Nil(t, res.Elements[0].StateIDs)
}

func TestAnalyze_MappingGenerationFailureIsSkipped(t *testing.T) {
	client := newScriptedClient().
		queue(schemas.TaskIdentifyElements, say(`[{"devName":"loginBtn","stateId":"s1"}]`))

	res, err := newVisual(t, client, nil).Analyze(context.Background(), testPage(), []string{"ios"}, 1)
	require.NoError(t, err)

	assert.Len(t, client.callsFor(schemas.TaskMapStateID), 3)
	assert.Equal(t, PlatformSkipped, res.Platforms[0].Status)
	assert.Contains(t, res.Platforms[0].Error, ErrGeneration.Error())
}

func TestAnalyze_NoStates(t *testing.T) {
	_, err := newVisual(t, newScriptedClient(), nil).Analyze(context.Background(), schemas.Page{ID: "empty"}, nil, 1)
	assert.ErrorIs(t, err, ErrNoStates)
}

func TestIdentifyElements(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskIdentifyElements, say(`{"devName":"only","stateId":"s1"}`))

	elements, err := newVisual(t, client, nil).IdentifyElements(context.Background(), testPage(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, devNames(elements))
}

func TestAnalyze_LogsSkippedPlatform(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	client := newScriptedClient().
		queue(schemas.TaskIdentifyElements, say(`[{"devName":"loginBtn","stateId":"s1"}]`)).
		queue(schemas.TaskMapStateID, say(`{"broken":`))

	o, err := NewVisualAnalysisOrchestrator(client, nil, testPipelineConfig(), zap.New(core))
	require.NoError(t, err)
	_, err = o.Analyze(context.Background(), testPage(), []string{"android", "ios"}, 1)
	require.NoError(t, err)

	skipped := logs.FilterMessage("Skipping platform after mapping failure").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "ios", skipped[0].ContextMap()["platform"])
	assert.Equal(t, "visual_orchestrator", skipped[0].LoggerName)
}
