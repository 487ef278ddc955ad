package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/mocks"
)

func newSynthesizer(t *testing.T, client schemas.GenerativeClient, sink schemas.DiagnosticSink) *LocatorSynthesisOrchestrator {
	t.Helper()
	o, err := NewLocatorSynthesisOrchestrator(client, nil, sink, testPipelineConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

// perState answers generate-xpaths calls from a list of replies per state id,
// in call order.
func perState(replies map[string][]string) func(schemas.Task, schemas.GenerationContext) (string, error) {
	var mu sync.Mutex
	next := make(map[string]int)
	return func(task schemas.Task, gc schemas.GenerationContext) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		list := replies[gc.StateID]
		i := next[gc.StateID]
		if i >= len(list) {
			return "", fmt.Errorf("unexpected %s call %d for %s", task, i, gc.StateID)
		}
		next[gc.StateID] = i + 1
		return list[i], nil
	}
}

func TestSynthesize_BestRunPerGroup(t *testing.T) {
	client := newScriptedClient()
	client.handler = perState(map[string][]string{
		"s1": {
			`[{"devName":"loginBtn","xpathLocator":"//Button"}]`,
			`[{"devName":"loginBtn","xpathLocator":"(//Button)[1]"}]`,
		},
		"s2": {
			`[{"devName":"user","xpathLocator":"//EditText[@resource-id='user']"}]`,
			`[{"devName":"user","xpathLocator":"//layout/EditText[1]"}]`,
		},
	})
	sink := &mocks.RecordingSink{}
	elements := []schemas.Element{
		{DevName: "loginBtn", StateID: "s1"},
		{DevName: "user", StateID: "s2"},
	}

	res, err := newSynthesizer(t, client, sink).Synthesize(context.Background(), elements, testPage(), nil, 0)
	require.NoError(t, err)

	require.Len(t, res.Elements, 2)
	assert.Equal(t, "loginBtn", res.Elements[0].DevName)
	assert.Equal(t, "(//Button)[1]", res.Elements[0].XPath.XPathExpression)
	assert.Equal(t, "android", res.Elements[0].Platform)
	assert.Equal(t, "user", res.Elements[1].DevName)
	assert.Equal(t, "//EditText[@resource-id='user']", res.Elements[1].XPath.XPathExpression, "ties keep the earliest run")
	assert.False(t, res.Elements[0].XPath.NeedsRepair())

	require.Len(t, res.Groups, 2)
	assert.Equal(t, "s1_android", res.Groups[0].Key)
	assert.Equal(t, []float64{0, 1}, res.Groups[0].Ratios)
	assert.Equal(t, 1, res.Groups[0].BestRun)
	assert.Equal(t, 1, res.Groups[0].Unique)
	assert.Equal(t, "s2_android", res.Groups[1].Key)
	assert.Equal(t, []float64{1, 1}, res.Groups[1].Ratios)
	assert.Equal(t, 0, res.Groups[1].BestRun)

	calls := client.callsFor(schemas.TaskGenerateXPaths)
	require.Len(t, calls, 4, "configured run count per group")
	for _, c := range calls {
		switch c.gc.StateID {
		case "s1":
			assert.Equal(t, loginXML, c.gc.PageSource)
			assert.Equal(t, "c2NyZWVu", c.gc.Screenshot)
		case "s2":
			assert.Equal(t, formXML, c.gc.PageSource, "platform keys match case-insensitively")
		}
		require.Len(t, c.gc.Elements, 1)
	}
	assert.Len(t, sink.Labels(), 4)
}

func TestSynthesize_DropsUnknownAndDuplicateProposals(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskGenerateXPaths, say(`[
		{"devName":"ghost","xpathLocator":"//Ghost"},
		{"devName":"loginBtn","xpathLocator":"(//Button)[1]"},
		{"devName":"loginBtn","xpathLocator":"//Button"}]`))
	o := newSynthesizer(t, client, nil)

	res, err := o.Synthesize(context.Background(), []schemas.Element{{DevName: "loginBtn", StateID: "s1"}}, testPage(), []string{"android"}, 1)
	require.NoError(t, err)

	require.Len(t, res.Elements, 1)
	assert.Equal(t, "(//Button)[1]", res.Elements[0].XPath.XPathExpression, "first proposal per devName wins")
	assert.InDelta(t, 1.0/3, res.Groups[0].Ratios[0], 1e-9, "dropped proposals still count against the run")
}

func TestSynthesize_UnknownProposalsLowerTheRatio(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskGenerateXPaths,
		say(`[
			{"devName":"user","xpathLocator":"//EditText[@resource-id='user']"},
			{"devName":"x1","xpathLocator":"//X"},
			{"devName":"x2","xpathLocator":"//X"},
			{"devName":"x3","xpathLocator":"//X"}]`),
		say(`[
			{"devName":"user","xpathLocator":"//EditText[@resource-id='user']"},
			{"devName":"pass","xpathLocator":"//EditText[@resource-id='pass']"},
			{"devName":"submit","xpathLocator":"//Nope"}]`))
	elements := []schemas.Element{
		{DevName: "user", StateID: "s2"},
		{DevName: "pass", StateID: "s2"},
		{DevName: "submit", StateID: "s2"},
	}

	res, err := newSynthesizer(t, client, nil).Synthesize(context.Background(), elements, testPage(), nil, 2)
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	require.Len(t, res.Groups[0].Ratios, 2)
	assert.InDelta(t, 0.25, res.Groups[0].Ratios[0], 1e-9)
	assert.InDelta(t, 2.0/3, res.Groups[0].Ratios[1], 1e-9)
	assert.Equal(t, 1, res.Groups[0].BestRun)
	assert.Equal(t, 2, res.Groups[0].Unique)
	assert.Zero(t, res.Groups[0].Omitted)
	assert.Equal(t, []string{"user", "pass", "submit"}, []string{res.Elements[0].DevName, res.Elements[1].DevName, res.Elements[2].DevName})
}

func TestSynthesize_PadsOmittedElements(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskGenerateXPaths,
		say(`[{"devName":"loginBtn","xpathLocator":"(//Button)[2]"}]`))
	elements := []schemas.Element{
		{DevName: "loginBtn", StateID: "s1"},
		{DevName: "title", StateID: "s1"},
	}

	res, err := newSynthesizer(t, client, nil).Synthesize(context.Background(), elements, testPage(), nil, 1)
	require.NoError(t, err)

	require.Len(t, res.Elements, 2)
	padded := res.Elements[1]
	assert.Equal(t, "title", padded.DevName)
	assert.Equal(t, schemas.SentinelXPath, padded.XPath.XPathExpression)
	assert.Zero(t, padded.XPath.NumberOfMatches)
	assert.True(t, padded.XPath.NeedsRepair())
	assert.Equal(t, 1, res.Groups[0].Omitted)
}

func TestSynthesize_MalformedRunHasZeroRatio(t *testing.T) {
	client := newScriptedClient().queue(schemas.TaskGenerateXPaths,
		say(`[{"devName":`),
		say(`[{"devName":"loginBtn","xpathLocator":"//Button"}]`))

	res, err := newSynthesizer(t, client, nil).Synthesize(context.Background(), []schemas.Element{{DevName: "loginBtn", StateID: "s1"}}, testPage(), nil, 2)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0}, res.Groups[0].Ratios)
	assert.Equal(t, 0, res.Groups[0].BestRun)
	require.Len(t, res.Elements, 1)
	assert.Equal(t, schemas.SentinelXPath, res.Elements[0].XPath.XPathExpression, "malformed winner leaves every element padded")
}

func TestSynthesize_SkipsUnresolvableGroups(t *testing.T) {
	client := newScriptedClient()
	elements := []schemas.Element{
		{DevName: "ghost", StateID: "nope", Platform: "android"},
		{DevName: "user", StateID: "s2", Platform: "ios"},
	}

	res, err := newSynthesizer(t, client, nil).Synthesize(context.Background(), elements, testPage(), []string{"android", "ios"}, 1)
	require.NoError(t, err)

	assert.NotNil(t, res.Elements)
	assert.Empty(t, res.Elements)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "nope_android", res.Groups[0].Key)
	assert.Equal(t, "state not found on page", res.Groups[0].Skipped)
	assert.Equal(t, "s2_ios", res.Groups[1].Key)
	assert.Equal(t, "no version for platform", res.Groups[1].Skipped)
	assert.Equal(t, -1, res.Groups[1].BestRun)
	assert.Empty(t, client.callsFor(schemas.TaskGenerateXPaths))
}

func TestSynthesize_GenerationFailureIsFatal(t *testing.T) {
	client := newScriptedClient()
	client.handler = func(schemas.Task, schemas.GenerationContext) (string, error) {
		return "", fmt.Errorf("quota exhausted")
	}

	_, err := newSynthesizer(t, client, nil).SynthesizeLocators(context.Background(), []schemas.Element{{DevName: "loginBtn", StateID: "s1"}}, testPage(), nil, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorContains(t, err, "s1_android")
	assert.Len(t, client.callsFor(schemas.TaskGenerateXPaths), 3)
}

func TestGroupForSynthesis(t *testing.T) {
	elements := []schemas.Element{
		{DevName: "shared", StateID: "s1", StateIDs: map[string]string{"ios": "s2"}},
		{DevName: "iosOnly", StateID: "s1", Platform: "IOS"},
		{DevName: "webOnly", StateID: "s1", Platform: "web"},
		{DevName: "second", StateID: "s1"},
	}

	groups := groupForSynthesis(elements, testPage(), []string{"android", "ios"})

	require.Len(t, groups, 3)
	assert.Equal(t, "s1_android", groups[0].key)
	assert.Equal(t, []string{"shared", "second"}, devNames(groups[0].elements))
	assert.Equal(t, "s2_ios", groups[1].key)
	assert.Equal(t, []string{"shared"}, devNames(groups[1].elements))
	assert.Equal(t, "s2", groups[1].elements[0].StateID)
	assert.Equal(t, "ios", groups[1].elements[0].Platform)
	assert.Equal(t, "s1_ios", groups[2].key)
	assert.Equal(t, []string{"iosOnly", "second"}, devNames(groups[2].elements))
	assert.Equal(t, "s1", elements[0].StateID, "input is not modified")
}
