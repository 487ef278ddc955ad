package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/mocks"
)

const sampleXML = `<hierarchy><layout><Button name="Login"/><Button name="Login"/></layout></hierarchy>`

const samplePage = `{
  "id": "p1",
  "name": "Login",
  "states": [
    {"id": "s1", "title": "Login screen", "versions": {"android": {"pageSource": "<hierarchy><Button name=\"Login\"/></hierarchy>"}}}
  ]
}`

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// stubClient swaps the generative client factory for the duration of a test.
func stubClient(t *testing.T, client schemas.GenerativeClient) *int {
	t.Helper()
	closed := 0
	original := newGenerativeClient
	newGenerativeClient = func(context.Context, config.Interface, *zap.Logger) (schemas.GenerativeClient, func() error, error) {
		return client, func() error { closed++; return nil }, nil
	}
	t.Cleanup(func() { newGenerativeClient = original })
	return &closed
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "locsmith version "+Version+"\n", out)

	out, err = executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "locsmith version "+Version)
}

func TestEval(t *testing.T) {
	xmlPath := writeTemp(t, "page.xml", sampleXML)

	out, err := executeCommand(t, "eval", "--xml", xmlPath, "--xpath", "//Button[@name='Login']")
	require.NoError(t, err)

	var res schemas.XPathEvaluationResult
	require.NoError(t, cliJSON.UnmarshalFromString(out, &res))
	assert.Equal(t, 2, res.NumberOfMatches)
	assert.True(t, res.IsValid)
	assert.True(t, res.Success.IsTrue())
	assert.Contains(t, out, `"xpathExpression": "//Button[@name='Login']"`, "predicates are not HTML-escaped")
}

func TestEval_RequiresFlags(t *testing.T) {
	_, err := executeCommand(t, "eval", "--xpath", "//a")
	assert.ErrorContains(t, err, `required flag(s) "xml" not set`)
}

func TestSimplify(t *testing.T) {
	xmlPath := writeTemp(t, "page.xml", sampleXML)
	outPath := filepath.Join(t.TempDir(), "out.xml")

	_, err := executeCommand(t, "simplify", "--xml", xmlPath, "--depth", "1", "--output", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[2 descendant elements omitted]")
	assert.NotContains(t, string(data), "Button")
}

func TestInvalidConfigFile(t *testing.T) {
	cfgPath := writeTemp(t, "locsmith.yaml", "pipeline:\n  analysis_runs: 0\n")
	xmlPath := writeTemp(t, "page.xml", sampleXML)

	_, err := executeCommand(t, "--config", cfgPath, "eval", "--xml", xmlPath, "--xpath", "//a")
	require.Error(t, err)
	assert.ErrorContains(t, err, "analysis_runs")
}

func TestAnalyze(t *testing.T) {
	client := new(mocks.MockGenerativeClient)
	client.On("Generate", mock.Anything, schemas.TaskIdentifyElements, mock.Anything).
		Return(schemas.RawModelOutput{Text: `[{"devName":"loginBtn","name":"Login","stateId":"s1"}]`}, nil)
	closed := stubClient(t, client)

	pagePath := writeTemp(t, "page.json", samplePage)
	outPath := filepath.Join(t.TempDir(), "elements.json")

	_, err := executeCommand(t, "analyze", "--page", pagePath, "--runs", "2", "--output", outPath)
	require.NoError(t, err)

	var elements []schemas.Element
	require.NoError(t, readJSONFile(outPath, &elements))
	require.Len(t, elements, 1)
	assert.Equal(t, "loginBtn", elements[0].DevName)
	client.AssertNumberOfCalls(t, "Generate", 2)
	assert.Equal(t, 1, *closed)
}

func TestRepair_NoFailingLocators(t *testing.T) {
	client := new(mocks.MockGenerativeClient)
	stubClient(t, client)

	locators := `[{"devName":"loginBtn","stateId":"s1","xpath":{"xpathExpression":"//Button","numberOfMatches":1,"isValid":true,"success":true}}]`
	locatorsPath := writeTemp(t, "locators.json", locators)
	pagePath := writeTemp(t, "page.json", samplePage)

	out, err := executeCommand(t, "repair", "--locators", locatorsPath, "--page", pagePath)
	require.NoError(t, err)

	var got []schemas.ElementWithLocator
	require.NoError(t, cliJSON.UnmarshalFromString(out, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "//Button", got[0].XPath.XPathExpression)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfig_PrintsEffectiveValues(t *testing.T) {
	cfgPath := writeTemp(t, "locsmith.yaml", "pipeline:\n  default_platform: ios\nllm:\n  models:\n    gemini-pro:\n      provider: gemini\n      model: gemini-2.5-pro\n      api_key: secret-key\n")

	out, err := executeCommand(t, "--config", cfgPath, "config")
	require.NoError(t, err)

	assert.Contains(t, out, "default_platform: ios")
	assert.Contains(t, out, "batch_size: 5")
	assert.Contains(t, out, "initial_delay: 1s")
	assert.NotContains(t, out, "secret-key")
}
