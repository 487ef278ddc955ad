package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Scripted generative client --

type reply struct {
	text string
	err  error
}

type recordedCall struct {
	task schemas.Task
	gc   schemas.GenerationContext
}

// scriptedClient replays queued replies per task. When a task's queue is
// empty the handler, if any, answers instead.
type scriptedClient struct {
	mu      sync.Mutex
	queues  map[schemas.Task][]reply
	handler func(task schemas.Task, gc schemas.GenerationContext) (string, error)
	calls   []recordedCall
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{queues: make(map[schemas.Task][]reply)}
}

func (c *scriptedClient) queue(task schemas.Task, replies ...reply) *scriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[task] = append(c.queues[task], replies...)
	return c
}

func (c *scriptedClient) Generate(ctx context.Context, task schemas.Task, gc schemas.GenerationContext) (schemas.RawModelOutput, error) {
	if err := ctx.Err(); err != nil {
		return schemas.RawModelOutput{}, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, recordedCall{task: task, gc: gc})
	q := c.queues[task]
	if len(q) > 0 {
		c.queues[task] = q[1:]
		c.mu.Unlock()
		return schemas.RawModelOutput{Text: q[0].text}, q[0].err
	}
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		text, err := handler(task, gc)
		return schemas.RawModelOutput{Text: text}, err
	}
	return schemas.RawModelOutput{}, fmt.Errorf("no scripted reply for %s", task)
}

func (c *scriptedClient) callsFor(task schemas.Task) []recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []recordedCall
	for _, call := range c.calls {
		if call.task == task {
			out = append(out, call)
		}
	}
	return out
}

func say(text string) reply  { return reply{text: text} }
func fail(err error) reply   { return reply{err: err} }
func failMsg(m string) reply { return reply{err: fmt.Errorf("%s", m)} }

// -- Fixtures --

const loginXML = `<hierarchy><Button name="Login"/><Button name="Login"/></hierarchy>`

const formXML = `<hierarchy><layout><EditText resource-id="user"/><EditText resource-id="pass"/><Button text="Submit"/></layout></hierarchy>`

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		DefaultPlatform: "android",
		AnalysisRuns:    3,
		SynthesisRuns:   2,
		Concurrency:     1,
		Retry: config.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     4 * time.Millisecond,
		},
	}
}

func testRepairConfig() config.RepairConfig {
	return config.RepairConfig{
		BatchSize:          5,
		MaxAttempts:        3,
		InitialDelay:       time.Millisecond,
		MaxDelay:           4 * time.Millisecond,
		MaxXMLBytes:        1 << 20,
		SimplifyDepth:      10,
		MaxScreenshotBytes: 5 << 20,
		Concurrency:        1,
	}
}

func testPage() schemas.Page {
	return schemas.Page{
		ID:   "p1",
		Name: "Login",
		States: []schemas.State{
			{
				ID:    "s1",
				Title: "Login screen",
				Versions: map[string]schemas.StateVersion{
					"android": {Screenshot: "c2NyZWVu", PageSource: loginXML},
					"ios":     {PageSource: `<XCUIElementTypeApplication><XCUIElementTypeButton name="Login"/></XCUIElementTypeApplication>`},
				},
			},
			{
				ID:    "s2",
				Title: "Form",
				Versions: map[string]schemas.StateVersion{
					"Android": {PageSource: formXML},
				},
			},
		},
	}
}
