package llmclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
)

// Adapter implements schemas.GenerativeClient over a tiered LLMClient.
type Adapter struct {
	llm     schemas.LLMClient
	prompts PromptBuilder
	tiers   config.LLMRouterConfig
	logger  *zap.Logger
}

var _ schemas.GenerativeClient = (*Adapter)(nil)

// NewAdapter returns an Adapter. A nil builder selects DefaultPromptBuilder.
func NewAdapter(llm schemas.LLMClient, prompts PromptBuilder, tiers config.LLMRouterConfig, logger *zap.Logger) (*Adapter, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	if prompts == nil {
		prompts = DefaultPromptBuilder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{llm: llm, prompts: prompts, tiers: tiers, logger: logger.Named("generative_adapter")}, nil
}

// Generate builds the prompt for task, attaches screenshots and asks for JSON.
func (a *Adapter) Generate(ctx context.Context, task schemas.Task, gc schemas.GenerationContext) (schemas.RawModelOutput, error) {
	system, user, err := a.prompts.Build(task, gc)
	if err != nil {
		return schemas.RawModelOutput{}, err
	}

	req := schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Images:       collectImages(gc, a.logger),
		Tier:         a.tierFor(task),
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	}

	a.logger.Debug("Dispatching generation task",
		zap.String("task", string(task)),
		zap.String("tier", string(req.Tier)),
		zap.Int("images", len(req.Images)),
		zap.Int("prompt_bytes", len(user)),
	)

	text, err := a.llm.Generate(ctx, req)
	if err != nil {
		return schemas.RawModelOutput{}, err
	}
	return schemas.RawModelOutput{Text: text}, nil
}

func (a *Adapter) tierFor(task schemas.Task) schemas.ModelTier {
	switch a.tiers.TierFor(string(task)) {
	case string(schemas.TierFast):
		return schemas.TierFast
	case string(schemas.TierPowerful):
		return schemas.TierPowerful
	}
	if task == schemas.TaskMapStateID {
		return schemas.TierFast
	}
	return schemas.TierPowerful
}

func collectImages(gc schemas.GenerationContext, logger *zap.Logger) []schemas.ImagePart {
	var shots []string
	if gc.Screenshot != "" {
		shots = append(shots, gc.Screenshot)
	}
	for _, st := range gc.States {
		if st.Screenshot != "" {
			shots = append(shots, st.Screenshot)
		}
	}

	images := make([]schemas.ImagePart, 0, len(shots))
	for _, s := range shots {
		img, err := DecodeScreenshot(s)
		if err != nil {
			logger.Warn("Skipping undecodable screenshot", zap.Error(err))
			continue
		}
		images = append(images, img)
	}
	return images
}

// DecodeScreenshot accepts raw base64 or a data URI and sniffs the MIME type
// from the decoded bytes when the URI does not state one.
func DecodeScreenshot(s string) (schemas.ImagePart, error) {
	mimeType := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return schemas.ImagePart{}, fmt.Errorf("malformed data URI")
		}
		mimeType, _, _ = strings.Cut(header, ";")
		s = data
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return schemas.ImagePart{}, fmt.Errorf("screenshot is not valid base64: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(raw)
	}
	return schemas.ImagePart{MIMEType: mimeType, Data: raw}, nil
}
