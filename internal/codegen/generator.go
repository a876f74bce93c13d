package codegen

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/internal/logging"
	"stratval/ports"
)

// extractionAttempts bounds how often we re-ask the model when its
// reply contains no usable code block.
const extractionAttempts = 3

// Generator renders algorithms from templates and falls back to the
// model when no template applies.
type Generator struct {
	llm       ports.LLMClient
	model     string
	maxTokens int
	forceLLM  bool
	log       zerolog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithForceLLM skips template selection entirely.
func WithForceLLM(force bool) Option {
	return func(g *Generator) { g.forceLLM = force }
}

// New builds a Generator. llm may be nil; generation then fails for
// candidates no template covers.
func New(llm ports.LLMClient, model string, maxTokens int, opts ...Option) *Generator {
	g := &Generator{
		llm:       llm,
		model:     model,
		maxTokens: maxTokens,
		log:       logging.For("codegen"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces an algorithm for the candidate. Template render
// first; the model-backed path covers everything else.
func (g *Generator) Generate(ctx context.Context, cand *strategy.Candidate) (*ports.GeneratedProgram, error) {
	if !g.forceLLM {
		if name, ok := SelectTemplate(cand); ok {
			source, err := Render(name, cand)
			if err != nil {
				return nil, fmt.Errorf("%w: template %s: %v", core.ErrCodeGenFailure, name, err)
			}
			g.log.Debug().Str("strategy", string(cand.ID)).Str("template", name).
				Msg("rendered algorithm from template")
			return &ports.GeneratedProgram{Source: source, Template: name}, nil
		}
	}

	return g.generateWithModel(ctx, cand)
}

func (g *Generator) generateWithModel(ctx context.Context, cand *strategy.Candidate) (*ports.GeneratedProgram, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("%w: no template matched and no model configured", core.ErrCodeGenFailure)
	}

	candidateYAML, err := yaml.Marshal(cand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCodeGenFailure, err)
	}
	prompt := buildGeneratePrompt(string(candidateYAML), ClassName(cand.ID))

	source, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &ports.GeneratedProgram{
		Source:   PostProcess(source),
		Template: "llm",
		Model:    g.model,
	}, nil
}

// Correct asks the model to repair a failing algorithm.
func (g *Generator) Correct(ctx context.Context, cand *strategy.Candidate, source, errorText string) (*ports.GeneratedProgram, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("%w: no model configured for correction", core.ErrCodeGenFailure)
	}

	prompt := buildCorrectionPrompt(source, errorText, ClassName(cand.ID))
	corrected, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	g.log.Info().Str("strategy", string(cand.ID)).Msg("generated corrected algorithm")
	return &ports.GeneratedProgram{
		Source:   PostProcess(corrected),
		Template: "llm",
		Model:    g.model,
	}, nil
}

// complete calls the model and extracts a code block, re-asking a
// bounded number of times when the reply contains none.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= extractionAttempts; attempt++ {
		reply, err := g.llm.ChatCompletion(ctx, g.model, prompt, g.maxTokens)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", core.ErrCodeGenFailure, err)
			continue
		}
		if code, ok := ExtractCode(reply); ok {
			return code, nil
		}
		g.log.Warn().Int("attempt", attempt).Msg("model reply contained no code block")
		lastErr = fmt.Errorf("%w: reply contained no code block", core.ErrCodeGenFailure)
	}
	return "", lastErr
}
