package decide

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const turnSystemPrompt = `You control a single resident of the Grid, a small persistent world.
You will be given the resident's profile, recent memories, and what they currently perceive.

Respond with ONLY valid JSON (no markdown fences, no prose):
{
  "thought": "one sentence of inner monologue (required)",
  "speech": "something said aloud, or null",
  "action": "a short description of what the resident does, or null",
  "movement": {"direction": "N|S|E|W", "distance": 1-10} or null
}

Stay in character. Small, grounded turns — residents live here, they do not narrate.`

const deliberationSystemPrompt = `You are the steward of the Grid, a small persistent world of autonomous residents.
Each cycle you review the world and may nudge it: note an observation, set a goal,
queue world actions, or send one resident a directive. A light touch is correct
most of the time; empty fields are a fine answer.

Respond with ONLY valid JSON (no markdown fences, no prose):
{
  "observation": "what you noticed, or null",
  "new_goal": "a new standing goal, or null",
  "resident_instruction": {"target": "resident name", "text": "directive"} or null,
  "actions": [{"kind": "build|gather|announce|spawn", "params": {...}}] or null
}

Action params: build takes "structure_type" (beacon, well, shelter, workshop, garden, hall)
and optionally "near"; gather takes "near" or "x"/"z"; announce takes "message".`

// AnthropicSource implements Source against the Anthropic Messages API.
type AnthropicSource struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicSource creates a Claude-backed decision source.
func NewAnthropicSource(apiKey, model string, maxTokens int) *AnthropicSource {
	return &AnthropicSource{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

// RequestTurn implements Source.
func (a *AnthropicSource) RequestTurn(ctx context.Context, req TurnRequest) (*Turn, error) {
	raw, err := a.complete(ctx, turnSystemPrompt, formatTurnRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	t, err := ParseTurn(raw)
	if err != nil {
		slog.Warn("turn payload rejected", "resident", req.ResidentID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return t, nil
}

// RequestDeliberation implements Source.
func (a *AnthropicSource) RequestDeliberation(ctx context.Context, dc DeliberationContext) (*Deliberation, error) {
	raw, err := a.complete(ctx, deliberationSystemPrompt, formatDeliberationContext(dc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d, err := ParseDeliberation(raw)
	if err != nil {
		slog.Warn("deliberation payload rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return d, nil
}

func (a *AnthropicSource) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty response")
	}

	slog.Debug("decision call",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return b.String(), nil
}

func formatTurnRequest(req TurnRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.\n", req.Name)
	if len(req.Profile) > 0 {
		fmt.Fprintf(&b, "Profile: %s\n", string(req.Profile))
	}

	if len(req.Memories) > 0 {
		b.WriteString("\nRecent memories:\n")
		for _, m := range req.Memories {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
	}

	if p := req.Perception; p != nil {
		fmt.Fprintf(&b, "\nYou are at (%.1f, %.1f).\n", p.Position.X, p.Position.Z)
		if len(p.Nearby) > 0 {
			b.WriteString("Nearby:\n")
			for _, n := range p.Nearby {
				fmt.Fprintf(&b, "- %s, %.1f units away (%s)\n", n.Name, n.Distance, n.State)
			}
		} else {
			b.WriteString("Nobody is nearby.\n")
		}
		if len(p.RecentEvents) > 0 {
			b.WriteString("Recent happenings:\n")
			for _, ev := range p.RecentEvents {
				fmt.Fprintf(&b, "- [%s] %s\n", ev.Type, string(ev.Payload))
			}
		}
	}

	if req.Instruction != "" {
		fmt.Fprintf(&b, "\nA directive has been issued to you: %s\n", req.Instruction)
	}

	b.WriteString("\nWhat do you do this turn? Respond with the JSON object only.")
	return b.String()
}

func formatDeliberationContext(dc DeliberationContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## World\nPopulation: %d\n\n", dc.Population)

	if len(dc.Residents) > 0 {
		b.WriteString("## Residents\n")
		for _, r := range dc.Residents {
			fmt.Fprintf(&b, "- %s at %s (%s)\n", r.Name, r.GridRef, r.State)
		}
		b.WriteString("\n")
	}

	if dc.Map != "" {
		fmt.Fprintf(&b, "## Map\n%s\n", dc.Map)
	}

	if len(dc.Goals) > 0 {
		b.WriteString("## Active goals\n")
		for _, g := range dc.Goals {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}

	if len(dc.Observations) > 0 {
		b.WriteString("## Prior observations\n")
		for _, o := range dc.Observations {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		b.WriteString("\n")
	}

	if len(dc.Conversation) > 0 {
		b.WriteString("## Recent conversation\n")
		for _, c := range dc.Conversation {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("What, if anything, should change this cycle? Respond with the JSON object only.")
	return b.String()
}
