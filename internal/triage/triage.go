// Package triage suggests severity and tags for a bug report using the
// Anthropic API. Suggestions are advisory: nothing is written unless the
// caller applies them.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/validate"
)

// Suggestion holds the LLM-generated triage fields for a bug.
type Suggestion struct {
	Severity  string   `json:"severity"`
	Tags      []string `json:"tags"`
	Rationale string   `json:"rationale"`
}

// Client wraps the Anthropic API for bug triage.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates a triage client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for triage.
func buildPrompt(bug *models.Bug) (system string, user string) {
	system = `You triage bug reports for an issue tracker. Given a bug's title, description, and reproduction steps, return a JSON object with exactly three fields:

- "severity": one of "low", "medium", "high", "critical". Data loss, security issues, and crashes affecting all users are "critical". Broken core workflows are "high". Degraded but workable behavior is "medium". Cosmetic issues are "low".
- "tags": an array of 1-4 short lowercase labels (e.g. "ui", "performance", "auth", "regression"). No duplicates.
- "rationale": one sentence explaining the severity choice.

Rules:
- Return valid JSON only, no markdown fencing or explanation
- Do not invent facts not present in the report
- If the report is too vague to judge, use severity "medium"`

	var sb strings.Builder
	sb.WriteString("Bug title: ")
	sb.WriteString(bug.Title)
	sb.WriteString("\n\nDescription:\n")
	sb.WriteString(bug.Description)
	sb.WriteString("\n")
	if bug.ReproductionSteps != "" {
		sb.WriteString("\nReproduction steps:\n")
		sb.WriteString(bug.ReproductionSteps)
		sb.WriteString("\n")
	}
	if len(bug.Tags) > 0 {
		sb.WriteString("\nExisting tags: ")
		sb.WriteString(strings.Join(bug.Tags, ", "))
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// Suggest sends a bug report to the LLM and returns a triage suggestion.
func (c *Client) Suggest(ctx context.Context, bug *models.Bug) (*Suggestion, error) {
	systemPrompt, userPrompt := buildPrompt(bug)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	suggestion, err := parseSuggestion(text)
	if err != nil {
		return nil, err
	}
	return suggestion, nil
}

// parseSuggestion strips markdown fencing, decodes the JSON, and
// normalizes the result to the model's vocabulary.
func parseSuggestion(text string) (*Suggestion, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	s.Severity = strings.ToLower(strings.TrimSpace(s.Severity))
	if !validate.IsValidSeverity(s.Severity) {
		return nil, fmt.Errorf("LLM returned unknown severity %q", s.Severity)
	}

	seen := map[string]bool{}
	tags := s.Tags[:0]
	for _, tag := range s.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	s.Tags = tags

	return &s, nil
}

// Patch converts a suggestion into a partial update for the bug,
// merging suggested tags with the existing ones.
func (s *Suggestion) Patch(bug *models.Bug) models.BugPatch {
	severity := s.Severity

	merged := append([]string(nil), bug.Tags...)
	have := map[string]bool{}
	for _, t := range merged {
		have[t] = true
	}
	for _, t := range s.Tags {
		if !have[t] {
			merged = append(merged, t)
			have[t] = true
		}
	}

	return models.BugPatch{
		Severity: &severity,
		Tags:     &merged,
	}
}
