package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"redditfit/features/post"
)

// ErrEmptyResponse means the model answered without a JSON object.
var ErrEmptyResponse = errors.New("model returned no content")

// generate asks model to rewrite d under rules and parses the JSON answer.
func generate(ctx context.Context, client *genai.Client, model string, d post.Draft, rules []string) (*post.Rewrite, error) {
	slog.DebugContext(ctx, "rewriting post", "model", model, "subreddit", d.Subreddit, "rules", len(rules))

	m := client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.4)

	resp, err := m.GenerateContent(ctx, genai.Text(buildPrompt(d, rules)))
	if err != nil {
		slog.ErrorContext(ctx, "generate content failed", "model", model, "error", err)
		return nil, err
	}
	return parseRewrite(responseText(resp))
}

func buildPrompt(d post.Draft, rules []string) string {
	var b strings.Builder
	b.WriteString("You are an expert Reddit moderator and writer. Rewrite the post below so it complies with the subreddit rules ")
	b.WriteString("and reads well, while preserving the author's intent. Always keep a body.\n\n")
	fmt.Fprintf(&b, "Subreddit: r/%s\nRules:\n", d.Subreddit)
	if len(rules) == 0 {
		b.WriteString("- N/A\n")
	}
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	body := d.Body
	if body == "" {
		body = "[empty]"
	}
	fmt.Fprintf(&b, "\nOriginal Title: %s\nOriginal Body: %s\n\n", d.Title, body)
	b.WriteString(`Respond with a JSON object only: {"title": string, "body": string, "compliance_score": integer 0-100, "changes": [string]}.`)
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

type rewriteResponse struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	ComplianceScore float64  `json:"compliance_score"`
	Changes         []string `json:"changes"`
}

// parseRewrite reads the first JSON object in text. Models occasionally wrap
// it in prose or code fences even when asked not to.
func parseRewrite(text string) (*post.Rewrite, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrEmptyResponse
	}

	var out rewriteResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode rewrite: %w", err)
	}
	if out.Title == "" {
		return nil, fmt.Errorf("rewrite is missing a title")
	}

	score := int(math.Round(out.ComplianceScore))
	score = max(0, min(100, score))
	if out.Changes == nil {
		out.Changes = []string{}
	}
	return &post.Rewrite{
		Title:           out.Title,
		Body:            out.Body,
		ComplianceScore: score,
		Changes:         out.Changes,
	}, nil
}
