// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reasoning delegates text understanding to a Generative AI API.
// The pipeline treats it as a black box: intake classification, query
// decomposition, and finding synthesis each go through the Engine
// interface so tests can supply a mock.
// Implements: prd002-planning (decomposition), prd006-synthesis;
//
//	docs/ARCHITECTURE § Reasoning.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meshintel/deepresearch/internal/httputil"
	"github.com/meshintel/deepresearch/pkg/types"
)

// Classification is the intake verdict for a research query.
type Classification struct {
	// IntentTag labels what the user wants (e.g. "comparison", "survey").
	IntentTag string `json:"intent_tag"`

	// DomainTag labels the subject area (e.g. "databases", "medicine").
	DomainTag string `json:"domain_tag"`

	// NeedsClarification indicates the query is too ambiguous to plan.
	NeedsClarification bool `json:"needs_clarification"`

	// ClarifyingQuestion is the question to pose to the caller when
	// NeedsClarification is set.
	ClarifyingQuestion string `json:"clarifying_question"`
}

// DecomposedQuestion is one sub-question produced by decomposition,
// with declared prerequisite relationships.
type DecomposedQuestion struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	DependsOn []string `json:"depends_on"`
}

// SourceExcerpt is one ranked source's text handed to synthesis.
type SourceExcerpt struct {
	SourceURL string  `json:"source_url"`
	Title     string  `json:"title"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
}

// Synthesis is the merged answer for one sub-question.
type Synthesis struct {
	// AnswerText is the coherent answer synthesized across sources.
	AnswerText string `json:"answer_text"`

	// SupportingSourceURLs lists the sources backing the answer.
	SupportingSourceURLs []string `json:"supporting_source_urls"`

	// ContradictingSourceURLs lists sources making mutually exclusive
	// factual claims about the sub-question.
	ContradictingSourceURLs []string `json:"contradicting_source_urls"`

	// Agreement is the model's estimate of how well the supporting
	// sources agree, 0.0-1.0.
	Agreement float64 `json:"agreement"`
}

// Engine abstracts the Generative AI API so tests can supply a mock.
// Per the Strategy pattern.
type Engine interface {
	// Classify tags a query with intent and domain labels and decides
	// whether clarification is needed before planning.
	Classify(ctx context.Context, query string) (Classification, error)

	// Decompose breaks a clarified query into 5-10 sub-questions with
	// dependency edges. maxQuestions bounds the decomposition.
	Decompose(ctx context.Context, query, domainTag string, maxQuestions int) ([]DecomposedQuestion, error)

	// Synthesize merges source excerpts into one answer for the
	// sub-question, citing supporters and flagging contradictions.
	Synthesize(ctx context.Context, question string, excerpts []SourceExcerpt) (Synthesis, error)
}

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeEngine calls the Claude Messages API with JSON-only prompts.
type ClaudeEngine struct {
	APIKey     string
	Model      string
	MaxRetries int
	Client     *http.Client
}

// NewClaudeEngine builds an engine from reasoning configuration.
func NewClaudeEngine(cfg types.ReasoningConfig, client *http.Client) *ClaudeEngine {
	return &ClaudeEngine{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		MaxRetries: cfg.MaxRetries,
		Client:     client,
	}
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Classify implements Engine.
func (e *ClaudeEngine) Classify(ctx context.Context, query string) (Classification, error) {
	prompt, err := renderClassifyPrompt(query)
	if err != nil {
		return Classification{}, fmt.Errorf("rendering prompt: %w", err)
	}
	var c Classification
	if err := e.complete(ctx, prompt, &c); err != nil {
		return Classification{}, err
	}
	return c, nil
}

// Decompose implements Engine.
func (e *ClaudeEngine) Decompose(ctx context.Context, query, domainTag string, maxQuestions int) ([]DecomposedQuestion, error) {
	prompt, err := renderDecomposePrompt(query, domainTag, maxQuestions)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	var resp struct {
		SubQuestions []DecomposedQuestion `json:"sub_questions"`
	}
	if err := e.complete(ctx, prompt, &resp); err != nil {
		return nil, err
	}
	return resp.SubQuestions, nil
}

// Synthesize implements Engine.
func (e *ClaudeEngine) Synthesize(ctx context.Context, question string, excerpts []SourceExcerpt) (Synthesis, error) {
	prompt, err := renderSynthesizePrompt(question, excerpts)
	if err != nil {
		return Synthesis{}, fmt.Errorf("rendering prompt: %w", err)
	}
	var s Synthesis
	if err := e.complete(ctx, prompt, &s); err != nil {
		return Synthesis{}, err
	}
	return s, nil
}

// complete sends one prompt to the Claude API and unmarshals the JSON
// text response into out. Retries on HTTP 429 via httputil.DoWithRetry.
func (e *ClaudeEngine) complete(ctx context.Context, prompt string, out any) error {
	reqBody := claudeRequest{
		Model:     e.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, e.MaxRetries)
	if err != nil {
		return fmt.Errorf("calling reasoning API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reasoning API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return fmt.Errorf("decoding reasoning response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		if err := json.Unmarshal([]byte(block.Text), out); err != nil {
			return fmt.Errorf("parsing reasoning response JSON: %w", err)
		}
		return nil
	}

	return fmt.Errorf("no text content in reasoning API response")
}
