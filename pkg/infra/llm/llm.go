package llm

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
)

//go:embed prompts/summary_system.md
var summarySystemPrompt string

//go:embed prompts/summary_user.md
var summaryUserTemplate string

//go:embed prompts/grading_system.md
var gradingSystemPrompt string

const (
	defaultTimeout      = 60 * time.Second
	defaultEmbeddingDim = 1536
)

// Client implements summary generation, groundedness grading, and embedding
// over one gollem LLM client. Every call carries a bounded timeout; expiry
// surfaces as an error to the caller, which treats it as a stage failure.
type Client struct {
	llm     gollem.LLMClient
	timeout time.Duration
	dim     int

	userTmpl *template.Template
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithEmbeddingDimension overrides the embedding vector size.
func WithEmbeddingDimension(dim int) Option {
	return func(c *Client) {
		c.dim = dim
	}
}

// New creates a Client over the given LLM backend.
func New(llmClient gollem.LLMClient, opts ...Option) (*Client, error) {
	tmpl, err := template.New("summary_user").Parse(summaryUserTemplate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse summary prompt template")
	}

	c := &Client{
		llm:      llmClient,
		timeout:  defaultTimeout,
		dim:      defaultEmbeddingDim,
		userTmpl: tmpl,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateSummary renders the prompt from the request and asks the model for
// a summary.
func (c *Client) GenerateSummary(ctx context.Context, req *interfaces.SummaryRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	data := map[string]any{
		"CommitMessages": req.CommitMessages,
		"CodeBlocks":     req.CodeBlocks,
		"Reflections":    req.Reflections,
		"Actor":          "",
		"Branch":         "",
		"PRState":        "",
		"Files":          []string{},
	}
	if req.Meta != nil {
		data["Actor"] = req.Meta.Actor
		data["Branch"] = req.Meta.Branch
		data["PRState"] = req.Meta.PRState
		data["Files"] = req.Meta.Files
	}
	if err := c.userTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render summary prompt")
	}

	session, err := c.llm.NewSession(ctx,
		gollem.WithSessionSystemPrompt(summarySystemPrompt),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buf.String()))
	if err != nil {
		return "", goerr.Wrap(err, "summary generation call failed")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("LLM returned empty summary response")
	}

	summary := strings.TrimSpace(strings.Join(resp.Texts, "\n"))
	ctxlog.From(ctx).Debug("generated summary", "length", len(summary))
	return summary, nil
}

// gradeVerdict is the JSON shape the grading prompt requests.
type gradeVerdict struct {
	IsGrounded bool `json:"is_grounded"`
}

// GradeSummary asks the model whether the summary is supported by the source
// event. The verdict is computed from scratch on every call; the caller never
// caches it across regenerations.
func (c *Client) GradeSummary(ctx context.Context, summary string, source *model.EventPayload) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return false, goerr.Wrap(err, "failed to marshal source payload")
	}

	session, err := c.llm.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionSystemPrompt(gradingSystemPrompt),
	)
	if err != nil {
		return false, goerr.Wrap(err, "failed to create LLM session")
	}

	prompt := "## Summary\n" + summary + "\n\n## Source event\n```json\n" + string(sourceJSON) + "\n```"
	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return false, goerr.Wrap(err, "grading call failed")
	}
	if len(resp.Texts) == 0 {
		return false, goerr.New("LLM returned empty grading response")
	}

	var verdict gradeVerdict
	if err := json.Unmarshal([]byte(resp.Texts[0]), &verdict); err != nil {
		return false, goerr.Wrap(err, "failed to parse grading verdict",
			goerr.V("response", resp.Texts[0]))
	}
	return verdict.IsGrounded, nil
}

// Embed converts text to a vector for similarity search.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vectors, err := c.llm.GenerateEmbedding(ctx, c.dim, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "embedding call failed")
	}
	if len(vectors) == 0 {
		return nil, goerr.New("LLM returned no embedding vector")
	}
	return vectors[0], nil
}
