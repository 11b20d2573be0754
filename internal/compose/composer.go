// Package compose assembles grounded prompts from retrieved snippets and
// produces the final answer, short-circuiting trivial messages first.
package compose

import (
	"context"
	"strings"

	"github.com/convomem/convomem/internal/apperr"
	"github.com/convomem/convomem/internal/embedding"
	"github.com/convomem/convomem/internal/intent"
	"github.com/convomem/convomem/internal/llm"
	"github.com/convomem/convomem/internal/model"
	"github.com/convomem/convomem/internal/retrieval"
)

// Mode selects the retrieval pipeline.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeVector Mode = "vector"
)

const (
	chatTemperature = 0.2
	chatMaxTokens   = 512
)

const systemPrompt = `Your name is CLARA, a warm and supportive assistant for older adults.
You help with language and cognitive tasks, especially word finding and word description. Offer simple, clear responses that help the user identify the right word or describe it when the word won't come.
Write clearly, in short sentences, with simple words. Be kind and encouraging.

Rules:
1) If useful context is provided, use it directly. If several snippets relate, connect them briefly.
2) If context is missing or not enough, do NOT say only "I don't know". Instead: (a) say you don't have it in memory yet, (b) ask exactly ONE gentle follow-up, and (c) invite the user to share a small detail so you can remember it next time.
3) If the user shares a personal fact, acknowledge it politely and offer to remember it. Keep confirmations short and never list many facts unless asked.
4) If the user only says 'ok/thanks/yes/no', reply with a very brief, polite line (no new topics).
5) Never invent details that aren't in the context or the user's latest message.
6) Keep responses to 1-5 sentences. Avoid long lists. Keep tone calm and positive.`

// Composer wires the intent classifier, retriever, and model providers into
// the single ask pipeline. It holds no per-conversation state.
type Composer struct {
	intents   *intent.Classifier
	retriever *retrieval.Retriever
	embedder  embedding.Embedder
	chat      llm.ChatModel
	opts      retrieval.Options
}

func New(intents *intent.Classifier, r *retrieval.Retriever, e embedding.Embedder, chat llm.ChatModel, opts retrieval.Options) *Composer {
	return &Composer{
		intents:   intents,
		retriever: r,
		embedder:  e,
		chat:      chat,
		opts:      opts,
	}
}

// Result is one answered question with the snippets that grounded it.
type Result struct {
	Answer   string                `json:"answer"`
	Snippets []model.RankedSnippet `json:"snippets"`
}

// Answer runs the short-circuit-or-retrieve-then-generate pipeline. Errors
// keep their stage tag; no partial answer is returned on failure.
func (c *Composer) Answer(ctx context.Context, userID, question string, mode Mode) (*Result, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, apperr.Validation("question is empty")
	}

	if kind, reply := c.intents.Classify(q); kind != intent.None {
		return &Result{Answer: reply, Snippets: []model.RankedSnippet{}}, nil
	}

	qvec, err := c.embedder.Embed(ctx, q)
	if err != nil {
		return nil, apperr.Embedding(err)
	}

	var snippets []model.RankedSnippet
	if mode == ModeHybrid {
		snippets, err = c.retriever.Retrieve(ctx, userID, q, qvec, c.opts)
	} else {
		snippets, err = c.retriever.RetrieveVector(ctx, userID, qvec, c.opts)
	}
	if err != nil {
		return nil, err
	}

	answer, err := c.chat.Complete(ctx, BuildPrompt(q, snippets), chatTemperature, chatMaxTokens)
	if err != nil {
		return nil, apperr.Generation(err)
	}

	return &Result{Answer: answer, Snippets: snippets}, nil
}

// Direct answers without retrieval: the plain-prompt path used by the
// no-retrieval control arm of live chat.
func (c *Composer) Direct(ctx context.Context, question string) (string, error) {
	msgs := []llm.Message{
		{Role: model.RoleSystem, Content: "Be concise and helpful."},
		{Role: model.RoleUser, Content: question},
	}
	answer, err := c.chat.Complete(ctx, msgs, chatTemperature, chatMaxTokens)
	if err != nil {
		return "", apperr.Generation(err)
	}
	return answer, nil
}

// TopK reports the configured result size, for callers that log it.
func (c *Composer) TopK() int { return c.opts.TopK }

// WithTopK returns a copy of the composer answering with k results. k <= 0
// keeps the configured size.
func (c *Composer) WithTopK(k int) *Composer {
	if k <= 0 || k == c.opts.TopK {
		return c
	}
	cp := *c
	cp.opts.TopK = k
	return &cp
}

// BuildPrompt assembles the two-message grounded prompt. The user message
// carries the question plus the snippet texts, or an explicit no-context
// marker so the model can trigger its ask-one-follow-up behavior.
func BuildPrompt(question string, snippets []model.RankedSnippet) []llm.Message {
	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}
	contextBlock := strings.TrimSpace(strings.Join(texts, "\n\n---\n\n"))
	if contextBlock == "" {
		contextBlock = "(no matching context)"
	}

	var user strings.Builder
	user.WriteString("User message:\n")
	user.WriteString(question)
	user.WriteString("\n\nContext from memory (may be empty):\n")
	user.WriteString(contextBlock)
	user.WriteString("\n\nYour task:\n")
	user.WriteString("- If the context contains the answer, give a short grounded reply using it.\n")
	user.WriteString("- If the context is empty or insufficient, ask exactly ONE gentle follow-up question, and invite the user to share a small detail you can remember.\n")
	user.WriteString("- Keep it to 1-3 short sentences total.")

	return []llm.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: user.String()},
	}
}
