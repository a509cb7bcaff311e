package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/interview-copilot/backend/internal/config"
	"github.com/interview-copilot/backend/internal/session"
)

const systemPrompt = `You are a live interview copilot. Given the conversation so far
and the latest question, suggest a concise first-person answer the candidate
could give. Be specific and draw on the attached documents when relevant.`

// OpenAIResponder generates contextual responses through the OpenAI
// chat completion API (or any compatible endpoint via base_url).
type OpenAIResponder struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewOpenAIResponder(cfg config.LLMConfig, log *zap.Logger) *OpenAIResponder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		log:    log,
	}
}

func (r *OpenAIResponder) Respond(ctx context.Context, sess *session.Session, text string) (*ContextualResponse, error) {
	start := time.Now()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, doc := range sess.Documents {
		if doc.Text == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf("Document %q (%s):\n%s", doc.Name, doc.Kind, doc.Text),
		})
	}
	// Recent turns only; the full history can outgrow the context window.
	turns := sess.Conversation
	if len(turns) > 20 {
		turns = turns[len(turns)-20:]
	}
	for _, turn := range turns {
		role := openai.ChatMessageRoleUser
		if turn.Speaker == "candidate" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	docNames := make([]string, 0, len(sess.Documents))
	for _, d := range sess.Documents {
		docNames = append(docNames, d.Name)
	}

	return &ContextualResponse{
		Content:           content,
		Tone:              "professional",
		Confidence:        clampConfidence(0.9),
		RelevantDocuments: docNames,
		SupportingPoints:  []string{},
		FollowUpQuestions: []string{},
		Metadata: ResponseMetadata{
			CallType:     string(sess.CallType),
			ResponseType: "llm",
			Priority:     "normal",
			TimingMs:     time.Since(start).Milliseconds(),
			Length:       len(content),
		},
	}, nil
}

// Probe verifies the provider is reachable and the key is accepted.
func (r *OpenAIResponder) Probe(ctx context.Context) error {
	if _, err := r.client.ListModels(ctx); err != nil {
		return fmt.Errorf("llm connection test: %w", err)
	}
	return nil
}
