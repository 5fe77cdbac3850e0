package transport

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
)

const defaultSystemPrompt = "Sei l'assistente di una chat web. Rispondi in modo breve e cordiale, nella lingua dell'utente. " +
	"Se vuoi inviare più messaggi separali con una riga vuota."

// AgentConfig tunes AgentClient.
type AgentConfig struct {
	SystemPrompt string
	// HistoryLimit is the number of past exchanges kept per sender.
	HistoryLimit int
}

// AgentClient answers through an LLM chain instead of a Rasa webhook.
// Like the Rasa tracker, it keeps a short conversation history per sender.
type AgentClient struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	historyLimit int

	mu      sync.Mutex
	history map[string][]*schema.Message
}

// NewAgentClient compiles the prompt → model chain.
func NewAgentClient(ctx context.Context, chatModel model.BaseChatModel, cfg AgentConfig) (*AgentClient, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile agent chain")
	}

	systemPrompt := strings.TrimSpace(cfg.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}

	return &AgentClient{
		chain:        runnable,
		systemPrompt: systemPrompt,
		historyLimit: historyLimit,
		history:      make(map[string][]*schema.Message),
	}, nil
}

// Send runs the chain once and splits the answer into fragments.
func (c *AgentClient) Send(ctx context.Context, senderID, text string) ([]chat.Fragment, error) {
	input := map[string]any{
		"system":  c.systemPrompt,
		"history": c.historyFor(senderID),
		"query":   text,
	}

	response, err := c.chain.Invoke(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "run agent chain")
	}
	if response == nil {
		return nil, errors.Wrap(ErrMalformed, "agent returned no message")
	}

	c.remember(senderID, schema.UserMessage(text), schema.AssistantMessage(response.Content, nil))

	fragments := SplitFragments(senderID, response.Content)
	log.Debug().
		Str("component", "transport").
		Str("sender", senderID).
		Int("fragments", len(fragments)).
		Msg("agent answered")
	return fragments, nil
}

func (c *AgentClient) historyFor(senderID string) []*schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*schema.Message(nil), c.history[senderID]...)
}

func (c *AgentClient) remember(senderID string, turn ...*schema.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.history[senderID], turn...)
	if limit := c.historyLimit * 2; len(history) > limit {
		history = history[len(history)-limit:]
	}
	c.history[senderID] = history
}

// SplitFragments cuts a model answer into reply fragments on blank lines.
func SplitFragments(recipientID, content string) []chat.Fragment {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	parts := strings.Split(content, "\n\n")

	fragments := make([]chat.Fragment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fragments = append(fragments, chat.Fragment{RecipientID: recipientID, Text: part})
	}
	return fragments
}
