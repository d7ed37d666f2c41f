package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/model/chat"
)

// ErrNotConfigured is returned when no generation credentials were provided.
var ErrNotConfigured = errors.New("generation service is not configured")

// Generator produces one assistant reply given a session history and the
// user message that triggered the request. The context carries the abort
// signal; implementations must honour it.
type Generator interface {
	Generate(ctx context.Context, history []chat.Message, prompt string, temperature float32) (string, error)
}

// Service adapts the configured chat model to the Generator interface.
type Service struct {
	chatModel model.ChatModel
}

// NewService builds the chat model from configuration.
func NewService(ctx context.Context, cfg config.GenerationConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &Service{chatModel: chatModel}, nil
}

// Generate maps the history snapshot onto model messages, with the in-flight
// user message always last, and runs one completion.
func (s *Service) Generate(ctx context.Context, history []chat.Message, prompt string, temperature float32) (string, error) {
	msgs := buildHistoryMessages(history)
	msgs = append(msgs, schema.UserMessage(prompt))

	response, err := s.chatModel.Generate(ctx, msgs, model.WithTemperature(temperature))
	if err != nil {
		return "", err
	}

	log.Printf("[generation] response received, history=%d length=%d", len(msgs)-1, len(response.Content))
	return response.Content, nil
}

// buildHistoryMessages converts stored turns to model messages, filtering
// out empty-text entries.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages)+1)
	for _, msg := range messages {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

// Disabled is the Generator wired when credentials are missing. Every send
// fails fast without touching the network.
type Disabled struct{}

func (Disabled) Generate(context.Context, []chat.Message, string, float32) (string, error) {
	return "", ErrNotConfigured
}
