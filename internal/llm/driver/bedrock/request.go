package bedrock

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

func buildConverseInput(req *driver.Request) (*bedrockruntime.ConverseInput, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	messages := make([]types.Message, 0, len(req.Messages)+1)
	for _, msg := range req.Messages {
		role := types.ConversationRoleUser
		text := msg.Content

		switch msg.Role {
		case driver.RoleAssistant:
			role = types.ConversationRoleAssistant
		case driver.RoleSystem:
			text = "System: " + msg.Content
		}

		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
	}

	if req.Temperature != nil || req.MaxTokens != nil || req.TopP != nil {
		cfg := &types.InferenceConfiguration{}
		if req.Temperature != nil {
			cfg.Temperature = aws.Float32(float32(*req.Temperature))
		}
		if req.MaxTokens != nil {
			cfg.MaxTokens = aws.Int32(int32(*req.MaxTokens))
		}
		if req.TopP != nil {
			cfg.TopP = aws.Float32(float32(*req.TopP))
		}
		input.InferenceConfig = cfg
	}

	return input, nil
}
