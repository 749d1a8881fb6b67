package bedrock

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

func toDriverResponse(out *bedrockruntime.ConverseOutput) (*driver.Response, error) {
	if out == nil {
		return nil, fmt.Errorf("empty converse output")
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return nil, fmt.Errorf("unexpected converse output format")
	}

	text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return nil, fmt.Errorf("unexpected converse content format")
	}

	response := &driver.Response{
		Content:      text.Value,
		FinishReason: string(out.StopReason),
	}

	if out.Usage != nil {
		response.Usage = &driver.Usage{}
		if out.Usage.InputTokens != nil {
			response.Usage.PromptTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			response.Usage.CompletionTokens = int(*out.Usage.OutputTokens)
		}
		if out.Usage.TotalTokens != nil {
			response.Usage.TotalTokens = int(*out.Usage.TotalTokens)
		}
	}

	return response, nil
}
