package ollama

import (
	"fmt"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

type chatResponse struct {
	Message         *responseMessage `json:"message"`
	Done            bool             `json:"done"`
	DoneReason      string           `json:"done_reason,omitempty"`
	PromptEvalCount int              `json:"prompt_eval_count,omitempty"`
	EvalCount       int              `json:"eval_count,omitempty"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toDriverResponse(resp *chatResponse) (*driver.Response, error) {
	if resp == nil || resp.Message == nil {
		return nil, fmt.Errorf("empty response message")
	}

	response := &driver.Response{
		Content:      resp.Message.Content,
		FinishReason: resp.DoneReason,
	}

	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		response.Usage = &driver.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return response, nil
}
