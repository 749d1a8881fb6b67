package bedrock

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

type fakeConverse struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			},
		},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(14),
		},
	}
}

func TestCompleteFoldsSystemIntoUserTurn(t *testing.T) {
	fake := &fakeConverse{output: textOutput("hello")}
	client := NewClientWithAPI(fake)

	temp := 0.7
	topP := 0.9
	maxTokens := 2000
	resp, err := client.Complete(context.Background(), &driver.Request{
		Model: "eu.amazon.nova-lite-v1:0",
		Messages: []driver.Message{
			{Role: driver.RoleSystem, Content: "be nice"},
			{Role: driver.RoleUser, Content: "hi"},
		},
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Content)
	require.Equal(t, "end_turn", resp.FinishReason)
	require.Equal(t, 14, resp.Usage.TotalTokens)

	require.NotNil(t, fake.lastInput)
	require.Equal(t, "eu.amazon.nova-lite-v1:0", aws.ToString(fake.lastInput.ModelId))
	require.Len(t, fake.lastInput.Messages, 2)

	first := fake.lastInput.Messages[0]
	require.Equal(t, types.ConversationRoleUser, first.Role)
	block, ok := first.Content[0].(*types.ContentBlockMemberText)
	require.True(t, ok)
	require.Equal(t, "System: be nice", block.Value)

	require.NotNil(t, fake.lastInput.InferenceConfig)
	require.Equal(t, float32(0.9), aws.ToFloat32(fake.lastInput.InferenceConfig.TopP))
	require.Equal(t, int32(2000), aws.ToInt32(fake.lastInput.InferenceConfig.MaxTokens))
}

func TestCompleteMapsValidationException(t *testing.T) {
	fake := &fakeConverse{err: &smithy.GenericAPIError{Code: "ValidationException", Message: "bad input"}}
	client := NewClientWithAPI(fake)

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "test",
		Messages: []driver.Message{{Role: driver.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var provErr *driver.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, "bedrock", provErr.Provider)
	require.Equal(t, http.StatusBadRequest, provErr.StatusCode)
}

func TestCompleteMapsAccessDenied(t *testing.T) {
	fake := &fakeConverse{err: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}}
	client := NewClientWithAPI(fake)

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "test",
		Messages: []driver.Message{{Role: driver.RoleUser, Content: "hi"}},
	})

	var provErr *driver.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, http.StatusForbidden, provErr.StatusCode)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	client := NewClientWithAPI(&fakeConverse{})
	_, err := client.Complete(context.Background(), &driver.Request{Model: "test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "messages")
}
