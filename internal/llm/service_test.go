package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

type fakeDriver struct {
	name    string
	lastReq *driver.Request
	content string
	err     error
}

func (f *fakeDriver) Complete(_ context.Context, req *driver.Request) (*driver.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &driver.Response{Content: f.content, FinishReason: "stop"}, nil
}

func (f *fakeDriver) Name() string { return f.name }

func staticPrompt(text string) PromptFunc {
	return func() (string, error) { return text, nil }
}

func testConfig() Config {
	return Config{
		Name:         "openai",
		HistoryLimit: 20,
		MaxTokens:    2000,
		Temperature:  0.7,
		Bedrock:      BedrockConfig{TopP: 0.9},
	}
}

func TestRespondBuildsSystemHistoryUserOrder(t *testing.T) {
	drv := &fakeDriver{name: "openai", content: "reply"}
	svc := NewServiceWithDriver(testConfig(), drv, staticPrompt("persona"))

	history := []driver.Message{
		{Role: driver.RoleUser, Content: "earlier question"},
		{Role: driver.RoleAssistant, Content: "earlier answer"},
	}

	out, err := svc.Respond(context.Background(), history, "new question")
	require.NoError(t, err)
	require.Equal(t, "reply", out)

	require.Len(t, drv.lastReq.Messages, 4)
	require.Equal(t, driver.RoleSystem, drv.lastReq.Messages[0].Role)
	require.Equal(t, "persona", drv.lastReq.Messages[0].Content)
	require.Equal(t, "earlier question", drv.lastReq.Messages[1].Content)
	require.Equal(t, driver.RoleUser, drv.lastReq.Messages[3].Role)
	require.Equal(t, "new question", drv.lastReq.Messages[3].Content)

	require.NotNil(t, drv.lastReq.Temperature)
	require.InDelta(t, 0.7, *drv.lastReq.Temperature, 1e-9)
	require.NotNil(t, drv.lastReq.MaxTokens)
	require.Equal(t, 2000, *drv.lastReq.MaxTokens)
	require.Nil(t, drv.lastReq.TopP)
}

func TestRespondTruncatesHistoryOldestFirst(t *testing.T) {
	drv := &fakeDriver{name: "openai", content: "reply"}
	svc := NewServiceWithDriver(testConfig(), drv, staticPrompt("persona"))

	history := make([]driver.Message, 0, 30)
	for i := 0; i < 30; i++ {
		history = append(history, driver.Message{Role: driver.RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	_, err := svc.Respond(context.Background(), history, "latest")
	require.NoError(t, err)

	// system + 20 retained turns + new user message
	require.Len(t, drv.lastReq.Messages, 22)
	require.Equal(t, "msg-10", drv.lastReq.Messages[1].Content)
	require.Equal(t, "msg-29", drv.lastReq.Messages[20].Content)
}

func TestRespondSetsTopPForBedrock(t *testing.T) {
	cfg := testConfig()
	cfg.Name = "bedrock"
	drv := &fakeDriver{name: "bedrock", content: "reply"}
	svc := NewServiceWithDriver(cfg, drv, staticPrompt("persona"))

	_, err := svc.Respond(context.Background(), nil, "hi")
	require.NoError(t, err)
	require.NotNil(t, drv.lastReq.TopP)
	require.InDelta(t, 0.9, *drv.lastReq.TopP, 1e-9)
}

func TestRespondPropagatesDriverError(t *testing.T) {
	drv := &fakeDriver{name: "openai", err: &driver.ProviderError{Provider: "openai", StatusCode: 500, Message: "boom"}}
	svc := NewServiceWithDriver(testConfig(), drv, staticPrompt("persona"))

	_, err := svc.Respond(context.Background(), nil, "hi")
	require.Error(t, err)

	var provErr *driver.ProviderError
	require.ErrorAs(t, err, &provErr)
}

func TestRespondRejectsEmptyProviderContent(t *testing.T) {
	drv := &fakeDriver{name: "openai", content: "   "}
	svc := NewServiceWithDriver(testConfig(), drv, staticPrompt("persona"))

	_, err := svc.Respond(context.Background(), nil, "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty content")
}

func TestNewServiceRejectsUnknownProvider(t *testing.T) {
	_, err := NewService(context.Background(), Config{Name: "watson"}, staticPrompt("persona"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown provider")
}
