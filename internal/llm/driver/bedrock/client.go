package bedrock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/chattwin/chattwin/internal/llm/driver"
)

// converseAPI is the slice of the Bedrock runtime client we use.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements the Bedrock driver via the Converse API.
type Client struct {
	api converseAPI
}

// NewClient builds a client against the given region using the default
// AWS credential chain.
func NewClient(ctx context.Context, region string) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if strings.TrimSpace(region) != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Client{api: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// NewClientWithAPI wires an explicit Converse implementation. Used by tests.
func NewClientWithAPI(api converseAPI) *Client {
	return &Client{api: api}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "bedrock"
}

// Complete sends a Converse request.
//
// Bedrock has no system role in the message list; a leading system
// message is folded into a "System:" prefixed user turn instead.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("bedrock client not configured")
	}

	input, err := buildConverseInput(req)
	if err != nil {
		return nil, err
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, mapConverseError(err)
	}

	return toDriverResponse(out)
}

// mapConverseError translates AWS API errors into ProviderError with an
// HTTP status the handler layer can act on.
func mapConverseError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("converse request failed: %w", err)
	}

	status := http.StatusBadGateway
	switch apiErr.ErrorCode() {
	case "ValidationException":
		status = http.StatusBadRequest
	case "AccessDeniedException":
		status = http.StatusForbidden
	case "ThrottlingException":
		status = http.StatusTooManyRequests
	}

	return &driver.ProviderError{
		Provider:   "bedrock",
		StatusCode: status,
		Message:    fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()),
	}
}
