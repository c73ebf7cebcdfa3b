package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultBedrockModel is the Titan text embedding model (1536 dimensions).
const DefaultBedrockModel = "amazon.titan-embed-text-v1"

type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider calls a Titan embedding model through the Bedrock runtime API.
type BedrockProvider struct {
	client  modelInvoker
	modelID string
	dim     int
	timeout time.Duration
}

// NewBedrockProvider builds a provider from the default AWS credential chain.
func NewBedrockProvider(ctx context.Context, region, modelID string, dim int, timeout time.Duration) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return newBedrockProvider(bedrockruntime.NewFromConfig(cfg), modelID, dim, timeout), nil
}

func newBedrockProvider(client modelInvoker, modelID string, dim int, timeout time.Duration) *BedrockProvider {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &BedrockProvider{client: client, modelID: modelID, dim: dim, timeout: timeout}
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (p *BedrockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrUnavailable, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invoking %s: %v", ErrUnavailable, p.modelID, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if err := checkVector(resp.Embedding, p.dim); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (p *BedrockProvider) Dimension() int { return p.dim }

func (p *BedrockProvider) Model() string { return p.modelID }
