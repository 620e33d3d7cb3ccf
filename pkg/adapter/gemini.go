package adapter

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"google.golang.org/genai"
)

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	CreateChat(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content) (*genai.Chat, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(modelName string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = modelName
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.T(model.ErrTagProvider))
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content",
			goerr.T(model.ErrTagProvider), goerr.V("retriable", isRetriable(err)))
	}
	return resp, nil
}

// isRetriable classifies a Gemini API failure: throttling and server-side
// errors may succeed on retry, client errors will not
func isRetriable(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		// Transport-level failures (timeouts, connection resets) are retriable
		return true
	}
	return apiErr.Code == 429 || apiErr.Code >= 500
}

// IsRetriableForTest is a test helper that exposes isRetriable
func IsRetriableForTest(err error) bool {
	return isRetriable(err)
}

func (g *GeminiClient) CreateChat(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content) (*genai.Chat, error) {
	chat, err := g.client.Chats.Create(ctx, g.generativeModel, config, history)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create new gemini chat",
			goerr.T(model.ErrTagProvider), goerr.V("retriable", isRetriable(err)))
	}

	return chat, nil
}
