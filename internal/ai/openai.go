package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIResponder struct {
	client openai.Client
	model  string
}

func newOpenAI(apiKey, model string) Responder {
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}
	return &openAIResponder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (r *openAIResponder) ModelName() string {
	return r.model
}

func (r *openAIResponder) Answer(ctx context.Context, question, snapshot string) (string, error) {
	input := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(buildPrompt(question, snapshot), responses.EasyInputMessageRoleUser),
	}
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(r.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		Instructions:    openai.String(systemPrompt),
		MaxOutputTokens: openai.Int(1024),
	}

	resp, err := r.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return text, nil
}
