package ai

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"

	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
)

var _ adapter.ResearchProvider = (*OpenAIResearch)(nil)

// OpenAIResearch runs long research requests as background Responses and
// polls them by response id.
type OpenAIResearch struct {
	client openai.Client
	tools  []map[string]string
}

func NewOpenAIResearch(apiKey, baseURL string) (*OpenAIResearch, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	return &OpenAIResearch{
		client: openai.NewClient(openAIOptions(apiKey, baseURL)...),
		// deep research models require at least one data source
		tools: []map[string]string{{"type": "web_search_preview"}},
	}, nil
}

func (r *OpenAIResearch) Name() string { return "openai" }

func (r *OpenAIResearch) StartResearch(ctx context.Context, mdl, input string) (string, error) {
	params := responses.ResponseNewParams{
		Model:      shared.ResponsesModel(mdl),
		Input:      responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
		Background: openai.Bool(true),
	}
	resp, err := r.client.Responses.New(ctx, params, option.WithJSONSet("tools", r.tools))
	if err != nil {
		return "", wrapErr(r.Name(), err)
	}
	return resp.ID, nil
}

func (r *OpenAIResearch) PollResearch(ctx context.Context, remoteID string) (adapter.ResearchState, error) {
	resp, err := r.client.Responses.Get(ctx, remoteID, responses.ResponseGetParams{})
	if err != nil {
		return adapter.ResearchState{}, wrapErr(r.Name(), err)
	}
	st := adapter.ResearchState{Status: mapResponseStatus(string(resp.Status))}
	switch st.Status {
	case model.JobStatusCompleted:
		st.Outputs = []model.ContentBlock{{Type: "text", Text: resp.OutputText()}}
	case model.JobStatusFailed:
		st.Reason = resp.Error.Message
		if st.Reason == "" {
			st.Reason = "openai research response " + string(resp.Status)
		}
	}
	return st, nil
}

func mapResponseStatus(s string) model.JobStatus {
	switch s {
	case "queued":
		return model.JobStatusPending
	case "completed":
		return model.JobStatusCompleted
	case "failed", "cancelled", "incomplete":
		return model.JobStatusFailed
	default:
		return model.JobStatusInProgress
	}
}
