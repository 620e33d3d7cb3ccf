package memory

import (
	"context"
	_ "embed"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/extract.md
var extractPromptRaw string

// extractPayload is the user-turn input handed to the extraction model
type extractPayload struct {
	Chunk                  string `json:"chunk"`
	ExistingSessionSummary string `json:"existing_session_summary"`
}

// extract asks the model for structured facts about the evidence text. The
// response must be a single JSON object matching the extraction contract; no
// retry is attempted here.
func (uc *UseCase) extract(ctx context.Context, evidenceText, existingSummary string) (*model.Extraction, error) {
	payload, err := json.Marshal(extractPayload{
		Chunk:                  evidenceText,
		ExistingSessionSummary: existingSummary,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal extraction payload")
	}

	userText := "Here is the latest dialogue chunk and the previous session summary " +
		"(if any). Respond with a single JSON object only.\n\n" + string(payload)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(extractPromptRaw, ""),
		ResponseMIMEType:  "application/json",
	}

	resp, err := uc.gemini.GenerateContent(ctx,
		[]*genai.Content{genai.NewContentFromText(userText, genai.RoleUser)}, config)
	if err != nil {
		return nil, err
	}

	raw := responseText(resp)
	if raw == "" {
		return nil, goerr.New("extraction model returned an empty response",
			goerr.T(model.ErrTagProvider))
	}

	return model.DecodeExtraction([]byte(raw))
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	return text
}

// ExtractForTest exposes extract for testing
func (uc *UseCase) ExtractForTest(ctx context.Context, evidenceText, existingSummary string) (*model.Extraction, error) {
	return uc.extract(ctx, evidenceText, existingSummary)
}
