package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Summarizer turns adherence numbers into one readable sentence. When
// no API key is configured it falls back to a deterministic rendering.
type Summarizer struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewSummarizer returns a Summarizer; with an empty apiKey only the
// fallback path is active.
func NewSummarizer(apiKey string) *Summarizer {
	if apiKey == "" {
		return &Summarizer{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Summarizer{
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

// SummarizeAdherence describes the stats in one short sentence.
func (s *Summarizer) SummarizeAdherence(ctx context.Context, stats Stats) (string, error) {
	if s.client == nil {
		return fallbackSummary(stats), nil
	}

	req := openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String("You summarise medicine adherence numbers for a patient in one short, encouraging sentence."),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(fmt.Sprintf(
							"This week the patient took %d doses, missed %d, and has %d still pending out of %d scheduled.",
							stats.Taken, stats.Missed, stats.Pending, stats.Total)),
					},
				},
			},
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(60),
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := s.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func fallbackSummary(stats Stats) string {
	if stats.Total == 0 {
		return "No doses scheduled yet."
	}
	return fmt.Sprintf("Taken %d of %d doses, %d missed, %d pending.",
		stats.Taken, stats.Total, stats.Missed, stats.Pending)
}
