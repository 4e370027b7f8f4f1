package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
)

const defaultCaptionCount = 3

type CaptionService interface {
	Generate(ctx context.Context, req transfer.CaptionRequest) ([]string, error)
}

type captionService struct {
	gen TextGenerator
}

func NewCaptionService(gen TextGenerator) CaptionService {
	return &captionService{gen: gen}
}

func (s *captionService) Generate(ctx context.Context, req transfer.CaptionRequest) ([]string, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, apperror.Validation("topic is required")
	}
	count := req.Count
	if count <= 0 {
		count = defaultCaptionCount
	}
	tone := req.Tone
	if tone == "" {
		tone = "playful"
	}

	prompt := fmt.Sprintf(
		"Write %d short %s captions for a subscription content post about: %s.\n"+
			"Return one caption per line with no numbering and no hashtags.",
		count, tone, topic)

	out, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	captions := splitCompletionLines(out)
	if len(captions) > count {
		captions = captions[:count]
	}
	if len(captions) == 0 {
		return nil, apperror.Upstream("text generation returned no captions")
	}
	return captions, nil
}

// splitCompletionLines drops blank lines and any list markers the model adds anyway.
func splitCompletionLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeftFunc(line, func(r rune) bool {
			return unicode.IsDigit(r) || r == '.' || r == ')' || r == '-' || r == '*' || r == '•' || unicode.IsSpace(r)
		})
		line = strings.Trim(line, `"`)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
