package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/involvex/warelay/internal/model"
)

// maxSuggestions is how many reply options we ask for and extract.
const maxSuggestions = 3

// historyWindow is how many recent messages feed the prompt.
const historyWindow = 10

// fallbackSuggestion is returned when the backend produced nothing usable.
const fallbackSuggestion = "I understand. How can I help you further?"

// SuggestionsKind tags how the backend's free text was interpreted.
type SuggestionsKind string

const (
	// KindStructured means discrete enumerated options were extracted.
	KindStructured SuggestionsKind = "structured"
	// KindUnstructured means the text had no option markers and the first
	// non-empty lines were taken instead.
	KindUnstructured SuggestionsKind = "unstructured"
	// KindFallback means nothing usable came back at all.
	KindFallback SuggestionsKind = "fallback"
)

// Suggestions is the parsed result of one generation round.
type Suggestions struct {
	Kind    SuggestionsKind `json:"kind"`
	Options []string        `json:"options"`
}

var optionPattern = regexp.MustCompile(`(?i)^Option \d+:\s*`)

// ParseSuggestions splits generated free text into discrete options.
// Lines matching the enumerated-option pattern win; without any, the
// first non-empty lines are used; an empty response yields the fallback.
func ParseSuggestions(text string) *Suggestions {
	var options []string
	for _, line := range strings.Split(text, "\n") {
		if optionPattern.MatchString(line) {
			if opt := strings.TrimSpace(optionPattern.ReplaceAllString(line, "")); opt != "" {
				options = append(options, opt)
			}
		}
	}
	if len(options) > 0 {
		return &Suggestions{Kind: KindStructured, Options: options}
	}

	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			options = append(options, trimmed)
			if len(options) == maxSuggestions {
				break
			}
		}
	}
	if len(options) > 0 {
		return &Suggestions{Kind: KindUnstructured, Options: options}
	}

	return &Suggestions{Kind: KindFallback, Options: []string{fallbackSuggestion}}
}

// SuggestRequest carries one generation round's inputs.
type SuggestRequest struct {
	Message  string
	Context  string
	Language string
	History  []model.MessageRecord
}

// BuildPrompt renders the suggestion prompt from the request.
func BuildPrompt(req SuggestRequest) string {
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var lines []string
	for _, msg := range history {
		speaker := "User"
		if msg.FromMe {
			speaker = "You"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, msg.Body))
	}

	var languageInstruction string
	if req.Language != "" && req.Language != "English" {
		languageInstruction = fmt.Sprintf(
			"\n\nIMPORTANT: Respond in %s. All response options should be in %s.",
			req.Language, req.Language)
	}

	return fmt.Sprintf(`You are a helpful WhatsApp AI assistant. Based on the chat history and the current message, provide %d different response options that are helpful, relevant, and conversational.

Chat History:
%s

Current Message: %s

Context: %s%s

Please provide %d different response options, each on a new line starting with "Option 1:", "Option 2:", "Option 3:". Make them varied in tone and approach but all helpful and appropriate for WhatsApp conversation.`,
		maxSuggestions, strings.Join(lines, "\n"), req.Message, req.Context, languageInstruction, maxSuggestions)
}

// Suggest runs one generation round: build the prompt, call the backend,
// parse the result.
func Suggest(ctx context.Context, g Generator, req SuggestRequest) (*Suggestions, error) {
	text, err := g.GenerateContent(ctx, BuildPrompt(req))
	if err != nil {
		return nil, err
	}
	return ParseSuggestions(text), nil
}
