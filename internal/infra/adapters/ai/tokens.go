package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"research-gateway/internal/domain/ports/adapter"
)

const fallbackEncoding = "cl100k_base"

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encCache[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// unknown or non-OpenAI model: cl100k is a close enough estimate
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	encCache[model] = enc
	return enc, nil
}

// countMessageTokens estimates prompt tokens the way OpenAI bills chat input:
// 3 framing tokens per message plus 3 for reply priming. When no encoding can
// be loaded it degrades to one token per four bytes.
func countMessageTokens(model string, messages []adapter.Message) int {
	enc, err := encodingFor(model)
	total := 3
	for _, m := range messages {
		total += 3
		if err != nil {
			total += (len(m.Role) + len(m.Content) + 3) / 4
			continue
		}
		total += len(enc.Encode(m.Role, nil, nil)) + len(enc.Encode(m.Content, nil, nil))
	}
	return total
}

// splitSystem separates system instructions from the conversation turns.
func splitSystem(messages []adapter.Message) (system string, rest []adapter.Message) {
	rest = make([]adapter.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
