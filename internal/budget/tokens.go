package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerTokenEstimate is the fallback ratio used when no tiktoken
// encoding can be resolved, matching token_utils.py's
// _CHARS_PER_TOKEN_ESTIMATE.
const charsPerTokenEstimate = 3

// fallbackEncoding is the encoding tiktoken-go falls back to when a
// model-specific one isn't registered, matching token_utils.py's
// tiktoken.get_encoding("cl100k_base") fallback.
const fallbackEncoding = "cl100k_base"

var (
	encodingCacheMu sync.Mutex
	encodingCache   = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(modelName string) *tiktoken.Tiktoken {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	key := modelName
	if enc, ok := encodingCache[key]; ok {
		return enc
	}

	var enc *tiktoken.Tiktoken
	var err error
	if modelName != "" {
		enc, err = tiktoken.EncodingForModel(modelName)
	}
	if enc == nil || err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		enc = nil
	}
	encodingCache[key] = enc
	return enc
}

// TokenCounter counts tokens for a named model, using tiktoken-go when
// an encoding can be resolved and a char-estimate fallback otherwise.
// Mirrors token_utils.py's TokenCounter.
type TokenCounter struct {
	ModelName string
}

// Count returns the token count of text, or the char-estimate fallback
// ceil(len(text)/charsPerTokenEstimate) when tiktoken can't resolve an
// encoding.
func (c TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	enc := encodingFor(c.ModelName)
	if enc == nil {
		return estimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	n := (len(text) + charsPerTokenEstimate - 1) / charsPerTokenEstimate
	if n < 1 {
		return 1
	}
	return n
}

// Chunk is a slice of text paired with its token count, mirroring the
// (str, int) tuples returned by token_utils.py's TokenCounter.split.
type Chunk struct {
	Text   string
	Tokens int
}

// Split breaks text into chunks of at most maxTokens tokens each. A
// non-positive maxTokens returns the whole text as a single chunk.
func (c TokenCounter) Split(text string, maxTokens int) []Chunk {
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		return []Chunk{{Text: text, Tokens: c.Count(text)}}
	}

	enc := encodingFor(c.ModelName)
	if enc == nil {
		maxChars := maxTokens * charsPerTokenEstimate
		if maxChars < 1 {
			maxChars = 1
		}
		var chunks []Chunk
		runes := []rune(text)
		for i := 0; i < len(runes); i += maxChars {
			end := min(i+maxChars, len(runes))
			chunk := string(runes[i:end])
			chunks = append(chunks, Chunk{Text: chunk, Tokens: c.Count(chunk)})
		}
		return chunks
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return []Chunk{{Text: text, Tokens: len(tokens)}}
	}
	var chunks []Chunk
	for i := 0; i < len(tokens); i += maxTokens {
		end := min(i+maxTokens, len(tokens))
		slice := tokens[i:end]
		chunks = append(chunks, Chunk{Text: enc.Decode(slice), Tokens: len(slice)})
	}
	return chunks
}
