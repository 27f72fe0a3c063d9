package indexer

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates the char-to-token ratio of typical embedding
// tokenizers. Chunk budgets are enforced in characters against this ratio.
const charsPerToken = 4

// fallbackChunkChars caps the single chunk produced when sentence splitting
// yields nothing usable.
const fallbackChunkChars = 2000

// Chunk is one contiguous slice of a document's text.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

// SplitChunks splits normalized text into chunks of at most maxTokens
// (approximate). Sentences are accumulated greedily; a sentence that alone
// exceeds the budget is hard-split at the budget boundary. The split is
// deterministic: identical input always yields identical chunks, which the
// content-hash deduplication depends on. Non-empty input always yields at
// least one chunk.
func SplitChunks(text string, maxTokens int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = 1
	}
	budget := maxTokens * charsPerToken

	var chunks []Chunk
	var sb strings.Builder

	flush := func() {
		chunkText := strings.TrimSpace(sb.String())
		sb.Reset()
		if chunkText == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       chunkText,
			TokenCount: estimateTokens(chunkText),
		})
	}

	for _, sentence := range splitSentences(text) {
		for len(sentence) > budget {
			flush()
			cut := cutAtRuneBoundary(sentence, budget)
			sb.WriteString(sentence[:cut])
			flush()
			sentence = sentence[cut:]
		}
		if sb.Len() > 0 && sb.Len()+1+len(sentence) > budget {
			flush()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(sentence)
	}
	flush()

	if len(chunks) == 0 {
		fallback := text
		if len(fallback) > fallbackChunkChars {
			fallback = fallback[:cutAtRuneBoundary(fallback, fallbackChunkChars)]
		}
		chunks = append(chunks, Chunk{
			Index:      0,
			Text:       fallback,
			TokenCount: estimateTokens(fallback),
		})
	}

	return chunks
}

// splitSentences breaks text into sentence-ish units. Paragraph breaks
// always split; within a paragraph, a terminator (. ! ?) followed by
// whitespace splits. Abbreviation handling is intentionally absent: an
// occasional over-split only makes chunks slightly smaller.
func splitSentences(text string) []string {
	var sentences []string

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		start := 0
		for i := 0; i < len(paragraph); i++ {
			c := paragraph[i]
			if c != '.' && c != '!' && c != '?' {
				continue
			}
			if i+1 < len(paragraph) && !isSpaceByte(paragraph[i+1]) {
				continue
			}
			if s := strings.TrimSpace(paragraph[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
		if s := strings.TrimSpace(paragraph[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// cutAtRuneBoundary returns the largest index <= n at which s can be sliced
// without splitting a multi-byte rune.
func cutAtRuneBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// estimateTokens approximates the token count of a chunk.
func estimateTokens(text string) int {
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}
