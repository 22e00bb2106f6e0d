// Package chunker splits source documents into overlapping, boundary-aware
// chunks sized for LLM extraction.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Default chunking bounds.
const (
	DefaultMaxTokens = 512
	DefaultOverlap   = 50
)

// Chunk is one extraction window over a source document.
type Chunk struct {
	ID         string
	Text       string
	Index      int
	TokenCount int
}

// Chunker splits text into overlapping chunks. Breaks happen on paragraph
// and sentence boundaries; a single sentence longer than MaxTokens is split
// on words as a last resort, so no chunk ever exceeds MaxTokens.
type Chunker struct {
	MaxTokens int // token budget per chunk (default: 512)
	Overlap   int // tokens carried between consecutive chunks (default: 50)
}

// Chunk splits the input text. Chunk IDs are deterministic for identical
// input, so re-chunking an unchanged document yields identical IDs.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	overlap := c.Overlap
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxTokens {
		overlap = maxTokens / 2
	}

	segments := segment(text, maxTokens)

	var chunks []Chunk
	var window []string
	tokens := 0

	emit := func() {
		joined := strings.Join(window, " ")
		chunks = append(chunks, Chunk{
			ID:         chunkID(joined, len(chunks)),
			Text:       joined,
			Index:      len(chunks),
			TokenCount: tokens,
		})
	}

	for _, seg := range segments {
		n := tokenCount(seg)
		if len(window) > 0 && tokens+n > maxTokens {
			emit()
			// Carry trailing segments as overlap, trimmed so the carried
			// tokens plus the incoming segment still fit the budget.
			carry := overlap
			if room := maxTokens - n; room < carry {
				carry = room
			}
			window = tailByTokens(window, carry)
			tokens = 0
			for _, s := range window {
				tokens += tokenCount(s)
			}
		}
		window = append(window, seg)
		tokens += n
	}
	if len(window) > 0 {
		emit()
	}

	return chunks
}

// segment cuts text into sentence-sized pieces: paragraphs first, sentences
// within each paragraph, and word windows for sentences that alone exceed
// the token budget.
func segment(text string, maxTokens int) []string {
	var segments []string
	for _, para := range splitParagraphs(text) {
		for _, sentence := range splitSentences(para) {
			if tokenCount(sentence) <= maxTokens {
				segments = append(segments, sentence)
				continue
			}
			words := strings.Fields(sentence)
			for start := 0; start < len(words); start += maxTokens {
				end := start + maxTokens
				if end > len(words) {
					end = len(words)
				}
				segments = append(segments, strings.Join(words[start:end], " "))
			}
		}
	}
	return segments
}

// splitParagraphs breaks text on blank lines.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paras = append(paras, block)
		}
	}
	return paras
}

// splitSentences breaks a paragraph on sentence terminators and line
// breaks. Line breaks count so headings and list items in course notes
// become their own segments even without terminal punctuation.
func splitSentences(para string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(para)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// tokenCount approximates model tokens with a whitespace word count.
func tokenCount(text string) int {
	return len(strings.Fields(text))
}

// tailByTokens returns the longest suffix of segments whose total token
// count fits the budget; possibly empty.
func tailByTokens(segments []string, budget int) []string {
	total := 0
	start := len(segments)
	for i := len(segments) - 1; i >= 0; i-- {
		n := tokenCount(segments[i])
		if total+n > budget {
			break
		}
		total += n
		start = i
	}
	return segments[start:]
}

func chunkID(text string, index int) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s-%d", hex.EncodeToString(hash[:8]), index)
}
