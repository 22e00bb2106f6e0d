// Package extraction turns chunk text into graph records: concepts, typed
// relations, and worked examples, extracted in a single LLM call per chunk.
package extraction

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/didact-dev/didact/pkg/llm"
	"github.com/didact-dev/didact/pkg/store"
)

// ConceptSpec is one extracted concept as the LLM reports it.
type ConceptSpec struct {
	Title      string   `json:"title"`
	Definition string   `json:"definition"`
	Difficulty string   `json:"difficulty"`
	Aliases    []string `json:"aliases"`
}

// RelationSpec is one typed edge between two extracted concepts.
type RelationSpec struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relation_type"`
}

// ExampleSpec is one worked example tied to an extracted concept.
type ExampleSpec struct {
	Text        string `json:"text"`
	Concept     string `json:"concept"`
	ExampleType string `json:"example_type"`
}

// Extraction is the validated result of extracting one chunk. Relations and
// examples only ever reference titles present in Concepts.
type Extraction struct {
	Concepts  []ConceptSpec  `json:"concepts"`
	Relations []RelationSpec `json:"relations"`
	Examples  []ExampleSpec  `json:"examples"`
}

// extractionPrompt asks for concepts, relations, and examples in one JSON
// document per chunk.
const extractionPrompt = `You are an expert at extracting concepts from educational content. Respond with valid JSON only.

Extract the concepts, their relationships, and worked examples from this educational text.

For each CONCEPT, provide:
- title: The canonical name (e.g., "Gradient Descent")
- definition: A brief 1-2 sentence definition
- difficulty: "beginner", "intermediate", or "advanced"
- aliases: Alternative names as a list

For RELATIONS between extracted concepts, relation_type is one of:
- PREREQ_OF: the source must be understood before the target
- IS_A: the source is a kind of the target
- PART_OF: the source is a component of the target
- CONTRASTS_WITH: the concepts are alternatives or opposites
- SIBLING: the concepts sit at the same level

For EXAMPLES (worked examples, code snippets, derivations, case studies):
- text: A short description of the example (1-2 sentences)
- concept: The concept the example demonstrates (must match an extracted title exactly)
- example_type: one of "code", "math", "case_study", "walkthrough", "diagram"

IMPORTANT:
- Only extract concepts actually discussed in the text
- Examples must be concrete illustrations, not passing mentions
- Use exact concept titles in relations and examples

Return ONLY a JSON object of this shape:
{"concepts": [{"title": "...", "definition": "...", "difficulty": "...", "aliases": []}], "relations": [{"source": "...", "target": "...", "relation_type": "..."}], "examples": [{"text": "...", "concept": "...", "example_type": "..."}]}

If nothing is found: {"concepts": [], "relations": [], "examples": []}

Text:
---
%s
---`

// Extractor extracts concepts, relations, and examples from text using an LLM.
type Extractor struct {
	LLM llm.LLMClient
}

// NewExtractor creates a new extractor.
func NewExtractor(llmClient llm.LLMClient) *Extractor {
	return &Extractor{LLM: llmClient}
}

// Extract runs one extraction call over the given text and validates the
// result. Malformed records are dropped with a warning, never returned as
// errors: one bad relation must not discard a chunk's usable concepts.
func (e *Extractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return emptyExtraction(), nil
	}

	prompt := fmt.Sprintf(extractionPrompt, text)

	var raw Extraction
	if err := e.LLM.CompleteWithSchema(ctx, prompt, &raw); err != nil {
		return nil, fmt.Errorf("failed to extract concepts: %w", err)
	}

	return validateExtraction(&raw), nil
}

func emptyExtraction() *Extraction {
	return &Extraction{
		Concepts:  []ConceptSpec{},
		Relations: []RelationSpec{},
		Examples:  []ExampleSpec{},
	}
}

// validateExtraction normalizes concepts and drops relations and examples
// that do not resolve against the chunk's own concept titles. Resolution is
// case-insensitive; surviving records carry the canonical extracted title.
func validateExtraction(raw *Extraction) *Extraction {
	out := emptyExtraction()

	canonical := make(map[string]string, len(raw.Concepts))
	for _, c := range raw.Concepts {
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			log.Printf("didact: dropping extracted concept with empty title")
			continue
		}
		key := strings.ToLower(c.Title)
		if _, dup := canonical[key]; dup {
			continue
		}
		canonical[key] = c.Title

		c.Definition = strings.TrimSpace(c.Definition)
		c.Difficulty = store.NormalizeDifficulty(c.Difficulty)
		var aliases []string
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a != "" && !strings.EqualFold(a, c.Title) {
				aliases = append(aliases, a)
			}
		}
		c.Aliases = aliases
		out.Concepts = append(out.Concepts, c)
	}

	seenRel := make(map[string]struct{}, len(raw.Relations))
	for _, r := range raw.Relations {
		source, okSource := canonical[strings.ToLower(strings.TrimSpace(r.Source))]
		target, okTarget := canonical[strings.ToLower(strings.TrimSpace(r.Target))]
		if !okSource || !okTarget {
			log.Printf("didact: dropping relation %q -[%s]-> %q: endpoint not among extracted concepts", r.Source, r.RelationType, r.Target)
			continue
		}
		relType := strings.ToUpper(strings.TrimSpace(r.RelationType))
		if !store.IsConceptRelation(relType) {
			log.Printf("didact: dropping relation %q -[%s]-> %q: unknown relation type", source, r.RelationType, target)
			continue
		}
		if source == target {
			log.Printf("didact: dropping self-relation on %q", source)
			continue
		}
		key := source + "|" + relType + "|" + target
		if _, dup := seenRel[key]; dup {
			continue
		}
		seenRel[key] = struct{}{}
		out.Relations = append(out.Relations, RelationSpec{
			Source:       source,
			Target:       target,
			RelationType: relType,
		})
	}

	for _, ex := range raw.Examples {
		text := strings.TrimSpace(ex.Text)
		if text == "" {
			log.Printf("didact: dropping example with empty text")
			continue
		}
		concept, ok := canonical[strings.ToLower(strings.TrimSpace(ex.Concept))]
		if !ok {
			log.Printf("didact: dropping example for %q: concept not among extracted concepts", ex.Concept)
			continue
		}
		out.Examples = append(out.Examples, ExampleSpec{
			Text:        text,
			Concept:     concept,
			ExampleType: store.NormalizeExampleType(ex.ExampleType),
		})
	}

	return out
}
