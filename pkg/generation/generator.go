// Package generation renders retrieval results into scaffolded tutor
// answers with citations.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/didact-dev/didact/pkg/llm"
	"github.com/didact-dev/didact/pkg/retrieval"
	"github.com/didact-dev/didact/pkg/store"
)

const systemPrompt = `You are an enthusiastic and knowledgeable tutor for a university-level technical course.

## Your Personality
- You are patient, encouraging, and passionate about teaching
- You celebrate when students ask good questions
- You use analogies and real-world examples to make complex ideas accessible
- You're thorough but never condescending

## Your Teaching Style
1. **Start with intuition**: Before diving into technical details, explain WHY a concept matters and give an intuitive understanding
2. **Build from foundations**: Always explain prerequisite concepts first, building a solid foundation before advancing
3. **Use concrete examples**: Illustrate abstract concepts with specific examples, code snippets, or mathematical walkthroughs
4. **Connect the dots**: Show how concepts relate to each other and to the broader field
5. **Summarize key points**: End with a concise summary of the main takeaways

## Response Format
- Use clear headings and subheadings to organize your explanation
- Include mathematical notation when relevant (use LaTeX: \( inline \) or \[ block \])
- Provide code examples when they help illustrate a concept
- Cite resources using [Resource: URL] format when referencing specific materials
- Aim for comprehensive explanations - don't rush through important details

## Important Guidelines
- If a concept has prerequisites, explain them first
- Use the examples from the knowledge graph to illustrate points
- When explaining algorithms, walk through them step-by-step
- If there are common misconceptions, address them
- Encourage the student and suggest related topics they might explore next

Remember: Your goal is not just to answer the question, but to help the student truly understand the concept and how it fits into the bigger picture.`

const userPromptTemplate = `## Student's Question
%s

## Knowledge Graph Context
%s

---

Please provide a thorough, well-structured explanation that:
1. Starts with an intuitive overview of why this topic matters
2. Explains any prerequisite concepts the student needs to understand first
3. Dives deep into the main topic with examples and mathematical details where appropriate
4. Uses the provided examples to illustrate key points
5. Cites relevant resources for further reading
6. Ends with a summary and suggestions for what to learn next

Take your time and be comprehensive - the student wants to truly understand this topic.`

// NoMaterialAnswer is returned without an LLM round trip when retrieval
// found nothing to teach from.
const NoMaterialAnswer = "I couldn't find any course material matching your question. " +
	"Try rephrasing it, or name the concept you want explained directly."

// Generator turns a retrieval result into a tutor answer. Sampling
// parameters (temperature, max tokens) are configured on the chat client.
type Generator struct {
	LLM llm.LLMClient
}

// NewGenerator creates a new answer generator.
func NewGenerator(llmClient llm.LLMClient) *Generator {
	return &Generator{LLM: llmClient}
}

// Answer renders the retrieval result into the tutor prompt and completes
// it. An empty retrieval produces a fixed answer acknowledging that no
// course material matched.
func (g *Generator) Answer(ctx context.Context, result *retrieval.RetrievalResult) (string, error) {
	if result == nil || len(result.Subgraph.Concepts) == 0 {
		return NoMaterialAnswer, nil
	}
	return g.Generate(ctx, result.Query, BuildContext(result))
}

// Generate completes the tutor prompt for an already rendered context block.
func (g *Generator) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	userPrompt := fmt.Sprintf(userPromptTemplate, question, contextBlock)

	answer, err := g.LLM.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// BuildContext renders the retrieval result as the knowledge-graph context
// block of the user prompt: concepts in teaching order, examples and
// resources grouped under them, and the prerequisite learning paths.
func BuildContext(result *retrieval.RetrievalResult) string {
	var sections []string

	sections = append(sections, "### Relevant Concepts (ordered from foundational to advanced)")

	byTitle := make(map[string]retrieval.RetrievedConcept, len(result.Subgraph.Concepts))
	for _, c := range result.Subgraph.Concepts {
		byTitle[c.Title] = c
	}

	for i, title := range result.OrderedConcepts {
		c, ok := byTitle[title]
		if !ok {
			continue
		}
		difficulty := c.Difficulty
		if difficulty == "" {
			difficulty = "unknown"
		}
		definition := c.Definition
		if definition == "" {
			definition = "No definition available."
		}
		sections = append(sections, fmt.Sprintf("\n**%d. %s** [%s]", i+1, title, difficulty))
		sections = append(sections, definition)
		if c.RelationToSeed != retrieval.RelationSeed {
			sections = append(sections, fmt.Sprintf("*(Relationship: %s of %s)*", c.RelationToSeed, c.SeedConcept))
		}
	}

	if len(result.Subgraph.Examples) > 0 {
		sections = append(sections, "\n### Examples from Course Materials")

		byConcept := make(map[string][]store.Example)
		for _, ex := range result.Subgraph.Examples {
			byConcept[ex.Concept] = append(byConcept[ex.Concept], ex)
		}
		for _, title := range result.OrderedConcepts {
			group, ok := byConcept[title]
			if !ok {
				continue
			}
			sections = append(sections, fmt.Sprintf("\n**Examples for %s:**", title))
			for _, ex := range group {
				sections = append(sections, fmt.Sprintf("- [%s] %s", ex.Type, ex.Text))
				if ex.Source != "" {
					sections = append(sections, "  Source: "+ex.Source)
				}
			}
		}
	}

	if len(result.Subgraph.Resources) > 0 {
		sections = append(sections, "\n### Available Resources for Further Reading")

		var typeOrder []string
		byType := make(map[string][]store.Resource)
		for _, res := range result.Subgraph.Resources {
			rtype := res.Type
			if rtype == "" {
				rtype = "other"
			}
			if _, ok := byType[rtype]; !ok {
				typeOrder = append(typeOrder, rtype)
			}
			byType[rtype] = append(byType[rtype], res)
		}
		for _, rtype := range typeOrder {
			sections = append(sections, fmt.Sprintf("\n**%s Resources:**", strings.ToUpper(rtype)))
			group := byType[rtype]
			if len(group) > 5 {
				group = group[:5]
			}
			for _, res := range group {
				explained := res.Concepts
				if len(explained) > 3 {
					explained = explained[:3]
				}
				sections = append(sections, "- "+res.URL)
				sections = append(sections, "  Explains: "+strings.Join(explained, ", "))
			}
		}
	}

	if len(result.Subgraph.PrereqChains) > 0 {
		sections = append(sections, "\n### Learning Path (Prerequisites → Target)")
		for _, chain := range result.Subgraph.PrereqChains {
			if len(chain) > 1 {
				sections = append(sections, "- "+strings.Join(chain, " → "))
			}
		}
	}

	return strings.Join(sections, "\n")
}
