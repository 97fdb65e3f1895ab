// Package prompt assembles the bounded, ordered context window sent to the
// chat model: system instruction, retrieved passages with attribution, prior
// turns, newest question last.
package prompt

import (
	"fmt"
	"strings"

	"hrassist/internal/ai"
	"hrassist/internal/retrieve"
)

const systemInstruction = "You are an HR assistant. Answer the user's question using only the provided document excerpts. " +
	"Cite the document title when you use an excerpt. If the excerpts do not contain enough information, say so plainly. Do not make up facts or citations."

const noContextInstruction = "You are an HR assistant. No relevant documents were found for this question. " +
	"Answer from general knowledge if you can do so safely, and state clearly that the organization's documents contain no relevant information. Never invent document citations."

const excerptsHeader = "\n\nDocument excerpts:\n"

// Assembler packs passages and history into a character budget. Packing is
// deterministic: the system instruction, every surviving passage, and the
// newest question are never truncated; under pressure the lowest-scored
// passages go first, then the oldest history turns.
type Assembler struct {
	budgetChars int
}

func NewAssembler(budgetChars int) *Assembler {
	if budgetChars <= 0 {
		budgetChars = 12000
	}
	return &Assembler{budgetChars: budgetChars}
}

// Assemble returns the ordered message sequence for the model. Passages must
// arrive ranked by descending score (the retriever's contract); history in
// conversational order, oldest first.
func (a *Assembler) Assemble(passages []retrieve.Passage, history []ai.ChatMessage, question string) []ai.ChatMessage {
	question = strings.TrimSpace(question)

	instruction := systemInstruction
	if len(passages) == 0 {
		instruction = noContextInstruction
	}

	// The instruction and the newest question are spent first; they are the
	// highest-value tokens and never elided.
	remaining := a.budgetChars - charLen(instruction) - charLen(question)

	// The first admitted block also pays for the excerpts header; later
	// blocks pay for their joining newline.
	var blocks []string
	for _, p := range passages {
		block := fmt.Sprintf("[%s]\n%s", p.Title, p.Text)
		cost := charLen(block) + 1
		if len(blocks) == 0 {
			cost = charLen(excerptsHeader) + charLen(block)
		}
		if cost > remaining {
			break
		}
		blocks = append(blocks, block)
		remaining -= cost
	}

	// Keep the newest turns: walk backward until the budget runs out, then
	// emit survivors in original order.
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := charLen(history[i].Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		keepFrom = i
	}

	system := instruction
	if len(blocks) > 0 {
		system = instruction + excerptsHeader + strings.Join(blocks, "\n")
	}

	messages := make([]ai.ChatMessage, 0, len(history)-keepFrom+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: system})
	for _, turn := range history[keepFrom:] {
		role := turn.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

// BudgetChars exposes the configured budget for callers that validate
// assembled output.
func (a *Assembler) BudgetChars() int { return a.budgetChars }

func charLen(s string) int { return len([]rune(s)) }
