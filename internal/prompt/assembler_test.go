package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrassist/internal/ai"
	"hrassist/internal/retrieve"
)

func passage(title, text string, score float64) retrieve.Passage {
	return retrieve.Passage{Title: title, Text: text, Score: score}
}

func TestAssemble_Structure(t *testing.T) {
	a := NewAssembler(12000)

	messages := a.Assemble(
		[]retrieve.Passage{passage("Leave Policy", "Employees get 25 days of paid leave.", 0.9)},
		[]ai.ChatMessage{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi, how can I help?"},
		},
		"How many leave days do I get?",
	)

	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "[Leave Policy]")
	assert.Contains(t, messages[0].Content, "25 days of paid leave")
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "hello", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)

	last := messages[len(messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "How many leave days do I get?", last.Content)
}

func TestAssemble_NoPassagesUsesFallbackInstruction(t *testing.T) {
	a := NewAssembler(12000)

	messages := a.Assemble(nil, nil, "What is the meaning of life?")
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "No relevant documents were found")
	assert.NotContains(t, messages[0].Content, "Document excerpts:")
}

func TestAssemble_DropsLowestScoredPassagesFirst(t *testing.T) {
	// Budget fits the instruction, the question, and roughly one passage.
	a := NewAssembler(450)

	long := strings.Repeat("x", 120)
	messages := a.Assemble(
		[]retrieve.Passage{
			passage("Best", long, 0.9),
			passage("Second", long, 0.5),
			passage("Third", long, 0.2),
		},
		nil,
		"question?",
	)

	system := messages[0].Content
	assert.Contains(t, system, "[Best]")
	assert.NotContains(t, system, "[Third]")
}

func TestAssemble_DropsOldestHistoryFirst(t *testing.T) {
	a := NewAssembler(400)

	old := ai.ChatMessage{Role: "user", Content: strings.Repeat("old ", 50)}
	recent := ai.ChatMessage{Role: "assistant", Content: "recent short reply"}

	messages := a.Assemble(nil, []ai.ChatMessage{old, recent}, "question?")

	var contents []string
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	joined := strings.Join(contents, "|")
	assert.Contains(t, joined, "recent short reply")
	assert.NotContains(t, joined, "old old")
}

func TestAssemble_QuestionNeverTruncated(t *testing.T) {
	a := NewAssembler(10)

	question := "this question is far longer than the configured budget allows"
	messages := a.Assemble(nil, nil, question)

	last := messages[len(messages)-1]
	assert.Equal(t, question, last.Content)
}

func TestAssemble_BudgetRespectedForOptionalContent(t *testing.T) {
	a := NewAssembler(600)

	var passages []retrieve.Passage
	for i := 0; i < 20; i++ {
		passages = append(passages, passage("Doc", strings.Repeat("y", 100), 1.0-float64(i)*0.01))
	}
	history := make([]ai.ChatMessage, 20)
	for i := range history {
		history[i] = ai.ChatMessage{Role: "user", Content: strings.Repeat("h", 80)}
	}

	messages := a.Assemble(passages, history, "q")

	total := 0
	for _, m := range messages {
		total += len([]rune(m.Content))
	}
	// The overflow allowance covers only the never-truncated fixed parts.
	assert.LessOrEqual(t, total, a.BudgetChars()+len([]rune("q")))
}

func TestAssemble_ExcerptsHeaderCountedAgainstBudget(t *testing.T) {
	a := NewAssembler(600)

	// Sweep passage sizes across the admission boundary so the
	// exactly-fitting block is among the cases.
	for size := 250; size <= 400; size++ {
		messages := a.Assemble(
			[]retrieve.Passage{passage("Doc", strings.Repeat("p", size), 0.9)},
			nil,
			"q",
		)
		total := 0
		for _, m := range messages {
			total += len([]rune(m.Content))
		}
		assert.LessOrEqual(t, total, a.BudgetChars(), "passage size %d", size)
	}
}

func TestAssemble_HistoryOrderPreserved(t *testing.T) {
	a := NewAssembler(12000)

	history := []ai.ChatMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "user", Content: "third"},
	}
	messages := a.Assemble(nil, history, "fourth")

	require.Len(t, messages, 5)
	assert.Equal(t, "first", messages[1].Content)
	assert.Equal(t, "second", messages[2].Content)
	assert.Equal(t, "third", messages[3].Content)
	assert.Equal(t, "fourth", messages[4].Content)
}
