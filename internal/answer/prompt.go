package answer

import (
	"fmt"
	"strings"
	"text/template"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// PromptType selects the answer style.
type PromptType string

const (
	// PromptTrends answers a question about trends in the corpus.
	PromptTrends PromptType = "trends"
	// PromptSummary summarizes the retrieved content.
	PromptSummary PromptType = "summary"
	// PromptExplanation explains a term using the corpus.
	PromptExplanation PromptType = "explanation"
)

// DefaultDomain is the subject area named in prompts.
const DefaultDomain = "manufacturing and supply chain"

// PromptTypes lists the valid prompt types.
func PromptTypes() []string {
	return []string{string(PromptTrends), string(PromptSummary), string(PromptExplanation)}
}

// ParsePromptType validates s. Unknown types are InvalidInput.
func ParsePromptType(s string) (PromptType, error) {
	t := PromptType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := systemTemplates[t]; !ok {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown prompt type %q (valid: %s)", s, strings.Join(PromptTypes(), ", ")), nil)
	}
	return t, nil
}

var systemTemplates = map[PromptType]*template.Template{
	PromptTrends: template.Must(template.New("trends").Parse(
		`You are an expert in {{.Domain}} sector trends and technologies. ` +
			`Answer the user's question in less than 300 words using only the numbered context passages. ` +
			`If the context does not cover the question, say so instead of making up an answer. ` +
			`Include relevant company names, key industry trends, emerging technologies and their impact.`)),
	PromptSummary: template.Must(template.New("summary").Parse(
		`You are an expert in the {{.Domain}} sector. ` +
			`Write a clear and concise summary of the numbered context passages in less than 200 words. ` +
			`Highlight important company names, emerging technologies, industry trends and their impact on the sector.`)),
	PromptExplanation: template.Must(template.New("explanation").Parse(
		`You are an expert in {{.Domain}} sector trends and technologies. ` +
			`Explain the term the user asks about in the context of the {{.Domain}} sector, in less than 100 words. ` +
			`Use the numbered context passages, keep it easy to understand, include examples ` +
			`and say why it matters to the industry.`)),
}

const degradedNote = "Note: only one retrieval signal was available for this question, so the context may be incomplete."

const userTemplate = `Question: %s

Context:
%s`

// Prompt is a system and user message pair.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the prompt for t. When degraded is set the system
// message warns that the context came from a single retrieval signal.
func BuildPrompt(t PromptType, domain, query, context string, degraded bool) (Prompt, error) {
	tmpl, ok := systemTemplates[t]
	if !ok {
		return Prompt{}, amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown prompt type %q", t), nil)
	}
	if domain == "" {
		domain = DefaultDomain
	}

	var sys strings.Builder
	if err := tmpl.Execute(&sys, struct{ Domain string }{domain}); err != nil {
		return Prompt{}, amerrors.InternalError("failed to render prompt", err)
	}
	if degraded {
		sys.WriteString("\n\n")
		sys.WriteString(degradedNote)
	}
	return Prompt{
		System: sys.String(),
		User:   fmt.Sprintf(userTemplate, strings.TrimSpace(query), context),
	}, nil
}
