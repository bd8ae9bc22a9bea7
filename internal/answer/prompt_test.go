package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestParsePromptType(t *testing.T) {
	tests := []struct {
		in      string
		want    PromptType
		wantErr bool
	}{
		{"trends", PromptTrends, false},
		{" Summary ", PromptSummary, false},
		{"EXPLANATION", PromptExplanation, false},
		{"poem", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePromptType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt_Types(t *testing.T) {
	tests := []struct {
		typ   PromptType
		limit string
	}{
		{PromptTrends, "less than 300 words"},
		{PromptSummary, "less than 200 words"},
		{PromptExplanation, "less than 100 words"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			p, err := BuildPrompt(tt.typ, "", "  what is nearshoring? ", "[1] (a)\ntext", false)

			require.NoError(t, err)
			assert.Contains(t, p.System, tt.limit)
			assert.Contains(t, p.System, DefaultDomain)
			assert.NotContains(t, p.System, degradedNote)
			assert.Equal(t, "Question: what is nearshoring?\n\nContext:\n[1] (a)\ntext", p.User)
		})
	}
}

func TestBuildPrompt_DegradedAndDomain(t *testing.T) {
	p, err := BuildPrompt(PromptTrends, "semiconductor", "q", "ctx", true)

	require.NoError(t, err)
	assert.Contains(t, p.System, "semiconductor sector")
	assert.Contains(t, p.System, degradedNote)
}

func TestBuildPrompt_Unknown(t *testing.T) {
	_, err := BuildPrompt("haiku", "", "q", "ctx", false)
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}
