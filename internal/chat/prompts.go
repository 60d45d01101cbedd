package chat

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/query"
)

const sqlSystemPrompt = "You translate questions about clinical trials into a single DuckDB SQL SELECT statement. Return ONLY the SQL, with no explanation and no code fences."

const answerSystemPrompt = "You are a helpful assistant answering questions about a collection of clinical trial protocols. Answer only from the data provided. If the data does not contain the answer, say so plainly."

// maxPromptRows bounds the result rows quoted back to the model.
const maxPromptRows = 50

func sqlPrompt(columns []dataset.Column, question string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The table %q has one row per trial protocol and these columns:\n", query.TableName)
	for _, c := range columns {
		fmt.Fprintf(&sb, "- %s (%s)\n", query.QuoteIdent(c.Name), query.SQLType(c.Type))
	}
	sb.WriteString(`
Rules:
- Column names contain dots, so always use the double-quoted names exactly as listed.
- Text values are free text; prefer ILIKE '%term%' over equality for text filters.
- List-valued fields are stored as text joined with "; ".
- Write exactly one SELECT statement against this table.

Question: `)
	sb.WriteString(question)
	return sb.String()
}

func sqlAnswerPrompt(question, statement string, res *query.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nSQL used:\n%s\n\nResult columns: %s\n", question, statement, strings.Join(res.Columns, ", "))
	if len(res.Rows) == 0 {
		sb.WriteString("The query returned no rows.\n")
	}
	for i, row := range res.Rows {
		if i == maxPromptRows {
			fmt.Fprintf(&sb, "... %d more rows\n", len(res.Rows)-maxPromptRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = models.FormatScalar(v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteByte('\n')
	}
	if res.Truncated {
		sb.WriteString("(results were truncated)\n")
	}
	sb.WriteString("\nAnswer the question from these results.")
	return sb.String()
}

func searchAnswerPrompt(question string, hits []Hit) string {
	var sb strings.Builder
	sb.WriteString("Here are summaries of the most relevant trial protocols:\n\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] (fingerprint %s)\n%s\n\n", i+1, shortID(h.Fingerprint), h.Summary)
	}
	fmt.Fprintf(&sb, "Question: %s\n\nAnswer the question using only these summaries and cite them by number.", question)
	return sb.String()
}

func shortID(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
