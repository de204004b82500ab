package ollama

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

const maxRecordBody = 2000

func buildAnswerPrompt(question string, records []domain.Record) string {
	var contextBuilder strings.Builder
	for idx, rec := range records {
		body := rec.BodyText
		if len(body) > maxRecordBody {
			body = body[:maxRecordBody]
		}
		fmt.Fprintf(&contextBuilder, "[%d] scheme=%s section=%s source=%s\n%s\n",
			idx+1,
			rec.EntityDisplayName,
			rec.CategoryTag,
			rec.SourceRef,
			body,
		)
		keys := make([]string, 0, len(rec.StructuredFields))
		for k := range rec.StructuredFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&contextBuilder, "%s: %v\n", k, rec.StructuredFields[k])
		}
		contextBuilder.WriteString("\n")
	}

	return fmt.Sprintf(`Answer the question about mutual fund schemes using only the facts below.
State facts only. Do not give investment advice or opinions.
If the facts do not contain the answer, say so directly.
Keep the answer to three sentences or fewer.

Question:
%s

Facts:
%s`, question, contextBuilder.String())
}
