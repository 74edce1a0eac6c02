package mcp

import (
	"fmt"
	"strings"

	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/handover"
	"github.com/a3tai/handover-auditor/internal/rules"
)

func formatDocuments(docs []audit.DocumentResult) string {
	var records []handover.Record
	var outcomes []audit.Outcome
	failed := 0
	for _, d := range docs {
		if d.Err != nil {
			failed++
		}
		records = append(records, d.Records...)
		outcomes = append(outcomes, d.Outcomes...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audited %d document(s), %d record(s) (not recorded)\n", len(docs), len(records))
	writeOutcomes(&b, outcomes)
	writeTally(&b, audit.Fold(records).Tally, failed)
	return b.String()
}

func formatRun(run *audit.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d document(s), %d record(s) appended to the workbook\n",
		run.ID, run.Documents, len(run.Records))
	writeOutcomes(&b, run.Outcomes)
	writeTally(&b, run.Tally, run.Failed)
	return b.String()
}

func writeOutcomes(b *strings.Builder, outcomes []audit.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	b.WriteString("\nResults:\n")
	for i, o := range outcomes {
		fmt.Fprintf(b, "%d. %s", i+1, o.Name)
		if o.Type != "" {
			fmt.Fprintf(b, " [%s]", o.Type)
		}
		fmt.Fprintf(b, " %s", strings.ToUpper(o.Status))
		switch {
		case o.Error != "":
			fmt.Fprintf(b, ": %s", o.Error)
		case o.Rule != "":
			fmt.Fprintf(b, ": %s (%s)", o.Rule, o.Reason)
		}
		b.WriteString("\n")
	}
}

func writeTally(b *strings.Builder, t audit.Tally, failed int) {
	fmt.Fprintf(b, "\nOK: %d  ERROR: %d\n", t.OK, t.Error)
	fmt.Fprintf(b, "Concession: %d  Return: %d  RAT: %d  Unknown: %d\n", t.Concession, t.Return, t.RAT, t.Unknown)
	if failed > 0 {
		fmt.Fprintf(b, "Unreadable documents: %d\n", failed)
	}
}

// chainTerms lists the document types that have a rule chain, in TERM order
func chainTerms(p rules.Policy) []handover.DocType {
	var terms []handover.DocType
	for _, t := range handover.AllDocTypes() {
		if _, ok := p.Chains[t]; ok {
			terms = append(terms, t)
		}
	}
	return terms
}
