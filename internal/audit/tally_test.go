package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a3tai/handover-auditor/internal/handover"
)

func record(term handover.DocType, status handover.Status) handover.Record {
	rec := handover.NewRecord(term)
	rec.SetStatus(status)
	return rec
}

func TestFold(t *testing.T) {
	records := []handover.Record{
		record(handover.DocTypeReturn, handover.StatusOK),
		record(handover.DocTypeConcession, handover.StatusOK),
		record(handover.DocTypeRAT, handover.StatusError),
		record(handover.DocTypeUnknown, handover.StatusError),
		record("SOMETHING_ELSE", handover.StatusOK),
	}

	result := Fold(records)

	assert.Equal(t, Tally{OK: 3, Error: 2, Concession: 1, Return: 1, RAT: 1, Unknown: 2}, result.Tally)
	assert.Equal(t, records, result.Records, "order is preserved")
	assert.Equal(t, 5, result.Tally.Total())
}

func TestFoldEmpty(t *testing.T) {
	result := Fold(nil)
	assert.Zero(t, result.Tally)
	assert.NotNil(t, result.Records)
	assert.Empty(t, result.Records)
}

func TestTallyMerge(t *testing.T) {
	a := Tally{OK: 1, Error: 2, Concession: 3}
	b := Tally{OK: 4, Return: 1, RAT: 2, Unknown: 3}
	c := Tally{Error: 1, Unknown: 1}

	ab := a
	ab.Merge(b)
	ba := b
	ba.Merge(a)
	assert.Equal(t, ab, ba, "merge is commutative")

	left := ab
	left.Merge(c)
	bc := b
	bc.Merge(c)
	right := a
	right.Merge(bc)
	assert.Equal(t, left, right, "merge is associative")

	assert.Equal(t, Tally{OK: 5, Error: 3, Concession: 3, Return: 1, RAT: 2, Unknown: 4}, left)
}

func TestTallyPartitionedFold(t *testing.T) {
	records := []handover.Record{
		record(handover.DocTypeConcession, handover.StatusOK),
		record(handover.DocTypeReturn, handover.StatusError),
		record(handover.DocTypeRAT, handover.StatusOK),
		record(handover.DocTypeRAT, handover.StatusOK),
	}

	whole := Fold(records).Tally
	var merged Tally
	merged.Merge(Fold(records[:1]).Tally)
	merged.Merge(Fold(records[1:]).Tally)
	assert.Equal(t, whole, merged)
}
