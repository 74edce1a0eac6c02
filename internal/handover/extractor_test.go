package handover

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcessionGrammar(t *testing.T) {
	rec := ConcessionGrammar().Extract(concessionBlock)

	want := map[Field]any{
		FieldMatricula:     "123456",
		FieldType:          "NOTEBOOK",
		FieldBrand:         "DELL",
		FieldModel:         "Latitude 5420",
		FieldSerial:        "ABC1234",
		FieldAssetTag:      "99887",
		FieldInvoice:       "000123",
		FieldTicket:        "REQ0012345",
		FieldHostname:      "BRSPNB001",
		FieldMonitorModel:  "Dell P2419H",
		FieldMonitorSerial: "CN0ABC",
		FieldMouse:         true,
		FieldKeyboard:      false,
		FieldHeadset:       true,
		FieldSigned:        true,
	}
	for f, v := range want {
		assert.Equal(t, v, rec[f], "field %s", f)
	}
	_, hasTerm := rec[FieldTerm]
	assert.False(t, hasTerm, "grammar leaves TERM to the registry")
}

func TestReturnGrammar(t *testing.T) {
	text := returnBlock + "Chamado: REQ1\nHostname: X\n"
	rec := ReturnGrammar().Extract(text)

	assert.Equal(t, "MINIDESKTOP", rec[FieldType])
	assert.Equal(t, "LENOVO", rec[FieldBrand])
	assert.Equal(t, "ThinkCentre M70q", rec[FieldModel])
	assert.Equal(t, "XYZ9876", rec[FieldSerial])
	assert.Equal(t, true, rec[FieldBackpack])
	assert.Equal(t, false, rec[FieldPowerSupply])
	assert.Equal(t, true, rec[FieldSigned], "signature line filled in")
	assert.NotContains(t, rec, FieldTicket)
	assert.NotContains(t, rec, FieldHostname)
}

func TestGrammarUnsignedForms(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"blank signature line", "Assinatura: ______________\nModelo: X"},
		{"dotted signature line", "Assinatura: ..........."},
		{"no signature at all", "Modelo: Latitude 5420"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ConcessionGrammar().Extract(tt.text)
			assert.Equal(t, false, rec[FieldSigned])
		})
	}
}

func TestGrammarMissingFieldsAreAbsent(t *testing.T) {
	rec := ConcessionGrammar().Extract("Modelo:\nNota Fiscal:   \nChamado: ___")

	assert.NotContains(t, rec, FieldModel)
	assert.NotContains(t, rec, FieldInvoice)
	assert.NotContains(t, rec, FieldTicket)
	assert.Contains(t, rec, FieldSigned)
}

func TestGrammarKeepsFirstValue(t *testing.T) {
	rec := ConcessionGrammar().Extract("Modelo: Latitude 5420\nModelo: Optiplex 7070")
	assert.Equal(t, "Latitude 5420", rec[FieldModel])
}

func TestGrammarDashOnlyMonitor(t *testing.T) {
	rec := ConcessionGrammar().Extract("Monitor: ---   Serial do Monitor: ---")
	assert.Equal(t, "---", rec[FieldMonitorModel])
	assert.Equal(t, "---", rec[FieldMonitorSerial])
}

func TestGrammarValueEndsAtAnyLabel(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		field Field
		want  string
	}{
		{"unknown label after value", "Modelo: Latitude 5420 Data de entrega: 01/02/2024", FieldModel, "Latitude 5420"},
		{"unknown label in next column", "Modelo: Optiplex 7070   Data prevista de entrega: 01/02/2024", FieldModel, "Optiplex 7070"},
		{"unknown label right after a word value", "Tipo: Notebook Fabricado em: 2020", FieldType, "NOTEBOOK"},
		{"time inside value is not a label", "Modelo: Latitude 5420 entregue as 10:30", FieldModel, "Latitude 5420 entregue as 10:30"},
		{"unknown label before a known one", "Colaborador: Maria  Matrícula: 123456", FieldMatricula, "123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ConcessionGrammar().Extract(tt.text)
			assert.Equal(t, tt.want, rec[tt.field])
		})
	}
}

func TestGrammarTypeNormalization(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Tipo: Notebook", "NOTEBOOK"},
		{"Tipo: Notebook Dell", "NOTEBOOK"},
		{"Tipo: notebook, dell", "NOTEBOOK"},
		{"Tipo: Mini-Desktop", "MINIDESKTOP"},
		{"Tipo: Mini Desktop Lenovo", "MINIDESKTOP"},
		{"Tipo: Mini Desk", "MINIDESK"},
		{"Tipo: Desktop", "DESKTOP"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ConcessionGrammar().Extract(tt.text)[FieldType])
		})
	}
}

func TestGrammarInvoiceLabels(t *testing.T) {
	for _, text := range []string{
		"Nota Fiscal: 12345",
		"Nota Fiscal Nº: 12345",
		"Nota Fiscal N.º: 12345",
		"Nota Fiscal Número: 12345",
		"NF Nº: 12345",
		"NF: 12345",
		"Nº NF: 12345",
	} {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, "12345", ConcessionGrammar().Extract(text)[FieldInvoice])
		})
	}
}

func TestGrammarIsDeterministic(t *testing.T) {
	g := ConcessionGrammar()
	first := g.Extract(concessionBlock)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, g.Extract(concessionBlock))
	}
}

func TestRegistryExtractAllFallback(t *testing.T) {
	recs := NewRegistry(nil).ExtractAll("whatever", nil)
	require.Len(t, recs, 1)
	assert.Equal(t, DocTypeUnknown, recs[0].Term())
	assert.Len(t, recs[0], 1, "no extraction on the fallback record")
}

func TestRegistryTagsTerm(t *testing.T) {
	r := NewRegistry(nil)

	assert.Equal(t, DocTypeConcession, r.Extract(concessionBlock, DocTypeConcession).Term())
	assert.Equal(t, DocTypeReturn, r.Extract(returnBlock, DocTypeReturn).Term())

	rat := r.Extract(returnBlock+"Chamado: REQ1\n", DocTypeRAT)
	assert.Equal(t, DocTypeRAT, rat.Term())
	assert.NotContains(t, rat, FieldTicket, "RAT over a return section uses the return grammar")
}

type panickyExtractor struct{}

func (panickyExtractor) Extract(string) Record { panic("boom") }

func TestRegistryRecoversFromPanics(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(DocTypeConcession, panickyExtractor{})

	var rec Record
	require.NotPanics(t, func() {
		rec = r.Extract(concessionBlock, DocTypeConcession)
	})
	assert.Equal(t, DocTypeConcession, rec.Term())
}

func TestClassifierEndToEnd(t *testing.T) {
	text := header + returnBlock + concessionBlock
	recs, spans := NewClassifier(nil, nil).ClassifySpans(text)

	require.Len(t, recs, 2)
	require.Len(t, spans, 2)
	assert.Equal(t, DocTypeReturn, recs[0].Term())
	assert.Equal(t, DocTypeConcession, recs[1].Term())
	assert.Equal(t, "LENOVO", recs[0][FieldBrand])
	assert.Equal(t, "DELL", recs[1][FieldBrand])
}

func TestClassifierRATRecords(t *testing.T) {
	k := 3
	var b strings.Builder
	for i := 0; i < k; i++ {
		b.WriteString(ratBlock(i))
	}

	recs := NewClassifier(nil, nil).Classify(b.String())

	rat := 0
	for _, rec := range recs {
		if rec.Term() == DocTypeRAT {
			rat++
			assert.Contains(t, []string{"Latitude 5420", "Latitude 7400"}, rec[FieldModel])
		}
	}
	assert.Equal(t, 2*k, rat)
}

func TestClassifierUnknown(t *testing.T) {
	recs := NewClassifier(nil, nil).Classify("Recibo de almoço\nValor: 10,00")
	require.Len(t, recs, 1)
	assert.Equal(t, DocTypeUnknown, recs[0].Term())
}

func TestFold(t *testing.T) {
	assert.Equal(t, "patrimonio no de serie", Fold("Patrimônio Nº de Série"))
	assert.Equal(t, "devolucao", Fold("DEVOLUÇÃO"))
	assert.Equal(t, "a b", Fold("a b"))
}

func TestFoldOffsets(t *testing.T) {
	raw := "Série: ÁÉ1"
	f := fold(raw)
	idx := strings.Index(f.text, "ae1")
	require.GreaterOrEqual(t, idx, 0)
	s, e := f.raw(idx, idx+3)
	assert.Equal(t, "ÁÉ1", raw[s:e])
}

func TestRecordAccessors(t *testing.T) {
	rec := NewRecord(DocTypeConcession)
	rec[FieldSigned] = true
	rec[FieldMouse] = "não"
	rec[FieldModel] = "  Latitude  "

	assert.Equal(t, "SIM", rec.String(FieldSigned))
	assert.Equal(t, "Latitude", rec.String(FieldModel))
	assert.False(t, rec.Bool(FieldMouse))
	assert.True(t, rec.Bool(FieldSigned))
	assert.False(t, rec.Has(FieldInvoice))

	rec.SetStatus(StatusOK)
	assert.Equal(t, StatusOK, rec.Status())
}
