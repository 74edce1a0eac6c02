package handover

import (
	"regexp"
	"strings"
	"unicode"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindFlag
	kindSignature
	// a "label:" the grammar does not read; it only ends the previous value
	kindOther
)

type label struct {
	field Field
	kind  fieldKind
}

// Grammar extracts a record from a span using label/value pairs
// ("Modelo: Latitude 5420"), checkbox lines ("(x) Mouse") and signature
// evidence. Labels are matched on the folded view and values are copied
// from the raw text. A Grammar is immutable once built and safe for
// concurrent use.
type Grammar struct {
	labels      map[string]label
	accessories map[string]Field
	normalize   map[Field]func(string) string
	signed      []*regexp.Regexp
}

var (
	// candidate label: up to 40 label-ish characters ending in a colon
	labelPattern = regexp.MustCompile(`([a-z][a-z0-9./ -]{0,40}?)[ \t]*:`)
	wordPattern  = regexp.MustCompile(`\S+`)
	// checkbox: "(x) Mouse", "[ ] Teclado", "( X ) Headset"
	checkboxPattern = regexp.MustCompile(`[\(\[][ \t]*(x|v|✓|✔|\*)?[ \t]*[\)\]][ \t]*([a-z][a-z0-9 -]*)`)
	onlyFiller      = regexp.MustCompile(`^[\s_.]*$`)
	columnGap       = regexp.MustCompile(`\s{2,}`)
)

// maxOtherLabelWords bounds how much of a value an unrecognised label may claim
const maxOtherLabelWords = 3

// compoundTypes are equipment types written as more than one word
var compoundTypes = map[string]string{
	"mini desktop": "MINIDESKTOP",
	"mini desk":    "MINIDESK",
	"all in one":   "ALLINONE",
}

var defaultSignedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`assinad[oa]\s+(digitalmente|eletronicamente)`),
	regexp.MustCompile(`assinatura\s+(digital|eletronica)\s+(valida|verificada|realizada)`),
	regexp.MustCompile(`docusign\s+envelope\s+id`),
	regexp.MustCompile(`clicksign`),
	regexp.MustCompile(`signed\s+by`),
}

var textLabels = map[Field][]string{
	FieldModel:         {"modelo", "modelo do equipamento", "modelo equipamento"},
	FieldBrand:         {"marca", "fabricante", "marca do equipamento"},
	FieldType:          {"tipo", "tipo de equipamento", "tipo do equipamento"},
	FieldSerial:        {"serial", "numero de serie", "no de serie", "n de serie", "n. de serie", "s/n", "service tag", "serial do equipamento"},
	FieldMonitorModel:  {"monitor", "modelo do monitor", "modelo monitor"},
	FieldMonitorSerial: {"serial do monitor", "serial monitor", "numero de serie do monitor"},
	FieldAssetTag:      {"patrimonio", "no patrimonio", "n. patrimonio", "numero do patrimonio", "numero de patrimonio"},
	FieldInvoice: {"nf", "n.f", "nota fiscal", "no nf", "numero da nf", "numero da nota fiscal",
		"nota fiscal no", "nota fiscal n", "nota fiscal n.", "nota fiscal n.o", "nota fiscal numero",
		"nf no", "nf n", "nf n.", "nf n.o", "nf numero"},
	FieldTicket:        {"chamado", "ticket", "requisicao", "numero do chamado", "no chamado"},
	FieldHostname:      {"hostname", "host name", "nome da maquina", "nome do computador"},
	FieldMatricula:     {"matricula", "matricula do colaborador"},
	FieldRAM:           {"ram", "memoria ram"},
	FieldStorage:       {"memoria", "armazenamento", "disco", "hd", "ssd"},
}

var accessoryLabels = map[Field][]string{
	FieldMouse:             {"mouse"},
	FieldKeyboard:          {"teclado"},
	FieldHeadset:           {"headset", "fone de ouvido"},
	FieldWelcomeKit:        {"kit boas-vindas", "kit boas vindas"},
	FieldWebcam:            {"webcam"},
	FieldUSBHub:            {"hub usb"},
	FieldErgonomicStand:    {"suporte ergonomico"},
	FieldSecurityCable:     {"cabo de seguranca"},
	FieldBackpack:          {"mochila"},
	FieldDockStation:       {"dock station", "docking station"},
	FieldSecuritySeal:      {"lacre de seguranca"},
	FieldRCACable:          {"cabo rca"},
	FieldExtraBattery:      {"bateria extra"},
	FieldExtraCharger:      {"carregador extra"},
	FieldMonitorPowerCable: {"cabo de forca do monitor"},
	FieldPowerSupply:       {"fonte", "carregador"},
	FieldHDMIAdapter:       {"adaptador hdmi"},
}

// NewGrammar builds a grammar that recognises every text field except the
// ones listed in omit.
func NewGrammar(omit ...Field) *Grammar {
	skip := make(map[Field]bool, len(omit))
	for _, f := range omit {
		skip[f] = true
	}

	g := &Grammar{
		labels:      make(map[string]label),
		accessories: make(map[string]Field),
		normalize: map[Field]func(string) string{
			FieldType:          normalizeType,
			FieldBrand:         firstWordUpper,
			FieldTicket:        normalizeCode,
			FieldInvoice:       normalizeCode,
			FieldHostname:      firstWordUpper,
			FieldMatricula:     firstWordUpper,
			FieldSerial:        strings.ToUpper,
			FieldMonitorSerial: strings.ToUpper,
		},
		signed: defaultSignedPatterns,
	}
	for field, names := range textLabels {
		if skip[field] {
			continue
		}
		for _, n := range names {
			g.labels[n] = label{field: field, kind: kindText}
		}
	}
	for field, names := range accessoryLabels {
		for _, n := range names {
			g.labels[n] = label{field: field, kind: kindFlag}
			g.accessories[n] = field
		}
	}
	g.labels["assinatura"] = label{kind: kindSignature}
	g.labels["assinatura do colaborador"] = label{kind: kindSignature}
	return g
}

// ConcessionGrammar recognises the full field set of a concession form
func ConcessionGrammar() *Grammar {
	return NewGrammar()
}

// ReturnGrammar recognises a return form. Returned equipment is not tied to
// a new ticket or hostname, so those labels are not read.
func ReturnGrammar() *Grammar {
	return NewGrammar(FieldTicket, FieldHostname)
}

// Extract maps the span text to a record. It never fails: fields that cannot
// be located are simply absent. TERM is left to the caller.
func (g *Grammar) Extract(text string) Record {
	f := fold(text)
	rec := Record{}
	signatureSeen := false

	lineStart := 0
	for lineStart <= len(f.text) {
		lineEnd := strings.IndexByte(f.text[lineStart:], '\n')
		if lineEnd < 0 {
			lineEnd = len(f.text)
		} else {
			lineEnd += lineStart
		}
		line := f.text[lineStart:lineEnd]

		if g.scanPairs(text, f, lineStart, line, rec) {
			signatureSeen = true
		}
		g.scanCheckboxes(line, rec)

		lineStart = lineEnd + 1
	}

	if !signatureSeen {
		for _, re := range g.signed {
			if re.MatchString(f.text) {
				signatureSeen = true
				break
			}
		}
	}
	rec[FieldSigned] = signatureSeen
	return rec
}

type labelHit struct {
	label      label
	labelStart int
	valueStart int
}

// scanPairs reads "label: value" pairs on one folded line. A value runs up to
// the next label, recognised or not, or the end of the line. It reports
// whether a filled-in signature line was seen.
func (g *Grammar) scanPairs(raw string, f folded, lineStart int, line string, rec Record) bool {
	var hits []labelHit
	for _, m := range labelPattern.FindAllStringSubmatchIndex(line, -1) {
		candidate := line[m[2]:m[3]]
		l, offset, ok := g.resolveLabel(candidate)
		if !ok {
			blankBefore := len(hits) > 0 && strings.TrimSpace(line[hits[len(hits)-1].valueStart:m[2]]) == ""
			if offset, ok = otherLabel(candidate, blankBefore); !ok {
				continue
			}
			l = label{kind: kindOther}
		}
		hits = append(hits, labelHit{label: l, labelStart: m[2] + offset, valueStart: m[1]})
	}

	signed := false
	for i, h := range hits {
		valueEnd := len(line)
		if i+1 < len(hits) {
			valueEnd = hits[i+1].labelStart
		}
		rs, re := f.raw(lineStart+h.valueStart, lineStart+valueEnd)
		value := cleanValue(raw[rs:re])

		switch h.label.kind {
		case kindOther:
			continue
		case kindSignature:
			if value != "" && strings.IndexFunc(value, unicode.IsLetter) >= 0 {
				signed = true
			}
		case kindFlag:
			if _, ok := rec[h.label.field]; !ok {
				rec[h.label.field] = truthy(value)
			}
		default:
			if value == "" {
				continue
			}
			if _, ok := rec[h.label.field]; ok {
				continue
			}
			if norm, ok := g.normalize[h.label.field]; ok {
				value = norm(value)
			}
			rec[h.label.field] = value
		}
	}
	return signed
}

// resolveLabel finds the longest known label that is a word-aligned suffix
// of the candidate. Whatever precedes it belongs to the previous value.
func (g *Grammar) resolveLabel(candidate string) (label, int, bool) {
	words := wordPattern.FindAllStringIndex(candidate, -1)
	for i := range words {
		key := joinWords(candidate, words[i:])
		if l, ok := g.labels[key]; ok {
			return l, words[i][0], true
		}
	}
	return label{}, 0, false
}

// otherLabel locates an unrecognised label inside a candidate. In column
// layouts it starts after the last wide gap; otherwise it is the trailing run
// of digit-free words. Labels never contain digits. When blankBefore is set the candidate starts right
// after the previous label, so its first word is kept as that label's value.
func otherLabel(candidate string, blankBefore bool) (int, bool) {
	if gaps := columnGap.FindAllStringIndex(candidate, -1); len(gaps) > 0 {
		start := gaps[len(gaps)-1][1]
		if start < len(candidate) && strings.IndexFunc(candidate[start:], unicode.IsDigit) < 0 {
			return start, true
		}
	}

	words := wordPattern.FindAllStringIndex(candidate, -1)
	first := len(words)
	for first > 0 && len(words)-first < maxOtherLabelWords &&
		strings.IndexFunc(candidate[words[first-1][0]:words[first-1][1]], unicode.IsDigit) < 0 {
		first--
	}
	if first == 0 && blankBefore {
		first = 1
	}
	if first >= len(words) {
		return 0, false
	}
	return words[first][0], true
}

func (g *Grammar) scanCheckboxes(line string, rec Record) {
	for _, m := range checkboxPattern.FindAllStringSubmatch(line, -1) {
		checked := m[1] != ""
		phrase := strings.TrimSpace(m[2])
		words := wordPattern.FindAllStringIndex(phrase, -1)
		for n := len(words); n > 0; n-- {
			field, ok := g.accessories[joinWords(phrase, words[:n])]
			if !ok {
				continue
			}
			if _, seen := rec[field]; !seen {
				rec[field] = checked
			}
			break
		}
	}
}

func joinWords(s string, idx [][]int) string {
	parts := make([]string, len(idx))
	for i, w := range idx {
		parts[i] = s[w[0]:w[1]]
	}
	return strings.Join(parts, " ")
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimRight(v, " \t;,|")
	v = strings.TrimLeft(v, " \t:")
	if onlyFiller.MatchString(v) {
		return ""
	}
	return strings.Join(strings.Fields(v), " ")
}

func truthy(v string) bool {
	switch Fold(strings.TrimSpace(v)) {
	case "", "nao", "n", "no", "0", "-", "false":
		return false
	default:
		return true
	}
}

// normalizeType keeps the equipment type and drops trailing words such as a
// brand written on the same line ("Notebook Dell").
func normalizeType(v string) string {
	words := strings.Fields(strings.ReplaceAll(Fold(v), "-", " "))
	if len(words) == 0 {
		return ""
	}
	for n := min(len(words), 3); n > 1; n-- {
		if t, ok := compoundTypes[strings.Join(words[:n], " ")]; ok {
			return t
		}
	}
	return strings.ToUpper(strings.Trim(words[0], ".,;"))
}

func firstWordUpper(v string) string {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.Trim(fields[0], ".,;"))
}

func normalizeCode(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), ""))
}
