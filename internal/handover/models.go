package handover

import (
	"strings"
)

// DocType identifies which kind of handover sub-document a span or record belongs to
type DocType string

const (
	DocTypeConcession DocType = "CONCESSION"
	DocTypeReturn     DocType = "RETURN"
	DocTypeRAT        DocType = "RAT"
	DocTypeUnknown    DocType = "UNKNOWN"
)

// IsValid checks if the document type is one of the known labels
func (dt DocType) IsValid() bool {
	switch dt {
	case DocTypeConcession, DocTypeReturn, DocTypeRAT, DocTypeUnknown:
		return true
	default:
		return false
	}
}

// DisplayName returns the Portuguese label used on the forms themselves
func (dt DocType) DisplayName() string {
	switch dt {
	case DocTypeConcession:
		return "Concessão"
	case DocTypeReturn:
		return "Devolução"
	case DocTypeRAT:
		return "RAT"
	default:
		return "Desconhecido"
	}
}

// AllDocTypes returns the document types a record can carry in TERM
func AllDocTypes() []DocType {
	return []DocType{DocTypeConcession, DocTypeReturn, DocTypeRAT, DocTypeUnknown}
}

// Status is the validation outcome stored in STATUS_TERM
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Field is a key of the fixed record vocabulary
type Field string

const (
	FieldName          Field = "NAME"
	FieldTerm          Field = "TERM"
	FieldStatus        Field = "STATUS_TERM"
	FieldSigned        Field = "SIGNED"
	FieldType          Field = "TYPE"
	FieldModel         Field = "MODEL"
	FieldBrand         Field = "BRAND"
	FieldSerial        Field = "SERIAL"
	FieldMonitorModel  Field = "MONITOR_MODEL"
	FieldMonitorSerial Field = "MONITOR_SERIAL"
	FieldAssetTag      Field = "ASSET_TAG"
	FieldInvoice       Field = "INVOICE"
	FieldTicket        Field = "TICKET"
	FieldHostname      Field = "HOSTNAME"
	FieldMatricula     Field = "MATRICULA"
	FieldRAM           Field = "RAM"
	FieldStorage       Field = "STORAGE"

	// Accessory flags
	FieldMouse             Field = "MOUSE"
	FieldKeyboard          Field = "KEYBOARD"
	FieldHeadset           Field = "HEADSET"
	FieldWelcomeKit        Field = "WELCOME_KIT"
	FieldWebcam            Field = "WEBCAM"
	FieldUSBHub            Field = "USB_HUB"
	FieldErgonomicStand    Field = "ERGONOMIC_STAND"
	FieldSecurityCable     Field = "SECURITY_CABLE"
	FieldBackpack          Field = "BACKPACK"
	FieldDockStation       Field = "DOCK_STATION"
	FieldSecuritySeal      Field = "SECURITY_SEAL"
	FieldRCACable          Field = "RCA_CABLE"
	FieldExtraBattery      Field = "EXTRA_BATTERY"
	FieldExtraCharger      Field = "EXTRA_CHARGER"
	FieldMonitorPowerCable Field = "MONITOR_POWER_CABLE"
	FieldPowerSupply       Field = "POWER_SUPPLY"
	FieldHDMIAdapter       Field = "HDMI_ADAPTER"
)

// Column pairs a record field with the header used for it in the output workbook
type Column struct {
	Field  Field
	Header string
}

// Columns is the fixed, ordered header of the output table
var Columns = []Column{
	{FieldName, "NOME"},
	{FieldTerm, "TERMO"},
	{FieldStatus, "STATUS TERMO"},
	{FieldSigned, "ASSINADO"},
	{FieldType, "TIPO"},
	{FieldModel, "MODELO"},
	{FieldBrand, "MARCA"},
	{FieldSerial, "SERIAL"},
	{FieldMonitorModel, "MONITOR"},
	{FieldMonitorSerial, "SERIAL MONITOR"},
	{FieldAssetTag, "PATRIMÔNIO"},
	{FieldInvoice, "NF"},
	{FieldTicket, "CHAMADO"},
	{FieldHostname, "HOSTNAME"},
	{FieldMatricula, "MATRÍCULA"},
	{FieldRAM, "RAM"},
	{FieldStorage, "MEMÓRIA"},
	{FieldMouse, "MOUSE"},
	{FieldKeyboard, "TECLADO"},
	{FieldHeadset, "HEADSET"},
	{FieldWelcomeKit, "KIT BOAS-VINDAS"},
	{FieldWebcam, "WEBCAM"},
	{FieldUSBHub, "HUB USB"},
	{FieldErgonomicStand, "SUPORTE ERGONÔMICO"},
	{FieldSecurityCable, "CABO DE SEGURANÇA"},
	{FieldBackpack, "MOCHILA"},
	{FieldDockStation, "DOCK STATION"},
	{FieldSecuritySeal, "LACRE DE SEGURANÇA"},
	{FieldRCACable, "CABO RCA"},
	{FieldExtraBattery, "BATERIA EXTRA"},
	{FieldExtraCharger, "CARREGADOR EXTRA"},
	{FieldMonitorPowerCable, "CABO DE FORÇA DO MONITOR"},
	{FieldPowerSupply, "FONTE"},
	{FieldHDMIAdapter, "ADAPTADOR HDMI"},
}

// Record is the flat field mapping extracted from one span. Values are
// either string or bool; an absent key means the field was not found.
type Record map[Field]any

// NewRecord returns a record tagged with the given document type
func NewRecord(term DocType) Record {
	return Record{FieldTerm: string(term)}
}

// Term returns the document type label carried in TERM
func (r Record) Term() DocType {
	return DocType(r.String(FieldTerm))
}

// Status returns the validation outcome, empty if the record was never validated
func (r Record) Status() Status {
	return Status(r.String(FieldStatus))
}

// SetStatus records the validation outcome
func (r Record) SetStatus(s Status) {
	r[FieldStatus] = string(s)
}

// String returns the trimmed string value of a field. Booleans render as
// SIM/NÃO, which is how the flags appear in the output table.
func (r Record) String(f Field) string {
	switch v := r[f].(type) {
	case string:
		return strings.TrimSpace(v)
	case bool:
		if v {
			return "SIM"
		}
		return "NÃO"
	default:
		return ""
	}
}

// Bool reports whether a field holds a truthy value
func (r Record) Bool(f Field) bool {
	switch v := r[f].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "", "false", "0", "nao", "não", "no", "n":
			return false
		}
		return true
	default:
		return false
	}
}

// Has reports whether a field is present with a non-empty value
func (r Record) Has(f Field) bool {
	_, isBool := r[f].(bool)
	return isBool || r.String(f) != ""
}
