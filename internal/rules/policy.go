package rules

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/handover-auditor/internal/handover"
)

// RuleName identifies one rule of a validation chain
type RuleName string

const (
	RuleInvoice   RuleName = "invoice"
	RuleSignature RuleName = "signature"
	RuleMonitor   RuleName = "monitor"
	RuleTypeBrand RuleName = "type_brand"
	RuleHostname  RuleName = "hostname"
	RuleTicket    RuleName = "ticket"
)

// AllRules lists the known rules in canonical evaluation order
func AllRules() []RuleName {
	return []RuleName{RuleInvoice, RuleSignature, RuleMonitor, RuleTypeBrand, RuleHostname, RuleTicket}
}

// Policy is the business rule set applied by the validator. Every list is
// compared after accent/case folding and whitespace collapsing.
type Policy struct {
	// Models that are delivered without an invoice
	InvoiceExemptModels []string `yaml:"invoice_exempt_models" json:"invoiceExemptModels"`
	AllowedTypes        []string `yaml:"allowed_types" json:"allowedTypes"`
	AllowedBrands       []string `yaml:"allowed_brands" json:"allowedBrands"`
	// Ticket values accepted without a REQ/INC number
	TicketBypass   []string `yaml:"ticket_bypass" json:"ticketBypass"`
	TicketPrefixes []string `yaml:"ticket_prefixes" json:"ticketPrefixes"`

	// Chains maps a TERM to the rules evaluated for it, in order
	Chains map[handover.DocType][]RuleName `yaml:"chains" json:"chains"`

	// UnknownStatus is stored on records whose document had no anchors
	UnknownStatus   handover.Status `yaml:"unknown_status" json:"unknownStatus"`
	HostnameTimeout time.Duration   `yaml:"hostname_timeout" json:"hostnameTimeout"`
}

// DefaultPolicy returns the canonical rule set
func DefaultPolicy() Policy {
	return Policy{
		InvoiceExemptModels: []string{
			"OPTIPLEX 7070", "LATITUDE 7400", "LATITUDE 5400", "LATITUDE 5420",
			"7070", "7400", "5400", "5420",
		},
		AllowedTypes:   []string{"DESKTOP", "MINIDESK", "MINIDESKTOP", "NOTEBOOK"},
		AllowedBrands:  []string{"DELL", "LENOVO", "HP", "ACER", "ASUS", "SAMSUNG", "POSITIVO", "APPLE"},
		TicketBypass:   []string{"ROLLOUT", "ROLOUT"},
		TicketPrefixes: []string{"REQ", "INC"},
		Chains: map[handover.DocType][]RuleName{
			handover.DocTypeConcession: {RuleInvoice, RuleSignature, RuleMonitor, RuleTypeBrand, RuleHostname, RuleTicket},
			handover.DocTypeReturn:     {RuleInvoice, RuleSignature, RuleMonitor, RuleTypeBrand},
			handover.DocTypeRAT:        {RuleInvoice, RuleSignature, RuleMonitor},
		},
		UnknownStatus:   handover.StatusError,
		HostnameTimeout: 10 * time.Second,
	}
}

// LoadPolicy reads a YAML policy file on top of the defaults. Keys missing
// from the file keep their default value; a chain listed in the file
// replaces the default chain for that TERM only.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the policy for unknown rule names and statuses
func (p Policy) Validate() error {
	known := make(map[RuleName]bool)
	for _, r := range AllRules() {
		known[r] = true
	}

	for term, chain := range p.Chains {
		if !term.IsValid() || term == handover.DocTypeUnknown {
			return fmt.Errorf("chain for unsupported term %q", term)
		}
		for _, r := range chain {
			if !known[r] {
				return fmt.Errorf("unknown rule %q in %s chain", r, term)
			}
		}
	}

	switch p.UnknownStatus {
	case handover.StatusOK, handover.StatusError:
	default:
		return fmt.Errorf("unknown_status must be OK or ERROR, got %q", p.UnknownStatus)
	}

	if p.HostnameTimeout < 0 {
		return fmt.Errorf("hostname_timeout must not be negative")
	}
	if len(p.TicketPrefixes) == 0 {
		return fmt.Errorf("at least one ticket prefix is required")
	}
	return nil
}

// normalize folds accents and case and collapses whitespace so "optiplex
// 7070" and "OptiPlex  7070" compare equal.
func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(handover.Fold(s)), " "))
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[normalize(v)] = true
	}
	return set
}
