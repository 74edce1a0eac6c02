package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/a3tai/handover-auditor/internal/handover"
)

// HostnameValidator checks a hostname against the machine registry. The
// matricula may be empty.
type HostnameValidator interface {
	ValidateHostname(ctx context.Context, hostname, matricula string) (bool, error)
}

// Result is the outcome of validating one record. Rule names the first
// failing rule; it is empty when the record passed or was never checked.
type Result struct {
	OK     bool     `json:"ok"`
	Rule   RuleName `json:"rule,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

type ruleFunc func(ctx context.Context, rec handover.Record) (bool, string)

var dashOnly = regexp.MustCompile(`^-+$`)
var zeroDigits = regexp.MustCompile(`^0+$`)

// Validator applies the per-TERM rule chains of a policy to records
type Validator struct {
	policy    Policy
	exempt    map[string]bool
	types     map[string]bool
	brands    map[string]bool
	bypass    map[string]bool
	zeroTkt   *regexp.Regexp
	validTkt  *regexp.Regexp
	hostnames HostnameValidator
	rules     map[RuleName]ruleFunc
	logger    *slog.Logger
}

// NewValidator compiles a policy. hv may be nil, in which case the hostname
// rule passes every record that carries a hostname.
func NewValidator(policy Policy, hv HostnameValidator, logger *slog.Logger) (*Validator, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	prefixes := make([]string, len(policy.TicketPrefixes))
	for i, p := range policy.TicketPrefixes {
		prefixes[i] = regexp.QuoteMeta(normalize(p))
	}
	alt := strings.Join(prefixes, "|")

	v := &Validator{
		policy:    policy,
		exempt:    toSet(policy.InvoiceExemptModels),
		types:     toSet(policy.AllowedTypes),
		brands:    toSet(policy.AllowedBrands),
		bypass:    toSet(policy.TicketBypass),
		zeroTkt:   regexp.MustCompile(`^(` + alt + `)0*$`),
		validTkt:  regexp.MustCompile(`^(` + alt + `)\d+$`),
		hostnames: hv,
		logger:    logger,
	}
	v.rules = map[RuleName]ruleFunc{
		RuleInvoice:   v.checkInvoice,
		RuleSignature: v.checkSignature,
		RuleMonitor:   v.checkMonitor,
		RuleTypeBrand: v.checkTypeBrand,
		RuleHostname:  v.checkHostname,
		RuleTicket:    v.checkTicket,
	}
	return v, nil
}

// Policy returns the policy the validator was built from
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate runs the chain selected by the record's TERM and stores OK or
// ERROR in STATUS_TERM. It never panics; any internal failure marks the
// record ERROR.
func (v *Validator) Validate(ctx context.Context, rec handover.Record) (res Result) {
	if rec == nil {
		return Result{Reason: "empty record"}
	}

	defer func() {
		if p := recover(); p != nil {
			v.logger.Error("validate.panic", "term", string(rec.Term()), "rule", string(res.Rule), "panic", fmt.Sprint(p))
			res = Result{Rule: res.Rule, Reason: fmt.Sprintf("internal error: %v", p)}
			rec.SetStatus(handover.StatusError)
		}
	}()

	term := rec.Term()
	if term == handover.DocTypeUnknown || term == "" {
		rec.SetStatus(v.policy.UnknownStatus)
		return Result{OK: v.policy.UnknownStatus == handover.StatusOK, Reason: "no handover document recognised"}
	}

	chain, ok := v.policy.Chains[term]
	if !ok {
		rec.SetStatus(handover.StatusError)
		return Result{Reason: fmt.Sprintf("no rule chain for %s", term)}
	}

	for _, name := range chain {
		res.Rule = name
		passed, reason := v.rules[name](ctx, rec)
		if !passed {
			rec.SetStatus(handover.StatusError)
			v.logger.Debug("validate.failed", "term", string(term), "rule", string(name), "reason", reason)
			return Result{Rule: name, Reason: reason}
		}
	}

	rec.SetStatus(handover.StatusOK)
	return Result{OK: true}
}

func (v *Validator) checkInvoice(_ context.Context, rec handover.Record) (bool, string) {
	if v.exempt[normalize(rec.String(handover.FieldModel))] {
		return true, ""
	}
	invoice := strings.Join(strings.Fields(rec.String(handover.FieldInvoice)), "")
	switch {
	case invoice == "":
		return false, "invoice missing"
	case zeroDigits.MatchString(invoice):
		return false, "invoice number is zero"
	}
	return true, ""
}

func (v *Validator) checkSignature(_ context.Context, rec handover.Record) (bool, string) {
	if !rec.Bool(handover.FieldSigned) {
		return false, "document not signed"
	}
	return true, ""
}

func (v *Validator) checkMonitor(_ context.Context, rec handover.Record) (bool, string) {
	model := rec.String(handover.FieldMonitorModel)
	if model == "" || dashOnly.MatchString(model) {
		return true, ""
	}
	serial := rec.String(handover.FieldMonitorSerial)
	if serial == "" || dashOnly.MatchString(serial) {
		return false, "monitor listed without serial"
	}
	return true, ""
}

func (v *Validator) checkTypeBrand(_ context.Context, rec handover.Record) (bool, string) {
	t := normalize(rec.String(handover.FieldType))
	if !v.types[t] {
		return false, fmt.Sprintf("equipment type %q not allowed", t)
	}
	b := normalize(rec.String(handover.FieldBrand))
	if !v.brands[b] {
		return false, fmt.Sprintf("brand %q not allowed", b)
	}
	return true, ""
}

// checkHostname asks the registry about the hostname. The call is bounded by
// the policy timeout and any error, timeout or panic counts as a failure.
func (v *Validator) checkHostname(ctx context.Context, rec handover.Record) (bool, string) {
	host := rec.String(handover.FieldHostname)
	if host == "" {
		return false, "hostname missing"
	}
	if v.hostnames == nil {
		return true, ""
	}

	if v.policy.HostnameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.policy.HostnameTimeout)
		defer cancel()
	}

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- answer{err: fmt.Errorf("hostname validator panic: %v", p)}
			}
		}()
		ok, err := v.hostnames.ValidateHostname(ctx, host, rec.String(handover.FieldMatricula))
		done <- answer{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		v.logger.Warn("validate.hostname.timeout", "hostname", host, "error", ctx.Err())
		return false, fmt.Sprintf("hostname lookup aborted: %v", ctx.Err())
	case a := <-done:
		if a.err != nil {
			v.logger.Warn("validate.hostname.error", "hostname", host, "error", a.err)
			return false, fmt.Sprintf("hostname lookup failed: %v", a.err)
		}
		if !a.ok {
			return false, fmt.Sprintf("hostname %s not registered", host)
		}
		return true, ""
	}
}

func (v *Validator) checkTicket(_ context.Context, rec handover.Record) (bool, string) {
	ticket := strings.ToUpper(strings.Join(strings.Fields(rec.String(handover.FieldTicket)), ""))
	switch {
	case ticket == "":
		return false, "ticket missing"
	case v.bypass[normalize(ticket)]:
		return true, ""
	case v.zeroTkt.MatchString(ticket):
		return false, fmt.Sprintf("ticket %s has no number", ticket)
	case v.validTkt.MatchString(ticket):
		return true, ""
	}
	return false, fmt.Sprintf("ticket %s is not a request or incident", ticket)
}
