// Package dispatch maps a recognised command to a canned reply.
//
// A [Dispatcher] holds an ordered rule table. Each rule is a trigger
// substring and a response template; the first rule whose trigger occurs in
// the lowercased text wins, and text that matches nothing gets the fallback.
// Responses are text/template strings rendered with [Data], so a reply can
// say the current time or echo the command.
//
// The table can be swapped at runtime with [Dispatcher.Reload]; a Dispatch
// in progress always sees one complete table.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"text/template"
	"time"
)

// Built-in replies used by [Default].
const (
	WakeAck      = "Sim, estou aqui! Como posso ajudar?"
	TimeReply    = "Agora são {{.Time}}"
	DateReply    = "Hoje é {{.Date}}"
	FallbackText = "Não entendi o comando"
)

// DefaultRules is the built-in rule table: wake acknowledgement, then time,
// then date.
var DefaultRules = []Rule{
	{Trigger: "iva", Response: WakeAck},
	{Trigger: "hora", Response: TimeReply},
	{Trigger: "data", Response: DateReply},
}

// Rule maps a trigger substring to a response template.
type Rule struct {
	Trigger  string
	Response string
}

// Data is the template context of a response.
type Data struct {
	// Time is the local wall-clock time as HH:MM.
	Time string
	// Date is the local date as DD/MM/YYYY.
	Date string
	// Text is the normalised command text.
	Text string
}

// Reply is the outcome of one dispatch.
type Reply struct {
	// Text is the rendered response.
	Text string
	// Trigger is the trigger of the matching rule, or "" for the fallback.
	Trigger string
	// Index is the position of the matching rule, or -1 for the fallback.
	Index int
}

// Matched reports whether a rule (rather than the fallback) produced r.
func (r Reply) Matched() bool { return r.Index >= 0 }

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithClock sets the time source used for .Time and .Date.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

type compiledRule struct {
	trigger string
	tmpl    *template.Template
}

type table struct {
	rules    []compiledRule
	fallback *template.Template
}

// Dispatcher resolves command text to a response. It is safe for
// concurrent use.
type Dispatcher struct {
	now   func() time.Time
	table atomic.Pointer[table]
}

// New compiles rules and fallback into a Dispatcher. Triggers are matched
// case-insensitively; an empty trigger is an error. An empty fallback
// selects [FallbackText].
func New(rules []Rule, fallback string, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{now: time.Now}
	for _, o := range opts {
		o(d)
	}
	if err := d.Reload(rules, fallback); err != nil {
		return nil, err
	}
	return d, nil
}

// Default returns a Dispatcher with [DefaultRules] and [FallbackText].
func Default(opts ...Option) *Dispatcher {
	d, err := New(DefaultRules, FallbackText, opts...)
	if err != nil {
		panic(fmt.Sprintf("dispatch: built-in rules do not compile: %v", err))
	}
	return d
}

// Reload replaces the rule table. On error the previous table stays active.
// A nil or empty rules slice selects [DefaultRules].
func (d *Dispatcher) Reload(rules []Rule, fallback string) error {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if fallback == "" {
		fallback = FallbackText
	}

	var errs []error
	t := &table{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		trigger := strings.ToLower(strings.TrimSpace(r.Trigger))
		if trigger == "" {
			errs = append(errs, fmt.Errorf("dispatch: rule %d: empty trigger", i))
			continue
		}
		tmpl, err := compile(fmt.Sprintf("rule-%d", i), r.Response)
		if err != nil {
			errs = append(errs, fmt.Errorf("dispatch: rule %d (%q): %w", i, r.Trigger, err))
			continue
		}
		t.rules = append(t.rules, compiledRule{trigger: trigger, tmpl: tmpl})
	}
	fb, err := compile("fallback", fallback)
	if err != nil {
		errs = append(errs, fmt.Errorf("dispatch: fallback: %w", err))
	}
	t.fallback = fb

	if err := errors.Join(errs...); err != nil {
		return err
	}
	d.table.Store(t)
	return nil
}

// compile parses src and executes it once against sample data so that
// references to unknown fields fail here rather than at dispatch time.
func compile(name, src string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, err
	}
	if err := tmpl.Execute(&strings.Builder{}, Data{}); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Normalize lowercases text and trims surrounding whitespace.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Dispatch returns the response for text.
func (d *Dispatcher) Dispatch(text string) string {
	return d.Reply(text).Text
}

// Reply resolves text and reports which rule produced the response.
// The first rule in declared order whose trigger is a substring of the
// normalised text wins. Empty text always gets the fallback.
func (d *Dispatcher) Reply(text string) Reply {
	t := d.table.Load()
	norm := Normalize(text)
	now := d.now()
	data := Data{
		Time: now.Format("15:04"),
		Date: now.Format("02/01/2006"),
		Text: norm,
	}

	if norm != "" {
		for i, r := range t.rules {
			if strings.Contains(norm, r.trigger) {
				return Reply{Text: render(r.tmpl, data), Trigger: r.trigger, Index: i}
			}
		}
	}
	return Reply{Text: render(t.fallback, data), Index: -1}
}

// Rules returns the active triggers in match order.
func (d *Dispatcher) Rules() []string {
	t := d.table.Load()
	out := make([]string, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.trigger
	}
	return out
}

func render(tmpl *template.Template, data Data) string {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		slog.Warn("dispatch: render response", "template", tmpl.Name(), "err", err)
		return ""
	}
	return b.String()
}
