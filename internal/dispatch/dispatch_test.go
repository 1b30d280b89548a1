package dispatch_test

import (
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/iva/internal/dispatch"
)

var fixedNow = time.Date(2026, time.October, 19, 9, 5, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestDefault_Replies(t *testing.T) {
	t.Parallel()
	d := dispatch.Default(dispatch.WithClock(clock))

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "wake acknowledgement", text: "Iva", want: "Sim, estou aqui! Como posso ajudar?"},
		{name: "time", text: "que horas são", want: "Agora são 09:05"},
		{name: "date", text: "qual é a data de hoje", want: "Hoje é 19/10/2026"},
		{name: "case insensitive", text: "  QUE HORAS SÃO  ", want: "Agora são 09:05"},
		{name: "nothing matches", text: "toca uma música", want: "Não entendi o comando"},
		{name: "empty", text: "", want: "Não entendi o comando"},
		{name: "whitespace only", text: " \t ", want: "Não entendi o comando"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Dispatch(tt.text); got != tt.want {
				t.Errorf("Dispatch(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDispatch_FirstDeclaredRuleWins(t *testing.T) {
	t.Parallel()
	d := dispatch.Default(dispatch.WithClock(clock))

	// Contains both "iva" and "hora"; iva is declared first.
	r := d.Reply("iva, que horas são")
	if r.Trigger != "iva" || r.Index != 0 {
		t.Errorf("Reply = %+v, want the iva rule", r)
	}
	if r.Text != dispatch.WakeAck {
		t.Errorf("Text = %q, want %q", r.Text, dispatch.WakeAck)
	}

	// Reversing the declaration order reverses the winner.
	rev, err := dispatch.New([]dispatch.Rule{
		{Trigger: "hora", Response: dispatch.TimeReply},
		{Trigger: "iva", Response: dispatch.WakeAck},
	}, "", dispatch.WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := rev.Dispatch("iva, que horas são"); got != "Agora são 09:05" {
		t.Errorf("Dispatch = %q, want the hora rule", got)
	}
}

func TestDispatch_Deterministic(t *testing.T) {
	t.Parallel()
	d := dispatch.Default(dispatch.WithClock(clock))
	first := d.Dispatch("que horas são")
	for range 100 {
		if got := d.Dispatch("que horas são"); got != first {
			t.Fatalf("Dispatch not deterministic: %q then %q", first, got)
		}
	}
}

func TestReply_Fallback(t *testing.T) {
	t.Parallel()
	d := dispatch.Default()
	r := d.Reply("")
	if r.Matched() || r.Index != -1 || r.Trigger != "" {
		t.Errorf("Reply(\"\") = %+v, want fallback", r)
	}
}

func TestNew_TextTemplate(t *testing.T) {
	t.Parallel()
	d, err := dispatch.New([]dispatch.Rule{
		{Trigger: "repete", Response: "Você disse: {{.Text}}"},
	}, "Desculpe, {{.Text}}?")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := d.Dispatch("Repete isso"); got != "Você disse: repete isso" {
		t.Errorf("Dispatch = %q", got)
	}
	if got := d.Dispatch("bom dia"); got != "Desculpe, bom dia?" {
		t.Errorf("fallback = %q", got)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		rules    []dispatch.Rule
		fallback string
		wantErr  string
	}{
		{name: "empty trigger", rules: []dispatch.Rule{{Trigger: " ", Response: "x"}}, wantErr: "empty trigger"},
		{name: "parse error", rules: []dispatch.Rule{{Trigger: "a", Response: "{{.Time"}}, wantErr: "rule 0"},
		{name: "unknown field", rules: []dispatch.Rule{{Trigger: "a", Response: "{{.Weather}}"}}, wantErr: "Weather"},
		{name: "bad fallback", rules: dispatch.DefaultRules, fallback: "{{end}}", wantErr: "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := dispatch.New(tt.rules, tt.fallback)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	d := dispatch.Default()

	if err := d.Reload([]dispatch.Rule{{Trigger: "Luz", Response: "Acendendo a luz"}}, "Hã?"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !slices.Equal(d.Rules(), []string{"luz"}) {
		t.Errorf("Rules() = %v", d.Rules())
	}
	if got := d.Dispatch("acende a luz"); got != "Acendendo a luz" {
		t.Errorf("Dispatch = %q", got)
	}
	if got := d.Dispatch("iva"); got != "Hã?" {
		t.Errorf("old rules still active: %q", got)
	}

	// A broken table leaves the active one in place.
	if err := d.Reload([]dispatch.Rule{{Trigger: "", Response: "x"}}, ""); err == nil {
		t.Fatal("expected error")
	}
	if got := d.Dispatch("acende a luz"); got != "Acendendo a luz" {
		t.Errorf("table replaced despite error: %q", got)
	}

	// Empty rules restore the built-in table.
	if err := d.Reload(nil, ""); err != nil {
		t.Fatalf("Reload(nil): %v", err)
	}
	if !slices.Equal(d.Rules(), []string{"iva", "hora", "data"}) {
		t.Errorf("Rules() = %v", d.Rules())
	}
}

func TestDispatch_ConcurrentReload(t *testing.T) {
	t.Parallel()
	d := dispatch.Default()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			rules := dispatch.DefaultRules
			if i%2 == 0 {
				rules = []dispatch.Rule{{Trigger: "iva", Response: "Oi"}}
			}
			_ = d.Reload(rules, "")
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			if got := d.Dispatch("iva"); got != "Oi" && got != dispatch.WakeAck {
				t.Errorf("torn table: %q", got)
				return
			}
		}
	}()
	wg.Wait()
}
