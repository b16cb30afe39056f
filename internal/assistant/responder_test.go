package assistant

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/workflow"
)

func newTestResponder(t *testing.T) (*Responder, *workflow.Catalog) {
	t.Helper()
	catalog := workflow.Default()
	r, err := NewResponder(catalog, DefaultRules())
	require.NoError(t, err)
	return r, catalog
}

func user(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleUser, Content: content}
}

func assistantMsg(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleAssistant, Content: content}
}

func mustRespond(t *testing.T, r *Responder, history []domain.ChatMessage, stage int) Reply {
	t.Helper()
	out, err := r.Respond(history, stage)
	require.NoError(t, err)
	return out
}

func TestRespond_EmptyHistory_GreetsCurrentStage(t *testing.T) {
	r, catalog := newTestResponder(t)

	out := mustRespond(t, r, nil, 0)
	require.Equal(t, 0, out.StageIndex)
	require.Equal(t, RuleGreeting, out.RuleID)
	require.Contains(t, out.Text, "Borrower Intake")
	require.Equal(t, catalog.Prompts(0), out.Suggestions)
	require.False(t, out.Advanced)
}

func TestRespond_OnlyAssistantMessages_GreetsCurrentStage(t *testing.T) {
	r, _ := newTestResponder(t)

	out := mustRespond(t, r, []domain.ChatMessage{assistantMsg("Hi there"), user("   ")}, 2)
	require.Equal(t, RuleGreeting, out.RuleID)
	require.Equal(t, 2, out.StageIndex)
	require.Contains(t, out.Text, "Pre-Approval")
}

func TestRespond_StageZeroTrigger_AdvancesToDocuments(t *testing.T) {
	r, catalog := newTestResponder(t)

	out := mustRespond(t, r, []domain.ChatMessage{user("Summarize the intake and move to documents")}, 0)
	require.Equal(t, 1, out.StageIndex)
	require.True(t, out.Advanced)
	require.Equal(t, "intake.complete", out.RuleID)
	require.Equal(t, catalog.Prompts(1), out.Suggestions)
	require.Contains(t, out.Text, "Document Collection")
}

func TestRespond_NonAdvancingRule_KeepsCurrentPrompts(t *testing.T) {
	r, catalog := newTestResponder(t)

	out := mustRespond(t, r, []domain.ChatMessage{user("What should I ask a FIRST-TIME   buyer?")}, 0)
	require.Equal(t, "intake.first_time_buyer", out.RuleID)
	require.Equal(t, 0, out.StageIndex)
	require.Equal(t, catalog.Prompts(0), out.Suggestions)
}

func TestRespond_UsesLatestUserMessage(t *testing.T) {
	r, _ := newTestResponder(t)

	history := []domain.ChatMessage{
		user("Summarize the intake and move to documents"),
		assistantMsg("Intake captured."),
		user("What should I ask a first-time buyer?"),
		assistantMsg("Ask about down payment."),
	}
	out := mustRespond(t, r, history, 0)
	require.Equal(t, "intake.first_time_buyer", out.RuleID)
}

func TestRespond_NoMatch_FallsBackWithoutAdvancing(t *testing.T) {
	r, catalog := newTestResponder(t)

	out := mustRespond(t, r, []domain.ChatMessage{user("The borrower likes dogs")}, 3)
	require.Equal(t, RuleFallback, out.RuleID)
	require.Equal(t, 3, out.StageIndex)
	require.Equal(t, catalog.Prompts(3), out.Suggestions)
	require.Contains(t, out.Text, "Processing & Underwriting")
	require.Contains(t, out.Text, "Build the processor kickoff packet")
}

func TestRespond_Clamping(t *testing.T) {
	r, catalog := newTestResponder(t)
	histories := [][]domain.ChatMessage{
		nil,
		{user("next stage")},
		{user("where are we?")},
		{user("something unrelated")},
	}

	for _, h := range histories {
		low := mustRespond(t, r, h, -1)
		require.Equal(t, mustRespond(t, r, h, 0), low)

		high := mustRespond(t, r, h, catalog.Len())
		require.Equal(t, mustRespond(t, r, h, catalog.Len()-1), high)

		require.Equal(t, mustRespond(t, r, h, 0), mustRespond(t, r, h, -1000))
	}
}

func TestRespond_StageIndexAlwaysInRange(t *testing.T) {
	r, catalog := newTestResponder(t)

	inputs := []string{"", "next stage", "continue", "documents are complete", "conditions cleared", "nurture", "random"}
	for stage := 0; stage < catalog.Len(); stage++ {
		for _, in := range inputs {
			out := mustRespond(t, r, []domain.ChatMessage{user(in)}, stage)
			require.GreaterOrEqual(t, out.StageIndex, 0)
			require.Less(t, out.StageIndex, catalog.Len())
			require.NotEmpty(t, out.Text)
			require.NotEmpty(t, out.Suggestions)
		}
	}
}

func TestRespond_Deterministic(t *testing.T) {
	r, _ := newTestResponder(t)
	history := []domain.ChatMessage{user("Check DTI and LTV ratios")}

	first := mustRespond(t, r, history, 2)
	second := mustRespond(t, r, history, 2)
	require.Equal(t, first, second)

	first.Suggestions[0] = "mutated"
	require.NotEqual(t, "mutated", mustRespond(t, r, history, 2).Suggestions[0])
}

func TestRespond_FinalStageNeverAdvances(t *testing.T) {
	r, catalog := newTestResponder(t)
	last := catalog.Len() - 1

	out := mustRespond(t, r, []domain.ChatMessage{user("next stage")}, last)
	require.Equal(t, "closing.final", out.RuleID)
	require.Equal(t, last, out.StageIndex)
	require.False(t, out.Advanced)
}

func TestRespond_GlobalAdvance(t *testing.T) {
	r, catalog := newTestResponder(t)

	out := mustRespond(t, r, []domain.ChatMessage{user("Let's move on")}, 1)
	require.Equal(t, "any.advance", out.RuleID)
	require.Equal(t, 2, out.StageIndex)
	require.Equal(t, catalog.Prompts(2), out.Suggestions)
	require.Contains(t, out.Text, "Wrapping up Document Collection")
}

// Every suggested prompt must be answered by a rule for its own stage, so
// clicking a suggestion never lands on the fallback.
func TestDefaultRules_EveryPromptHasARule(t *testing.T) {
	r, catalog := newTestResponder(t)

	for i, stage := range catalog.Stages() {
		for _, prompt := range stage.Prompts {
			out := mustRespond(t, r, []domain.ChatMessage{user(prompt)}, i)
			require.NotEqual(t, RuleFallback, out.RuleID, "stage=%s prompt=%q", stage.ID, prompt)
		}
		last := stage.Prompts[len(stage.Prompts)-1]
		if i < catalog.Len()-1 {
			out := mustRespond(t, r, []domain.ChatMessage{user(last)}, i)
			require.True(t, out.Advanced, "stage=%s prompt=%q", stage.ID, last)
		}
	}
}

func TestDefaultRules_EveryRuleReachableByFirstKeyword(t *testing.T) {
	r, catalog := newTestResponder(t)

	for _, rule := range r.Rules() {
		stage := 0
		if rule.Stage != AnyStage {
			var ok bool
			stage, ok = catalog.Index(rule.Stage)
			require.True(t, ok)
		}
		out := mustRespond(t, r, []domain.ChatMessage{user(rule.Keywords[0])}, stage)
		require.Equal(t, rule.ID, out.RuleID, "keyword=%q", rule.Keywords[0])

		wantStage := stage
		if rule.Advances {
			wantStage = catalog.Clamp(stage + 1)
		}
		require.Equal(t, wantStage, out.StageIndex, "rule=%s", rule.ID)
	}
}

func TestNewResponder_Validation(t *testing.T) {
	catalog := workflow.Default()
	valid := func() Table { return DefaultRules() }

	cases := []struct {
		name   string
		mutate func(*Table)
		want   string
	}{
		{name: "empty greeting", mutate: func(tb *Table) { tb.Greeting = "" }, want: "greeting"},
		{name: "bad fallback template", mutate: func(tb *Table) { tb.Fallback = "{{.Stage" }, want: "parse reply"},
		{name: "unknown field", mutate: func(tb *Table) { tb.Rules[0].Reply = "{{.Borrower}}" }, want: "render"},
		{name: "empty id", mutate: func(tb *Table) { tb.Rules[0].ID = " " }, want: "id must not be empty"},
		{name: "duplicate id", mutate: func(tb *Table) { tb.Rules[1].ID = tb.Rules[0].ID }, want: "duplicate"},
		{name: "reserved id", mutate: func(tb *Table) { tb.Rules[0].ID = RuleFallback }, want: "reserved"},
		{name: "unknown stage", mutate: func(tb *Table) { tb.Rules[0].Stage = "appraisal" }, want: "unknown stage"},
		{name: "no keywords", mutate: func(tb *Table) { tb.Rules[0].Keywords = []string{" "} }, want: "keyword"},
		{name: "empty reply", mutate: func(tb *Table) { tb.Rules[0].Reply = "" }, want: "reply must not be empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tb := valid()
			tc.mutate(&tb)
			_, err := NewResponder(catalog, tb)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := NewResponder(nil, valid())
	require.Error(t, err)
}

func TestParseRules(t *testing.T) {
	table, err := ParseRules([]byte(`{
		"greeting": "Hello from {{.Stage.Title}}",
		"fallback": "Still on {{.Stage.Title}}",
		"rules": [
			{"id": "go", "stage": "intake", "keywords": ["go"], "reply": "Off to {{.Next.Title}}", "advances": true}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, table.Rules, 1)
	require.True(t, table.Rules[0].Advances)

	r, err := NewResponder(workflow.Default(), table)
	require.NoError(t, err)
	out, err := r.Respond([]domain.ChatMessage{user("Go")}, 0)
	require.NoError(t, err)
	require.Equal(t, "Off to Document Collection", out.Text)
	require.Equal(t, 1, out.StageIndex)

	_, err = ParseRules([]byte(`[]`))
	require.Error(t, err)
}

func TestParseRules_YAML(t *testing.T) {
	table, err := ParseRules([]byte(`
greeting: "Hello from {{.Stage.Title}}"
fallback: "Still on {{.Stage.Title}}"
rules:
  - id: go
    stage: intake
    keywords: [go, proceed]
    reply: "Off to {{.Next.Title}}"
    advances: true
`))
	require.NoError(t, err)
	require.Len(t, table.Rules, 1)
	require.Equal(t, []string{"go", "proceed"}, table.Rules[0].Keywords)

	r, err := NewResponder(workflow.Default(), table)
	require.NoError(t, err)
	out, err := r.Respond([]domain.ChatMessage{user("please proceed")}, 0)
	require.NoError(t, err)
	require.Equal(t, "Off to Document Collection", out.Text)
	require.Equal(t, "go", out.RuleID)
}
