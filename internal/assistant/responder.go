package assistant

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/workflow"
)

const anyStageIndex = -1

var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
}

// Reply is the responder's decision for a single turn.
type Reply struct {
	Text        string
	StageIndex  int
	Suggestions []string
	RuleID      string
	Advanced    bool
}

type replyData struct {
	Stage domain.Stage
	Next  domain.Stage
	Input string
}

type compiledRule struct {
	rule     Rule
	stage    int
	keywords []string
	tmpl     *template.Template
}

func (c compiledRule) appliesTo(stage int) bool {
	return c.stage == anyStageIndex || c.stage == stage
}

func (c compiledRule) matches(input string) bool {
	for _, k := range c.keywords {
		if strings.Contains(input, k) {
			return true
		}
	}
	return false
}

// Responder picks the assistant reply and the next stage from a fixed rule
// table. It holds no mutable state and is safe for concurrent use.
type Responder struct {
	catalog  *workflow.Catalog
	greeting *template.Template
	fallback *template.Template
	rules    []compiledRule
}

// NewResponder compiles and validates the rule table against the catalog.
func NewResponder(catalog *workflow.Catalog, table Table) (*Responder, error) {
	if catalog == nil {
		return nil, errors.New("assistant: catalog must not be nil")
	}

	greeting, err := compileTemplate(RuleGreeting, table.Greeting)
	if err != nil {
		return nil, err
	}
	fallback, err := compileTemplate(RuleFallback, table.Fallback)
	if err != nil {
		return nil, err
	}

	r := &Responder{
		catalog:  catalog,
		greeting: greeting,
		fallback: fallback,
		rules:    make([]compiledRule, 0, len(table.Rules)),
	}

	seen := map[string]bool{RuleGreeting: true, RuleFallback: true}
	for i, rule := range table.Rules {
		c, err := compileRule(catalog, rule)
		if err != nil {
			return nil, fmt.Errorf("assistant: rule %d: %w", i, err)
		}
		if seen[c.rule.ID] {
			return nil, fmt.Errorf("assistant: rule %d: duplicate or reserved id %q", i, c.rule.ID)
		}
		seen[c.rule.ID] = true
		r.rules = append(r.rules, c)
	}

	// Dry-run every template against each stage it can fire on.
	for i := 0; i < catalog.Len(); i++ {
		if _, err := r.render(greeting, i, ""); err != nil {
			return nil, err
		}
		if _, err := r.render(fallback, i, ""); err != nil {
			return nil, err
		}
		for _, c := range r.rules {
			if !c.appliesTo(i) {
				continue
			}
			if _, err := r.render(c.tmpl, i, ""); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Rules returns the compiled table in evaluation order.
func (r *Responder) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, c := range r.rules {
		out[i] = c.rule
		out[i].Keywords = append([]string(nil), c.rule.Keywords...)
	}
	return out
}

// Respond decides the reply for the latest user message in history. The stage
// index is clamped into the catalog; the result is a function of its inputs
// only.
func (r *Responder) Respond(history []domain.ChatMessage, stageIndex int) (Reply, error) {
	current := r.catalog.Clamp(stageIndex)

	input, ok := latestUserMessage(history)
	if !ok {
		return r.reply(r.greeting, RuleGreeting, current, false, "")
	}

	normalized := normalize(input)
	for _, c := range r.rules {
		if c.appliesTo(current) && c.matches(normalized) {
			return r.reply(c.tmpl, c.rule.ID, current, c.rule.Advances, input)
		}
	}
	return r.reply(r.fallback, RuleFallback, current, false, input)
}

func (r *Responder) reply(tmpl *template.Template, ruleID string, current int, advances bool, input string) (Reply, error) {
	text, err := r.render(tmpl, current, input)
	if err != nil {
		return Reply{}, err
	}
	next := current
	if advances {
		next = r.catalog.Clamp(current + 1)
	}
	return Reply{
		Text:        text,
		StageIndex:  next,
		Suggestions: r.catalog.Prompts(next),
		RuleID:      ruleID,
		Advanced:    next != current,
	}, nil
}

func (r *Responder) render(tmpl *template.Template, current int, input string) (string, error) {
	stage, err := r.catalog.Stage(current)
	if err != nil {
		return "", fmt.Errorf("assistant: render %s: %w", tmpl.Name(), err)
	}
	next, err := r.catalog.Stage(r.catalog.Clamp(current + 1))
	if err != nil {
		return "", fmt.Errorf("assistant: render %s: %w", tmpl.Name(), err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, replyData{Stage: stage, Next: next, Input: input}); err != nil {
		return "", fmt.Errorf("assistant: render %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func compileRule(catalog *workflow.Catalog, rule Rule) (compiledRule, error) {
	rule.ID = strings.TrimSpace(rule.ID)
	if rule.ID == "" {
		return compiledRule{}, errors.New("id must not be empty")
	}

	stage := anyStageIndex
	if rule.Stage != AnyStage {
		i, ok := catalog.Index(rule.Stage)
		if !ok {
			return compiledRule{}, fmt.Errorf("%s: unknown stage %q", rule.ID, rule.Stage)
		}
		stage = i
	}

	keywords := make([]string, 0, len(rule.Keywords))
	for _, k := range rule.Keywords {
		if k = normalize(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return compiledRule{}, fmt.Errorf("%s: at least one keyword is required", rule.ID)
	}

	tmpl, err := compileTemplate(rule.ID, rule.Reply)
	if err != nil {
		return compiledRule{}, err
	}
	return compiledRule{rule: rule, stage: stage, keywords: keywords, tmpl: tmpl}, nil
}

func compileTemplate(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("assistant: %s: reply must not be empty", name)
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("assistant: %s: parse reply: %w", name, err)
	}
	return tmpl, nil
}

func latestUserMessage(history []domain.ChatMessage) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if !strings.EqualFold(strings.TrimSpace(m.Role), domain.RoleUser) {
			continue
		}
		if content := strings.TrimSpace(m.Content); content != "" {
			return content, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
