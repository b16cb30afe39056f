package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Stage value matching every stage.
const AnyStage = ""

// Rule ids reserved for replies that are not driven by the table.
const (
	RuleGreeting = "greeting"
	RuleFallback = "fallback"
)

// Rule is one row of the reply table. A rule fires when the conversation is
// on Stage (or any stage for AnyStage) and the latest user message contains
// any of the Keywords. Reply is a text/template rendered with .Stage, .Next
// and .Input.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Stage    string   `json:"stage" yaml:"stage"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Reply    string   `json:"reply" yaml:"reply"`
	Advances bool     `json:"advances" yaml:"advances"`
}

type rulesDocument struct {
	Greeting string `json:"greeting" yaml:"greeting"`
	Fallback string `json:"fallback" yaml:"fallback"`
	Rules    []Rule `json:"rules" yaml:"rules"`
}

// Table is the full reply configuration: the ordered rules plus the replies
// used when there is no user message or no rule matches.
type Table struct {
	Greeting string
	Fallback string
	Rules    []Rule
}

// ParseRules decodes a rule table of the form
// {"greeting": "...", "fallback": "...", "rules": [...]}, as JSON when the
// input starts with '{' and as YAML otherwise.
func ParseRules(raw []byte) (Table, error) {
	var doc rulesDocument
	var err error
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return Table{}, fmt.Errorf("assistant: decode rules: %w", err)
	}
	return Table(doc), nil
}

// DefaultRules is the built-in reply table for the default mortgage workflow.
// Rules are evaluated in order; the first match wins.
func DefaultRules() Table {
	return Table{
		Greeting: "We're on {{.Stage.Title}}: {{.Stage.Summary}} " +
			"Tell me about the borrower or pick a suggestion to keep moving.",
		Fallback: "Noted for {{.Stage.Title}}. I can help with: {{join .Stage.Prompts \"; \"}}. " +
			"Say \"next stage\" when you're ready to move on.",
		Rules: []Rule{
			// intake
			{
				ID:       "intake.start",
				Stage:    "intake",
				Keywords: []string{"start a new borrower intake", "new borrower", "new intake"},
				Reply: "Let's open the file. Capture the borrower's purchase goals, target timeline, " +
					"household income sources, and the property type. Share what you have and I'll flag gaps.",
			},
			{
				ID:       "intake.first_time_buyer",
				Stage:    "intake",
				Keywords: []string{"first-time buyer", "first time buyer"},
				Reply: "For a first-time buyer ask about: down payment source and gift funds, " +
					"employment history for the last two years, monthly debts, credit history, " +
					"and whether they qualify for down payment assistance programs.",
			},
			{
				ID:       "intake.complete",
				Stage:    "intake",
				Keywords: []string{"summarize the intake", "intake complete", "intake is complete", "move to documents"},
				Reply: "Intake captured. Moving to {{.Next.Title}}: {{.Next.Summary}} " +
					"I'll tailor the checklist to the income and asset profile from intake.",
				Advances: true,
			},
			// documents
			{
				ID:       "documents.checklist",
				Stage:    "documents",
				Keywords: []string{"checklist", "which documents", "what documents"},
				Reply: "Standard stack: last 30 days of pay stubs, two years of W-2s, two months of bank statements " +
					"for every account, a government ID, and gift letters if any funds are gifted. " +
					"Self-employed borrowers add two years of tax returns.",
			},
			{
				ID:       "documents.nudge",
				Stage:    "documents",
				Keywords: []string{"nudge", "missing", "outstanding", "reminder"},
				Reply: "Draft nudge: \"Hi! We're close to your pre-approval. We still need your most recent " +
					"documents to finish the file. Upload them to the portal today and we'll take it from there.\" " +
					"Send it by text and email, then follow up in 48 hours.",
			},
			{
				ID:       "documents.complete",
				Stage:    "documents",
				Keywords: []string{"documents are complete", "docs are complete", "run pre-approval", "stack is complete"},
				Reply:    "Document stack complete. Moving to {{.Next.Title}}: {{.Next.Summary}}",
				Advances: true,
			},
			// preapproval
			{
				ID:       "preapproval.ratios",
				Stage:    "preapproval",
				Keywords: []string{"dti", "ltv", "ratio"},
				Reply: "Ratio check: keep front-end DTI under 28% and back-end DTI under 43% for conventional loans; " +
					"LTV above 80% triggers mortgage insurance. I'll alert you when a ratio crosses a program limit.",
			},
			{
				ID:       "preapproval.pricing",
				Stage:    "preapproval",
				Keywords: []string{"rate", "points", "pricing"},
				Reply: "Compare par pricing against buying down with points: divide the point cost by the monthly " +
					"savings to get the break-even in months, then match it to how long the borrower expects to keep the loan.",
			},
			{
				ID:       "preapproval.issue",
				Stage:    "preapproval",
				Keywords: []string{"pre-approval brief", "issue the pre-approval", "preapproval brief", "pre-approved"},
				Reply: "Pre-approval brief issued with the qualifying ratios and pricing summary. " +
					"Moving to {{.Next.Title}}: {{.Next.Summary}}",
				Advances: true,
			},
			// processing
			{
				ID:       "processing.cleared",
				Stage:    "processing",
				Keywords: []string{"conditions cleared", "clear to close", "schedule closing"},
				Reply:    "Conditions cleared. Moving to {{.Next.Title}}: {{.Next.Summary}}",
				Advances: true,
			},
			{
				ID:       "processing.kickoff",
				Stage:    "processing",
				Keywords: []string{"kickoff", "kick off", "processor"},
				Reply: "Processor kickoff packet: signed disclosures, the full document stack, the purchase contract, " +
					"the pre-approval brief, and contact details for the agents, title, and insurance.",
			},
			{
				ID:       "processing.conditions",
				Stage:    "processing",
				Keywords: []string{"condition", "underwriting", "appraisal", "title"},
				Reply: "Likely conditions: verification of employment, explanation letters for large deposits, " +
					"an updated bank statement, and appraisal or title clearance. Start on them before underwriting asks.",
			},
			// closing
			{
				ID:       "closing.checklist",
				Stage:    "closing",
				Keywords: []string{"checklist", "closing day"},
				Reply: "Closing day checklist: closing disclosure delivered three business days ahead, wire instructions " +
					"verified by phone, final walkthrough scheduled, and the borrower reminded to bring a photo ID.",
			},
			{
				ID:       "closing.ctc",
				Stage:    "closing",
				Keywords: []string{"clear-to-close", "ctc", "confirm"},
				Reply: "Clear-to-close items: final verification of employment, the insurance binder, the title commitment, " +
					"and the signed closing disclosure. Confirm each with the processor before scheduling signing.",
			},
			{
				ID:       "closing.nurture",
				Stage:    "closing",
				Keywords: []string{"nurture", "post-close", "after closing"},
				Reply: "Post-close nurture: a thank-you note at funding, an annual mortgage review, " +
					"and a rate-watch alert for refinance opportunities.",
			},
			{
				ID:       "closing.final",
				Stage:    "closing",
				Keywords: []string{"next stage", "next step", "move on", "continue"},
				Reply: "This file is already at {{.Stage.Title}}, the final stage. " +
					"Finish the closing checklist and hand off to post-close nurture.",
			},
			// any stage
			{
				ID:       "any.advance",
				Stage:    AnyStage,
				Keywords: []string{"next stage", "next step", "move on", "continue"},
				Reply:    "Wrapping up {{.Stage.Title}}. Moving to {{.Next.Title}}: {{.Next.Summary}}",
				Advances: true,
			},
			{
				ID:       "any.status",
				Stage:    AnyStage,
				Keywords: []string{"where are we", "status", "what stage"},
				Reply:    "We're on {{.Stage.Title}}. {{.Stage.Summary}}",
			},
		},
	}
}
