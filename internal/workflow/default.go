package workflow

import "mortgage-copilot/internal/domain"

const defaultGreeting = "Hi, I'm your Mortgage Copilot. We'll take this borrower from intake through closing. " +
	"Start by telling me about the borrower, or pick one of the suggestions below."

func defaultStages() []domain.Stage {
	return []domain.Stage{
		{
			ID:      "intake",
			Title:   "Borrower Intake",
			Summary: "Capture goals, timeline, household income, and the property profile.",
			Prompts: []string{
				"Start a new borrower intake",
				"What should I ask a first-time buyer?",
				"Summarize the intake and move to documents",
			},
		},
		{
			ID:      "documents",
			Title:   "Document Collection",
			Summary: "Track pay stubs, W-2s, bank statements, and IDs until the stack is complete.",
			Prompts: []string{
				"Send the document checklist",
				"Draft a nudge for missing documents",
				"Documents are complete, run pre-approval",
			},
		},
		{
			ID:      "preapproval",
			Title:   "Pre-Approval",
			Summary: "Run DTI and LTV ratios, compare pricing, and issue the pre-approval brief.",
			Prompts: []string{
				"Check DTI and LTV ratios",
				"Compare rate and points options",
				"Issue the pre-approval brief",
			},
		},
		{
			ID:      "processing",
			Title:   "Processing & Underwriting",
			Summary: "Kick off processing, order third-party services, and forecast conditions.",
			Prompts: []string{
				"Build the processor kickoff packet",
				"Forecast underwriting conditions",
				"Conditions cleared, schedule closing",
			},
		},
		{
			ID:      "closing",
			Title:   "Closing & Post-Close",
			Summary: "Orchestrate closing day and keep the borrower engaged after funding.",
			Prompts: []string{
				"Prepare the closing day checklist",
				"Confirm clear-to-close items",
				"Plan the post-close nurture",
			},
		},
	}
}

// Default returns the built-in mortgage workflow.
func Default() *Catalog {
	c, err := New(defaultGreeting, defaultStages())
	if err != nil {
		panic(err)
	}
	return c
}
