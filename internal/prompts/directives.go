package prompts

import "github.com/BTreeMap/LeadPipe/internal/models"

// Directive describes one step to the model.
type Directive struct {
	// Ask is the goal of the message that asks the user for this step.
	Ask string
	// Extract tells the model how to judge the user's answer to this step
	// and which data keys to fill in.
	Extract string
}

// Branch is one possible next step after the user answers the current one.
type Branch struct {
	When string
	Step models.Step
}

var directives = map[models.Step]Directive{
	models.StepGreeting: {
		Ask:     `Welcome the user and ask "How are you?".`,
		Extract: "The user is answering how they are. Any reply is valid. No data keys.",
	},
	models.StepGetName: {
		Ask:     "Acknowledge, then ask for their full name.",
		Extract: `The user should give their name (any script). Reject gibberish or bare numbers. Data key "full_name".`,
	},
	models.StepQualification: {
		Ask: `Say "Nice to meet you [Name]", then ask for the requested loan amount in NIS.`,
		Extract: `The user should state a loan amount in NIS. Data key "amount" as an integer or null. ` +
			`"half a million" = 500000, "200k" = 200000.`,
	},
	models.StepCity: {
		Ask:     "Ask which town/city they live in.",
		Extract: `The user should name a town or city. Data key "city".`,
	},
	models.StepPurpose: {
		Ask:     "Ask what the money is for.",
		Extract: `The user should describe the loan purpose. Data key "purpose".`,
	},
	models.StepPropertyOwnership: {
		Ask:     "Ask if they or a first-degree family member own a property.",
		Extract: `The user should say whether they own property. Data key "has_property" as true, false or null if unclear.`,
	},
	models.StepPropertyDetails: {
		Ask:     "Ask whose name the property is registered on, where it is registered (Tabu / Minhal / unregistered), and whether it has a building permit.",
		Extract: `The user should describe the property registration. Data key "property_details" summarizing the answer.`,
	},
	models.StepRiskCheck: {
		Ask:     "Ask about bank history (BDI) in the last 3 years: returned checks, account restrictions or liens.",
		Extract: `The user should describe their bank history. Any honest answer is valid. Data key "risk_info".`,
	},
	models.StepAnythingElse: {
		Ask:     "Ask if there is anything else they would like to add before we finish.",
		Extract: `Any reply is valid, including "no". Data key "notes" with anything worth passing on, or empty.`,
	},
	models.StepClosing: {
		Ask:     `State that the details have been passed to a representative, and ask "When is convenient to call?".`,
		Extract: `Any reply is valid. Data key "preferred_call_time".`,
	},
	models.StepCompleted: {
		Ask: "Thank the user and confirm a representative will call at the time they chose. Ask nothing further.",
	},
	models.StepClosed: {
		Ask: "Decline respectfully, explaining that this is to maintain financial responsibility.",
	},
}

// For returns the directive for step. Unknown steps get a neutral directive.
func For(step models.Step) Directive {
	if d, ok := directives[step]; ok {
		return d
	}
	return Directive{Ask: "Respond naturally.", Extract: "Any reply is valid."}
}

// Branches lists where the flow may go after the user answers step.
func Branches(step models.Step, rules BusinessRules) []Branch {
	switch step {
	case models.StepQualification:
		return []Branch{
			{When: "the amount is at least " + FormatAmount(rules.MinLoanAmount) + " " + rules.Currency, Step: models.StepCity},
			{When: "the amount is below " + FormatAmount(rules.MinLoanAmount) + " " + rules.Currency, Step: models.StepClosed},
		}
	case models.StepPropertyOwnership:
		return []Branch{
			{When: "the user or a first-degree relative owns property", Step: models.StepPropertyDetails},
			{When: "the user does not own property", Step: models.StepRiskCheck},
		}
	default:
		return []Branch{{Step: step.Next()}}
	}
}
