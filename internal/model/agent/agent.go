package agent

import "strings"

// PlaceholderSubject marks where the data sample under review is substituted
// into an agent's user prompt template.
const PlaceholderSubject = "{data_sample}"

// Agent is one configured compliance voice: a backend model paired with the
// prompts that frame its judgment. Records are read-only once orchestration
// starts; writes happen only at the admin boundary.
type Agent struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ModelName          string `json:"model_name"`
	SystemPrompt       string `json:"system_prompt,omitempty"`
	UserPromptTemplate string `json:"user_prompt_template"`
}

// RenderUserPrompt substitutes the subject into the agent's template. An
// empty template degrades to the bare subject, matching how local models
// were historically prompted with the raw sample.
func (a Agent) RenderUserPrompt(subject string) string {
	if strings.TrimSpace(a.UserPromptTemplate) == "" {
		return subject
	}
	return strings.ReplaceAll(a.UserPromptTemplate, PlaceholderSubject, subject)
}

// Seed provides the default agent panel installed on first run.
func Seed() []Agent {
	return []Agent{
		{
			ID:           "format-auditor",
			Name:         "Format Auditor",
			ModelName:    "gpt-4",
			SystemPrompt: "You are a strict data-format compliance auditor. Judge only whether the sample conforms to the stated standard.",
			UserPromptTemplate: "Does the following data sample conform to the required standard?\n" +
				"Answer 'Yes' or 'No' on the first line, then explain your reasoning.\n\n" +
				PlaceholderSubject,
		},
		{
			ID:           "schema-reviewer",
			Name:         "Schema Reviewer",
			ModelName:    "gpt-4",
			SystemPrompt: "You are a schema reviewer. Check structure, required fields and value ranges.",
			UserPromptTemplate: "Review this data sample for schema conformance.\n" +
				"Start your answer with 'Yes' or 'No', then list any violations.\n\n" +
				PlaceholderSubject,
		},
		{
			ID:                 "local-screener",
			Name:               "Local Screener",
			ModelName:          "tinyllama",
			UserPromptTemplate: PlaceholderSubject,
		},
	}
}
