package extract

import "github.com/Lllllllleong/clinicaltrialexplorer/internal/models"

// SystemPrompt is sent with every extraction request.
const SystemPrompt = "You are a protocol analyzer that helps extract structured information from clinical trial protocols. Always return valid JSON when requested, with no explanations or apologies."

// source selects which part of the document a section prompt is run against.
type source int

const (
	sourceMain     source = iota // first chunk
	sourceFullText               // first three chunks
	sourceKeyword                // first chunk mentioning a keyword, else full text
)

// section is one targeted extraction prompt. Its JSON object response is
// flattened and, when nest is set, placed under that key.
type section struct {
	name     string
	nest     string
	source   source
	keywords []string
	prompt   string
	// defaults fill in fields the model leaves out or returns empty.
	defaults []models.Field
}

// catalogue lists the sections in the order their fields appear in form data.
var catalogue = []section{
	{
		name:   "titles",
		source: sourceMain,
		prompt: `Extract the EXACT official title and brief title of this clinical trial protocol.

Return ONLY a JSON object with these fields:
- brief_title: The short title of the study (usually shorter)
- official_title: The full, complete title of the study (usually longer)
- acronym: The study acronym or abbreviation if present (or null if none)
- org_study_id: The organization's unique study identifier or protocol number (or null if none)

Do not include any text outside the JSON object.`,
		defaults: []models.Field{
			{Name: "brief_title", Value: "Unknown Title"},
			{Name: "official_title", Value: "Unknown Official Title"},
			{Name: "org_study_id", Value: "UNKNOWN_ID"},
		},
	},
	{
		name:   "study_design",
		nest:   "study_design",
		source: sourceFullText,
		prompt: `Extract the study design information from this clinical trial protocol.

Return ONLY a JSON object with these fields:
- study_type: Either "Interventional", "Observational", or "Expanded Access"
- phase: The study phase (e.g., "Phase 1", "Phase 2", "Phase 1/2", "N/A")
- primary_purpose: For interventional studies, the primary purpose (e.g., "Treatment", "Prevention")
- assignment: The interventional study model (e.g., "Single Group Assignment", "Parallel Assignment", "Crossover Assignment")
- allocation: One of "Randomized", "Non-randomized", or "N/A"
- masking: A JSON object with "no_masking", "masked_subject", "masked_caregiver", "masked_investigator", "masked_assessor" ("yes" or "no") and "description"

Only include fields that can be determined from the protocol.
Do not include any text outside the JSON object.`,
	},
	{
		name:     "eligibility",
		nest:     "eligibility",
		source:   sourceKeyword,
		keywords: []string{"eligibility", "inclusion criteria", "exclusion criteria"},
		prompt: `Find the eligibility criteria of this clinical trial protocol.

Return ONLY a JSON object with these fields:
- criteria: The COMPLETE inclusion and exclusion criteria, verbatim, including bullet points and numbering
- gender: The gender requirement ("All", "Female", or "Male")
- minimum_age: The minimum age with units (e.g., "18 Years")
- maximum_age: The maximum age with units or "N/A" if no limit
- healthy_volunteers: Whether healthy volunteers are eligible ("Yes" or "No")

Do not include any text outside the JSON object.`,
		defaults: []models.Field{
			{Name: "criteria", Value: "Not provided"},
			{Name: "gender", Value: "All"},
			{Name: "minimum_age", Value: "18 Years"},
			{Name: "maximum_age", Value: "N/A"},
			{Name: "healthy_volunteers", Value: "No"},
		},
	},
	{
		name:     "outcomes",
		source:   sourceKeyword,
		keywords: []string{"outcome", "endpoint", "efficacy"},
		prompt: `Extract all primary and secondary outcome measures from this clinical trial protocol.

Return ONLY a JSON object with these fields:
- primary_outcomes: Array of objects with "outcome_measure", "outcome_time_frame" and "outcome_description"
- secondary_outcomes: Array of objects with the same fields

Use an empty array when none are found.
Do not include any text outside the JSON object.`,
	},
	{
		name:     "arms",
		source:   sourceKeyword,
		keywords: []string{"arm", "group", "treatment"},
		prompt: `Extract all study arms and interventions from this clinical trial protocol.

Return ONLY a JSON object with these fields:
- arm_groups: Array of objects with "arm_group_label", "arm_type" (e.g., "Experimental", "Placebo Comparator") and "arm_group_description"
- interventions: Array of objects with "intervention_type" (e.g., "Drug", "Device"), "intervention_name", "intervention_description", "arm_group_label" (array of strings) and "intervention_other_name" (array of strings)

Use an empty array when none are found.
Do not include any text outside the JSON object.`,
	},
	{
		name:   "sponsors",
		nest:   "sponsors",
		source: sourceMain,
		prompt: `Extract the sponsor information from this clinical trial protocol.

Return ONLY a JSON object with these fields:
- lead_sponsor: The organization name of the primary sponsor
- collaborators: Array of organization names of any collaborators
- responsible_party_type: Type (e.g., "Sponsor", "Principal Investigator", "Sponsor-Investigator")
- investigator_title: Title of the investigator (if applicable)
- investigator_affiliation: Affiliation of the investigator (if applicable)

Only include fields that are present in the document.
Do not include any text outside the JSON object.`,
	},
	{
		name:   "details",
		source: sourceFullText,
		prompt: `Extract these key study details from the clinical trial protocol.

Return ONLY a JSON object with these fields:
- enrollment: The target enrollment as a number
- enrollment_type: "Anticipated" or "Actual"
- overall_status: Study status (e.g., "Not yet recruiting", "Recruiting", "Completed")
- start_date: Start date in YYYY-MM format
- start_date_type: "Anticipated" or "Actual"
- primary_compl_date: Primary completion date in YYYY-MM format
- primary_compl_date_type: "Anticipated" or "Actual"
- conditions: Array of strings with medical conditions being studied
- keywords: Array of strings with relevant keywords

Only include fields that you can find in the document.
Do not include any text outside the JSON object.`,
	},
	{
		name:   "summary",
		source: sourceFullText,
		prompt: `Extract the brief summary and detailed description of this clinical trial.

Return ONLY a JSON object with these fields:
- brief_summary: A brief summary of the study's purpose and approach (1-3 sentences)
- detailed_description: A more detailed description of the study (if available)

Only include fields that you can find in the document.
Do not include any text outside the JSON object.`,
	},
}

// numericFields are kept as numbers; every other value is normalised to a string
// so that column types stay stable across documents.
var numericFields = map[string]bool{
	"enrollment": true,
}
