// Package prs renders extracted form data as a ClinicalTrials.gov Protocol
// Registration and Results System (PRS) upload document.
package prs

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// Namespace is the default namespace of a PRS study collection.
const Namespace = "http://clinicaltrials.gov/prs"

// StudyCollection is the document root. PRS accepts several studies per upload;
// one artifact always renders exactly one.
type StudyCollection struct {
	XMLName xml.Name      `xml:"study_collection"`
	Xmlns   string        `xml:"xmlns,attr"`
	Study   ClinicalStudy `xml:"clinical_study"`
}

type ClinicalStudy struct {
	IDInfo            IDInfo         `xml:"id_info"`
	BriefTitle        string         `xml:"brief_title,omitempty"`
	OfficialTitle     string         `xml:"official_title,omitempty"`
	Acronym           string         `xml:"acronym,omitempty"`
	Sponsors          *Sponsors      `xml:"sponsors"`
	StudyDesign       StudyDesign    `xml:"study_design"`
	Eligibility       *Eligibility   `xml:"eligibility"`
	PrimaryOutcomes   []Outcome      `xml:"primary_outcome"`
	SecondaryOutcomes []Outcome      `xml:"secondary_outcome"`
	Enrollment        string         `xml:"enrollment,omitempty"`
	EnrollmentType    string         `xml:"enrollment_type,omitempty"`
	Conditions        []string       `xml:"condition"`
	Keywords          []string       `xml:"keyword"`
	ArmGroups         []ArmGroup     `xml:"arm_group"`
	Interventions     []Intervention `xml:"intervention"`
	OverallStatus     string         `xml:"overall_status,omitempty"`
	StartDate         string         `xml:"start_date,omitempty"`
	StartDateType     string         `xml:"start_date_type,omitempty"`
	PrimaryComplDate  string         `xml:"primary_compl_date,omitempty"`
	PrimaryComplType  string         `xml:"primary_compl_date_type,omitempty"`
	LastFollowUpDate  string         `xml:"last_follow_up_date,omitempty"`
	LastFollowUpType  string         `xml:"last_follow_up_date_type,omitempty"`
	BriefSummary      *TextBlock     `xml:"brief_summary"`
	DetailedDesc      *TextBlock     `xml:"detailed_description"`
}

// TextBlock wraps free text the way PRS expects long-form fields.
type TextBlock struct {
	Text string `xml:"textblock"`
}

type IDInfo struct {
	OrgName    string `xml:"org_name"`
	OrgStudyID string `xml:"org_study_id"`
}

type Agency struct {
	Agency string `xml:"agency"`
}

type Sponsors struct {
	LeadSponsor   Agency     `xml:"lead_sponsor"`
	Collaborators []Agency   `xml:"collaborator"`
	RespParty     *RespParty `xml:"resp_party"`
}

type RespParty struct {
	Type                    string `xml:"resp_party_type"`
	InvestigatorTitle       string `xml:"investigator_title,omitempty"`
	InvestigatorAffiliation string `xml:"investigator_affiliation,omitempty"`
}

type StudyDesign struct {
	StudyType      string                `xml:"study_type"`
	Interventional *InterventionalDesign `xml:"interventional_design"`
	Observational  *ObservationalDesign  `xml:"observational_design"`
}

type InterventionalDesign struct {
	Subtype            string     `xml:"interventional_subtype"`
	Phase              string     `xml:"phase"`
	Assignment         string     `xml:"assignment,omitempty"`
	Allocation         string     `xml:"allocation"`
	NoMasking          string     `xml:"no_masking,omitempty"`
	MaskedSubject      string     `xml:"masked_subject,omitempty"`
	MaskedCaregiver    string     `xml:"masked_caregiver,omitempty"`
	MaskedInvestigator string     `xml:"masked_investigator,omitempty"`
	MaskedAssessor     string     `xml:"masked_assessor,omitempty"`
	MaskingDescription *TextBlock `xml:"masking_description"`
}

type ObservationalDesign struct {
	StudyDesign          string `xml:"observational_study_design"`
	Timing               string `xml:"timing"`
	BiospecimenRetention string `xml:"biospecimen_retention"`
	NumberOfGroups       string `xml:"number_of_groups"`
}

type Eligibility struct {
	Criteria          TextBlock `xml:"criteria"`
	Gender            string    `xml:"gender"`
	HealthyVolunteers string    `xml:"healthy_volunteers,omitempty"`
	MinimumAge        string    `xml:"minimum_age"`
	MaximumAge        string    `xml:"maximum_age"`
}

type Outcome struct {
	Measure     string     `xml:"outcome_measure"`
	TimeFrame   string     `xml:"outcome_time_frame,omitempty"`
	Description *TextBlock `xml:"outcome_description"`
}

type ArmGroup struct {
	Label       string     `xml:"arm_group_label"`
	Type        string     `xml:"arm_type,omitempty"`
	Description *TextBlock `xml:"arm_group_description"`
}

type Intervention struct {
	Type           string     `xml:"intervention_type,omitempty"`
	Name           string     `xml:"intervention_name"`
	Description    *TextBlock `xml:"intervention_description"`
	ArmGroupLabels []string   `xml:"arm_group_label"`
	OtherNames     []string   `xml:"intervention_other_name"`
}

// Render builds the indented PRS document for one artifact's form data.
func Render(fd models.FormData) ([]byte, error) {
	doc, err := Build(fd)
	if err != nil {
		return nil, err
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PRS document: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Build maps flattened form fields onto the PRS structure, filling the defaults
// PRS requires when a field was not extracted.
func Build(fd models.FormData) (*StudyCollection, error) {
	f := fields(fd)
	study := ClinicalStudy{
		IDInfo: IDInfo{
			OrgName:    f.or("org_name", "UNKNOWN_ORG"),
			OrgStudyID: f.or("org_study_id", "UNKNOWN_ID"),
		},
		BriefTitle:       f.get("brief_title"),
		OfficialTitle:    f.get("official_title"),
		Acronym:          f.get("acronym"),
		Sponsors:         f.sponsors(),
		StudyDesign:      f.design(),
		Eligibility:      f.eligibility(),
		Enrollment:       f.get("enrollment"),
		EnrollmentType:   f.get("enrollment_type"),
		Conditions:       f.list("conditions"),
		Keywords:         f.list("keywords"),
		OverallStatus:    f.get("overall_status"),
		StartDate:        f.get("start_date"),
		StartDateType:    f.get("start_date_type"),
		PrimaryComplDate: f.get("primary_compl_date"),
		PrimaryComplType: f.get("primary_compl_date_type"),
		LastFollowUpDate: f.get("last_follow_up_date"),
		LastFollowUpType: f.get("last_follow_up_date_type"),
		BriefSummary:     f.text("brief_summary"),
		DetailedDesc:     f.text("detailed_description"),
	}

	var err error
	if study.PrimaryOutcomes, err = outcomes(f, "primary_outcomes"); err != nil {
		return nil, err
	}
	if study.SecondaryOutcomes, err = outcomes(f, "secondary_outcomes"); err != nil {
		return nil, err
	}
	if study.ArmGroups, err = armGroups(f); err != nil {
		return nil, err
	}
	if study.Interventions, err = interventions(f); err != nil {
		return nil, err
	}
	return &StudyCollection{Xmlns: Namespace, Study: study}, nil
}

type fields models.FormData

func (f fields) get(name string) string {
	v, ok := models.FormData(f).Get(name)
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(models.FormatScalar(v))
}

func (f fields) or(name, fallback string) string {
	if v := f.get(name); v != "" {
		return v
	}
	return fallback
}

func (f fields) any(names ...string) bool {
	for _, n := range names {
		if f.get(n) != "" {
			return true
		}
	}
	return false
}

func (f fields) text(name string) *TextBlock {
	return textBlock(f.get(name))
}

// list splits a "; " joined value back into its items.
func (f fields) list(name string) []string {
	var items []string
	for _, item := range strings.Split(f.get(name), ";") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (f fields) sponsors() *Sponsors {
	if !f.any("sponsors.lead_sponsor", "sponsors.collaborators", "sponsors.responsible_party_type",
		"sponsors.investigator_title", "sponsors.investigator_affiliation") {
		return nil
	}
	s := &Sponsors{LeadSponsor: Agency{Agency: f.or("sponsors.lead_sponsor", "UNKNOWN_SPONSOR")}}
	for _, c := range f.list("sponsors.collaborators") {
		s.Collaborators = append(s.Collaborators, Agency{Agency: c})
	}
	if f.any("sponsors.responsible_party_type", "sponsors.investigator_title", "sponsors.investigator_affiliation") {
		s.RespParty = &RespParty{
			Type:                    f.or("sponsors.responsible_party_type", "Sponsor"),
			InvestigatorTitle:       f.get("sponsors.investigator_title"),
			InvestigatorAffiliation: f.get("sponsors.investigator_affiliation"),
		}
	}
	return s
}

func (f fields) design() StudyDesign {
	d := StudyDesign{StudyType: f.or("study_design.study_type", "Interventional")}
	switch {
	case strings.EqualFold(d.StudyType, "Observational"):
		d.Observational = &ObservationalDesign{
			StudyDesign:          f.or("study_design.observational_study_design", "Other"),
			Timing:               f.or("study_design.timing", "Other"),
			BiospecimenRetention: f.or("study_design.biospecimen_retention", "None Retained"),
			NumberOfGroups:       f.or("study_design.number_of_groups", "1"),
		}
	case strings.EqualFold(d.StudyType, "Interventional"):
		d.Interventional = &InterventionalDesign{
			Subtype:            f.or("study_design.primary_purpose", "Treatment"),
			Phase:              f.or("study_design.phase", "N/A"),
			Assignment:         f.get("study_design.assignment"),
			Allocation:         f.or("study_design.allocation", "N/A"),
			NoMasking:          f.get("study_design.masking.no_masking"),
			MaskedSubject:      f.get("study_design.masking.masked_subject"),
			MaskedCaregiver:    f.get("study_design.masking.masked_caregiver"),
			MaskedInvestigator: f.get("study_design.masking.masked_investigator"),
			MaskedAssessor:     f.get("study_design.masking.masked_assessor"),
			MaskingDescription: f.text("study_design.masking.description"),
		}
	}
	return d
}

func (f fields) eligibility() *Eligibility {
	if !f.any("eligibility.criteria", "eligibility.gender", "eligibility.minimum_age",
		"eligibility.maximum_age", "eligibility.healthy_volunteers") {
		return nil
	}
	return &Eligibility{
		Criteria:          TextBlock{Text: f.or("eligibility.criteria", "Not provided")},
		Gender:            f.or("eligibility.gender", "All"),
		HealthyVolunteers: strings.ToLower(f.get("eligibility.healthy_volunteers")),
		MinimumAge:        f.or("eligibility.minimum_age", "18 Years"),
		MaximumAge:        f.or("eligibility.maximum_age", "N/A"),
	}
}

// Lists of objects are stored as compact JSON strings in the flat form.
func decodeList[T any](f fields, name string) ([]T, error) {
	raw := f.get(name)
	if raw == "" {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("field %s is not a JSON list: %w", name, err)
	}
	return items, nil
}

type rawOutcome struct {
	Measure     string `json:"outcome_measure"`
	TimeFrame   string `json:"outcome_time_frame"`
	Description string `json:"outcome_description"`
}

func outcomes(f fields, name string) ([]Outcome, error) {
	raw, err := decodeList[rawOutcome](f, name)
	if err != nil {
		return nil, err
	}
	var out []Outcome
	for _, o := range raw {
		out = append(out, Outcome{
			Measure:     o.Measure,
			TimeFrame:   o.TimeFrame,
			Description: textBlock(o.Description),
		})
	}
	return out, nil
}

type rawArmGroup struct {
	Label       string `json:"arm_group_label"`
	Type        string `json:"arm_type"`
	Description string `json:"arm_group_description"`
}

func armGroups(f fields) ([]ArmGroup, error) {
	raw, err := decodeList[rawArmGroup](f, "arm_groups")
	if err != nil {
		return nil, err
	}
	var out []ArmGroup
	for _, a := range raw {
		out = append(out, ArmGroup{Label: a.Label, Type: a.Type, Description: textBlock(a.Description)})
	}
	return out, nil
}

type rawIntervention struct {
	Type           string     `json:"intervention_type"`
	Name           string     `json:"intervention_name"`
	Description    string     `json:"intervention_description"`
	ArmGroupLabels stringList `json:"arm_group_label"`
	OtherNames     stringList `json:"intervention_other_name"`
}

func interventions(f fields) ([]Intervention, error) {
	raw, err := decodeList[rawIntervention](f, "interventions")
	if err != nil {
		return nil, err
	}
	var out []Intervention
	for _, i := range raw {
		out = append(out, Intervention{
			Type:           i.Type,
			Name:           i.Name,
			Description:    textBlock(i.Description),
			ArmGroupLabels: i.ArmGroupLabels,
			OtherNames:     i.OtherNames,
		})
	}
	return out, nil
}

// stringList accepts either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*l = stringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

func textBlock(s string) *TextBlock {
	if s == "" {
		return nil
	}
	return &TextBlock{Text: s}
}
