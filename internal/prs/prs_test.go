package prs

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFormData() models.FormData {
	return models.FormData{
		{Name: "brief_title", Value: "Drug X in <Adults>"},
		{Name: "official_title", Value: "A Phase 2 Study of Drug X"},
		{Name: "acronym", Value: "DX-2"},
		{Name: "org_study_id", Value: "ABC-123"},
		{Name: "study_design.study_type", Value: "Interventional"},
		{Name: "study_design.phase", Value: "Phase 2"},
		{Name: "study_design.primary_purpose", Value: "Prevention"},
		{Name: "study_design.allocation", Value: "Randomized"},
		{Name: "study_design.masking.masked_subject", Value: "true"},
		{Name: "study_design.masking.description", Value: "Double blind"},
		{Name: "eligibility.criteria", Value: "Adults with condition Y"},
		{Name: "eligibility.healthy_volunteers", Value: "No"},
		{Name: "primary_outcomes", Value: `[{"outcome_measure":"Response rate","outcome_time_frame":"12 weeks","outcome_description":"ORR per RECIST"}]`},
		{Name: "secondary_outcomes", Value: `[{"outcome_measure":"Overall survival"}]`},
		{Name: "arm_groups", Value: `[{"arm_group_label":"Drug X","arm_type":"Experimental"},{"arm_group_label":"Placebo","arm_type":"Placebo Comparator","arm_group_description":"Matching placebo"}]`},
		{Name: "interventions", Value: `[{"intervention_type":"Drug","intervention_name":"Drug X","arm_group_label":["Drug X"],"intervention_other_name":"DX"}]`},
		{Name: "sponsors.lead_sponsor", Value: "Acme Pharma"},
		{Name: "sponsors.collaborators", Value: "Uni A; Uni B"},
		{Name: "enrollment", Value: 120.0},
		{Name: "enrollment_type", Value: "Anticipated"},
		{Name: "conditions", Value: "Condition Y; Condition Z"},
		{Name: "brief_summary", Value: "Tests drug X."},
	}
}

func TestBuild_MapsFormFields(t *testing.T) {
	doc, err := Build(sampleFormData())
	require.NoError(t, err)

	study := doc.Study
	assert.Equal(t, Namespace, doc.Xmlns)
	assert.Equal(t, IDInfo{OrgName: "UNKNOWN_ORG", OrgStudyID: "ABC-123"}, study.IDInfo)
	assert.Equal(t, "DX-2", study.Acronym)

	require.NotNil(t, study.Sponsors)
	assert.Equal(t, "Acme Pharma", study.Sponsors.LeadSponsor.Agency)
	assert.Equal(t, []Agency{{Agency: "Uni A"}, {Agency: "Uni B"}}, study.Sponsors.Collaborators)
	assert.Nil(t, study.Sponsors.RespParty)

	require.NotNil(t, study.StudyDesign.Interventional)
	assert.Nil(t, study.StudyDesign.Observational)
	design := study.StudyDesign.Interventional
	assert.Equal(t, "Prevention", design.Subtype)
	assert.Equal(t, "Phase 2", design.Phase)
	assert.Equal(t, "Randomized", design.Allocation)
	assert.Equal(t, "true", design.MaskedSubject)
	assert.Equal(t, &TextBlock{Text: "Double blind"}, design.MaskingDescription)

	require.NotNil(t, study.Eligibility)
	assert.Equal(t, "no", study.Eligibility.HealthyVolunteers)
	assert.Equal(t, "All", study.Eligibility.Gender)
	assert.Equal(t, "18 Years", study.Eligibility.MinimumAge)
	assert.Equal(t, "N/A", study.Eligibility.MaximumAge)

	require.Len(t, study.PrimaryOutcomes, 1)
	assert.Equal(t, "12 weeks", study.PrimaryOutcomes[0].TimeFrame)
	require.Len(t, study.SecondaryOutcomes, 1)
	assert.Nil(t, study.SecondaryOutcomes[0].Description)

	require.Len(t, study.ArmGroups, 2)
	assert.Equal(t, "Placebo Comparator", study.ArmGroups[1].Type)
	require.Len(t, study.Interventions, 1)
	assert.Equal(t, []string{"Drug X"}, study.Interventions[0].ArmGroupLabels)
	assert.Equal(t, []string{"DX"}, study.Interventions[0].OtherNames)

	assert.Equal(t, "120", study.Enrollment)
	assert.Equal(t, []string{"Condition Y", "Condition Z"}, study.Conditions)
	assert.Empty(t, study.Keywords)
	assert.Nil(t, study.DetailedDesc)
}

func TestBuild_Defaults(t *testing.T) {
	doc, err := Build(models.FormData{{Name: "brief_title", Value: "Bare"}})
	require.NoError(t, err)

	study := doc.Study
	assert.Equal(t, IDInfo{OrgName: "UNKNOWN_ORG", OrgStudyID: "UNKNOWN_ID"}, study.IDInfo)
	assert.Nil(t, study.Sponsors)
	assert.Nil(t, study.Eligibility)
	assert.Equal(t, "Interventional", study.StudyDesign.StudyType)
	require.NotNil(t, study.StudyDesign.Interventional)
	assert.Equal(t, "Treatment", study.StudyDesign.Interventional.Subtype)
	assert.Equal(t, "N/A", study.StudyDesign.Interventional.Phase)
}

func TestBuild_ObservationalAndResponsibleParty(t *testing.T) {
	doc, err := Build(models.FormData{
		{Name: "study_design.study_type", Value: "Observational"},
		{Name: "sponsors.investigator_title", Value: "Professor"},
	})
	require.NoError(t, err)

	design := doc.Study.StudyDesign
	assert.Nil(t, design.Interventional)
	require.NotNil(t, design.Observational)
	assert.Equal(t, "None Retained", design.Observational.BiospecimenRetention)

	require.NotNil(t, doc.Study.Sponsors)
	assert.Equal(t, "UNKNOWN_SPONSOR", doc.Study.Sponsors.LeadSponsor.Agency)
	assert.Equal(t, &RespParty{Type: "Sponsor", InvestigatorTitle: "Professor"}, doc.Study.Sponsors.RespParty)
}

func TestBuild_MalformedList(t *testing.T) {
	_, err := Build(models.FormData{{Name: "arm_groups", Value: "Drug X; Placebo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arm_groups")
}

func TestRender(t *testing.T) {
	out, err := Render(sampleFormData())
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, xml.Header))
	assert.Contains(t, text, `<study_collection xmlns="http://clinicaltrials.gov/prs">`)
	assert.Contains(t, text, "\n  <clinical_study>\n    <id_info>\n")
	assert.Contains(t, text, "<brief_title>Drug X in &lt;Adults&gt;</brief_title>")
	assert.Contains(t, text, "<collaborator>\n        <agency>Uni B</agency>\n      </collaborator>")
	assert.Contains(t, text, "<brief_summary>\n      <textblock>Tests drug X.</textblock>\n    </brief_summary>")
	assert.NotContains(t, text, "<keyword>")
	assert.NotContains(t, text, "<detailed_description>")

	var decoded StudyCollection
	require.NoError(t, xml.Unmarshal(out, &decoded))
	assert.Equal(t, "Drug X in <Adults>", decoded.Study.BriefTitle)
	assert.Len(t, decoded.Study.ArmGroups, 2)
}
