package prompt

import (
	"strings"
	"testing"

	"github.com/deepgram/readme-relay/internal/domain/profile/models"
	"github.com/stretchr/testify/assert"
)

func fullRequest() *models.ProfileRequest {
	return &models.ProfileRequest{
		FormData: &models.FormData{
			Name:                   "Countess of Lovelace",
			Bio:                    "Writes programs for engines",
			ProfessionalTitle:      "Senior Frontend Developer",
			WorkFocus:              "Design systems and accessibility",
			Expertise:              []string{"TypeScript", "React"},
			LearningGoals:          "Rust and WebAssembly",
			CollaborationInterests: "Open source tooling",
			HelpTopics:             []string{"Code review", "Mentoring"},
			ExpertiseTopics:        []string{"Frontend", "Performance"},
			FunFacts:               "Has a cat named Babbage",
			Pronouns:               "she/her",
			Languages:              []string{"English", "French"},
			TimeZone:               "Europe/London",
			Availability:           "Weekends",
			Theme: &models.Theme{
				Mode:         "dark",
				PrimaryColor: "#7c3aed",
				Layout:       "compact",
			},
			Stats: &models.Stats{
				SelectedStats: []string{"Top Languages", "Streak"},
				GraphHeight:   180,
			},
		},
		User: &models.User{
			Email: "ada@example.com",
			Metadata: models.UserMetadata{
				FullName:  "Ada Lovelace",
				UserName:  "adalovelace",
				AvatarURL: "https://avatars.example.com/ada.png",
			},
		},
	}
}

func TestBuildContainsEveryField(t *testing.T) {
	req := fullRequest()
	p := Build(req)

	want := []string{
		"Countess of Lovelace",
		"Ada Lovelace",
		"adalovelace",
		"https://avatars.example.com/ada.png",
		"ada@example.com",
		"Writes programs for engines",
		"Senior Frontend Developer",
		"Design systems and accessibility",
		"TypeScript, React",
		"Rust and WebAssembly",
		"Open source tooling",
		"Code review, Mentoring",
		"Frontend, Performance",
		"Has a cat named Babbage",
		"she/her",
		"English, French",
		"Europe/London",
		"Weekends",
		"dark",
		"#7c3aed",
		"compact",
		"Top Languages, Streak",
		"180px",
	}
	for _, s := range want {
		assert.Contains(t, p.User, s)
	}

	// Every list element must also appear verbatim on its own.
	for _, list := range [][]string{
		req.FormData.Expertise, req.FormData.HelpTopics, req.FormData.ExpertiseTopics,
		req.FormData.Languages, req.FormData.Stats.SelectedStats,
	} {
		for _, item := range list {
			assert.Contains(t, p.User, item)
		}
	}

	assert.Equal(t, SystemInstruction, p.System)
}

func TestBuildEmptyListsRenderEmptySegments(t *testing.T) {
	req := fullRequest()
	req.FormData.Expertise = nil
	req.FormData.HelpTopics = []string{}
	req.FormData.Stats.SelectedStats = nil

	var p Prompt
	assert.NotPanics(t, func() { p = Build(req) })

	assert.Contains(t, p.User, "- Primary Programming Languages/Tools: \n")
	assert.Contains(t, p.User, "- Help Topics: \n")
	assert.Contains(t, p.User, "- Selected GitHub Stats to Show: \n")
}

func TestBuildMissingOptionalFields(t *testing.T) {
	tests := []struct {
		name string
		req  *models.ProfileRequest
	}{
		{"nil request", nil},
		{"empty envelope", &models.ProfileRequest{}},
		{"empty form", &models.ProfileRequest{FormData: &models.FormData{}, User: &models.User{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Prompt
			assert.NotPanics(t, func() { p = Build(tt.req) })
			assert.Contains(t, p.User, "- Title: \n")
			assert.Contains(t, p.User, "- Primary Color: \n")
			assert.Contains(t, p.User, "- Stats Graph Height: \n")
			assert.True(t, strings.HasSuffix(p.User, "Return only valid markdown content for README.md."))
		})
	}
}

func TestBuildNameFallsBackToEmail(t *testing.T) {
	req := fullRequest()
	req.User.Metadata.FullName = ""

	assert.Contains(t, Build(req).User, "- Name: ada@example.com\n")
}

func TestBuildRendersFormNameSeparately(t *testing.T) {
	req := fullRequest()
	req.FormData.Name = "Grace Hopper"

	p := Build(req).User
	assert.Contains(t, p, "- Preferred Name: Grace Hopper\n")
	assert.Contains(t, p, "- Name: Ada Lovelace\n")
}

func TestBuildIsDeterministic(t *testing.T) {
	first := Build(fullRequest())
	second := Build(fullRequest())

	assert.Equal(t, first.User, second.User)
	assert.Equal(t, first.System, second.System)
}
