package prompt

import (
	"strconv"
	"strings"

	"github.com/deepgram/readme-relay/internal/domain/profile/models"
)

// SystemInstruction is sent ahead of every generated prompt.
const SystemInstruction = "You are an expert at creating modern, visually appealing GitHub profile READMEs using markdown. " +
	"You know how to use HTML within markdown, badges, GitHub stats widgets, and other visual elements to create engaging profiles."

const listSeparator = ", "

// Prompt is the two-message conversation sent upstream.
type Prompt struct {
	System string
	User   string
}

// Build renders a profile into the generation prompt. It has no side effects
// and the same request always yields the same bytes. Missing fields render as
// empty segments.
func Build(req *models.ProfileRequest) Prompt {
	form := &models.FormData{}
	user := &models.User{}
	if req != nil {
		if req.FormData != nil {
			form = req.FormData
		}
		if req.User != nil {
			user = req.User
		}
	}
	theme := &models.Theme{}
	if form.Theme != nil {
		theme = form.Theme
	}
	stats := &models.Stats{}
	if form.Stats != nil {
		stats = form.Stats
	}

	var b strings.Builder
	b.WriteString("Create a GitHub profile README.md for a developer. Return ONLY the markdown content, no explanations or additional text.\n")

	section(&b, "User Information",
		field{"Name", user.DisplayName()},
		field{"Preferred Name", form.Name},
		field{"GitHub Profile", user.Metadata.UserName},
		field{"Avatar URL", user.Metadata.AvatarURL},
		field{"Email", user.Email},
	)

	section(&b, "Professional Information",
		field{"Title", form.ProfessionalTitle},
		field{"Bio", form.Bio},
		field{"Work Focus", form.WorkFocus},
		field{"Primary Programming Languages/Tools", join(form.Expertise)},
		field{"Learning Goals", form.LearningGoals},
		field{"Collaboration Interests", form.CollaborationInterests},
		field{"Areas of Expertise", join(form.ExpertiseTopics)},
		field{"Help Topics", join(form.HelpTopics)},
	)

	section(&b, "Personal Information",
		field{"Fun Facts", form.FunFacts},
		field{"Pronouns", form.Pronouns},
		field{"Languages Spoken", join(form.Languages)},
		field{"Time Zone", form.TimeZone},
		field{"Availability", form.Availability},
	)

	section(&b, "Styling Preferences",
		field{"Theme Mode", theme.Mode},
		field{"Primary Color", theme.PrimaryColor},
		field{"Layout", theme.Layout},
		field{"Selected GitHub Stats to Show", join(stats.SelectedStats)},
		field{"Stats Graph Height", graphHeight(stats.GraphHeight)},
	)

	b.WriteString("\nInclude:\n")
	for _, item := range checklist {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\nReturn only valid markdown content for README.md.")

	return Prompt{
		System: SystemInstruction,
		User:   b.String(),
	}
}

var checklist = []string{
	"HTML/CSS header with name and avatar",
	"Professional and personal sections with emojis",
	"GitHub stats widgets (using provided GitHub username)",
	"Technology badges",
	"Section headers and dividers",
	"Contact information",
	"Visitor counter",
}

type field struct {
	label string
	value string
}

func section(b *strings.Builder, title string, fields ...field) {
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString(":\n")
	for _, f := range fields {
		b.WriteString("- ")
		b.WriteString(f.label)
		b.WriteString(": ")
		b.WriteString(f.value)
		b.WriteString("\n")
	}
}

func join(values []string) string {
	return strings.Join(values, listSeparator)
}

func graphHeight(px int) string {
	if px <= 0 {
		return ""
	}
	return strconv.Itoa(px) + "px"
}
