package models

// ProfileRequest is the payload the form collector submits once the wizard is
// finished. It is decoded once and never mutated afterwards.
type ProfileRequest struct {
	FormData *FormData `json:"formData" validate:"required"`
	User     *User     `json:"user" validate:"required"`
}

// FormData holds the wizard answers. Every field is optional.
type FormData struct {
	Name                   string   `json:"name,omitempty" validate:"max=200"`
	Bio                    string   `json:"bio,omitempty" validate:"max=4000"`
	ProfessionalTitle      string   `json:"professionalTitle,omitempty" validate:"max=200"`
	WorkFocus              string   `json:"workFocus,omitempty" validate:"max=4000"`
	Expertise              []string `json:"expertise,omitempty" validate:"max=50,dive,max=100"`
	LearningGoals          string   `json:"learningGoals,omitempty" validate:"max=4000"`
	CollaborationInterests string   `json:"collaborationInterests,omitempty" validate:"max=4000"`
	HelpTopics             []string `json:"helpTopics,omitempty" validate:"max=50,dive,max=100"`
	ExpertiseTopics        []string `json:"expertiseTopics,omitempty" validate:"max=50,dive,max=100"`
	FunFacts               string   `json:"funFacts,omitempty" validate:"max=4000"`
	Pronouns               string   `json:"pronouns,omitempty" validate:"max=50"`
	Languages              []string `json:"languages,omitempty" validate:"max=50,dive,max=100"`
	TimeZone               string   `json:"timeZone,omitempty" validate:"max=100"`
	Availability           string   `json:"availability,omitempty" validate:"max=1000"`
	Theme                  *Theme   `json:"theme,omitempty"`
	Stats                  *Stats   `json:"stats,omitempty"`
}

type Theme struct {
	Mode         string `json:"mode,omitempty" validate:"max=50"`
	PrimaryColor string `json:"primaryColor,omitempty" validate:"max=50"`
	Layout       string `json:"layout,omitempty" validate:"max=50"`
}

type Stats struct {
	SelectedStats []string `json:"selectedStats,omitempty" validate:"max=50,dive,max=100"`
	GraphHeight   int      `json:"graphHeight,omitempty" validate:"gte=0,lte=2000"`
}

// User is the subset of the signed-in account used to personalise the prompt.
// Nothing here is verified by the relay.
type User struct {
	Email    string       `json:"email,omitempty" validate:"omitempty,email"`
	Metadata UserMetadata `json:"user_metadata"`
}

type UserMetadata struct {
	FullName  string `json:"full_name,omitempty" validate:"max=200"`
	UserName  string `json:"user_name,omitempty" validate:"max=100"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// DisplayName is the full name when known, otherwise the email address.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Metadata.FullName != "" {
		return u.Metadata.FullName
	}
	return u.Email
}
