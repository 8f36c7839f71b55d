package models

// Roles offered on the careers page. The first entry is the form default.
var Roles = []string{
	"Landscape Crew Member",
	"Crew Lead / Foreman",
	"Seasonal Helper",
}

// DefaultRole is preselected when a form is created or reset.
const DefaultRole = "Landscape Crew Member"

// ApplicationFields is the structured payload of one job application form.
type ApplicationFields struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone,omitempty"`
	Position   string `json:"position,omitempty"`
	Experience string `json:"experience,omitempty"`

	// Honeypot must stay empty; anything filled in here comes from a bot.
	Honeypot string `json:"-"`
}

// Attachment is a file picked by the applicant before it is validated and sent.
type Attachment struct {
	Filename  string
	MimeType  string
	SizeBytes int64
	Content   []byte
}

// IsKnownRole reports whether position is one of the advertised roles.
func IsKnownRole(position string) bool {
	for _, r := range Roles {
		if r == position {
			return true
		}
	}
	return false
}
