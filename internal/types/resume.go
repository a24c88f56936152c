package types

// ExperienceEntry is a single position extracted from an uploaded resume.
type ExperienceEntry struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	Duration    string `json:"duration,omitempty"`
	Description string `json:"description,omitempty"`
}

// EducationEntry is a single education record extracted from an uploaded resume.
type EducationEntry struct {
	School string `json:"school"`
	Degree string `json:"degree,omitempty"`
	Field  string `json:"field,omitempty"`
	Year   string `json:"year,omitempty"`
}

// ParsedResume is the structured candidate profile returned by the remote
// resume parser. It is optional for a session and never mutated after parse.
type ParsedResume struct {
	Name           string            `json:"name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Skills         []string          `json:"skills,omitempty"`
	Experience     []ExperienceEntry `json:"experience,omitempty"`
	Education      []EducationEntry  `json:"education,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`
	Projects       []string          `json:"projects,omitempty"`
}
