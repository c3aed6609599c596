package profile

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("profile not found")
	ErrEntryNotFound = errors.New("profile entry not found")
)

// Owner is the populated slice of the owning user shown with a profile.
type Owner struct {
	ID     string `json:"_id" bson:"_id"`
	Name   string `json:"name" bson:"name"`
	Avatar string `json:"avatar" bson:"avatar"`
}

type Social struct {
	YouTube   string `json:"youtube,omitempty" bson:"youtube,omitempty"`
	Twitter   string `json:"twitter,omitempty" bson:"twitter,omitempty"`
	Facebook  string `json:"facebook,omitempty" bson:"facebook,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty" bson:"linkedin,omitempty"`
	Instagram string `json:"instagram,omitempty" bson:"instagram,omitempty"`
}

type Experience struct {
	ID          string     `json:"_id" bson:"_id"`
	Title       string     `json:"title" bson:"title"`
	Company     string     `json:"company" bson:"company"`
	Location    string     `json:"location,omitempty" bson:"location,omitempty"`
	From        time.Time  `json:"from" bson:"from"`
	To          *time.Time `json:"to,omitempty" bson:"to,omitempty"`
	Current     bool       `json:"current" bson:"current"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
}

type Education struct {
	ID           string     `json:"_id" bson:"_id"`
	School       string     `json:"school" bson:"school"`
	Degree       string     `json:"degree" bson:"degree"`
	FieldOfStudy string     `json:"fieldofstudy" bson:"fieldofstudy"`
	From         time.Time  `json:"from" bson:"from"`
	To           *time.Time `json:"to,omitempty" bson:"to,omitempty"`
	Current      bool       `json:"current" bson:"current"`
	Description  string     `json:"description,omitempty" bson:"description,omitempty"`
}

type Profile struct {
	ID             string       `json:"_id" bson:"_id"`
	UserID         string       `json:"-" bson:"user"`
	User           Owner        `json:"user" bson:"-"`
	Company        string       `json:"company,omitempty" bson:"company,omitempty"`
	Website        string       `json:"website,omitempty" bson:"website,omitempty"`
	Location       string       `json:"location,omitempty" bson:"location,omitempty"`
	Status         string       `json:"status" bson:"status"`
	Skills         []string     `json:"skills" bson:"skills"`
	Bio            string       `json:"bio,omitempty" bson:"bio,omitempty"`
	GitHubUsername string       `json:"githubusername,omitempty" bson:"githubusername,omitempty"`
	Experience     []Experience `json:"experience" bson:"experience"`
	Education      []Education  `json:"education" bson:"education"`
	Social         Social       `json:"social" bson:"social"`
	CreatedAt      time.Time    `json:"date" bson:"date"`
	UpdatedAt      time.Time    `json:"updatedAt" bson:"updated_at"`
}

// SocialPatch carries only the providers a caller supplied.
type SocialPatch struct {
	YouTube   *string
	Twitter   *string
	Facebook  *string
	LinkedIn  *string
	Instagram *string
}

// Patch is a partial profile update. A nil field is absent and leaves the
// stored value alone; a non-nil field replaces it, empty string included.
type Patch struct {
	Company        *string
	Website        *string
	Location       *string
	Status         *string
	Bio            *string
	GitHubUsername *string
	Skills         []string // nil = absent
	Social         SocialPatch
}

// Apply merges p into base and returns the result; base is not modified.
// Storage backends that cannot call Apply express the same rules in their
// update statements.
func Apply(base Profile, p Patch) Profile {
	out := base

	setString(&out.Company, p.Company)
	setString(&out.Website, p.Website)
	setString(&out.Location, p.Location)
	setString(&out.Status, p.Status)
	setString(&out.Bio, p.Bio)
	setString(&out.GitHubUsername, p.GitHubUsername)

	if p.Skills != nil {
		out.Skills = append([]string(nil), p.Skills...)
	}

	setString(&out.Social.YouTube, p.Social.YouTube)
	setString(&out.Social.Twitter, p.Social.Twitter)
	setString(&out.Social.Facebook, p.Social.Facebook)
	setString(&out.Social.LinkedIn, p.Social.LinkedIn)
	setString(&out.Social.Instagram, p.Social.Instagram)

	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// New returns an empty profile owned by userID with the patch applied.
func New(userID string, p Patch) Profile {
	now := time.Now().UTC()

	base := Profile{
		ID:         uuid.NewString(),
		UserID:     userID,
		Skills:     []string{},
		Experience: []Experience{},
		Education:  []Education{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return Apply(base, p)
}

// ParseSkills splits a comma separated list, trimming each item and
// dropping empty ones.
func ParseSkills(raw string) []string {
	out := make([]string, 0)

	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}

// PrependExperience inserts e at the front, most recent first.
func PrependExperience(list []Experience, e Experience) []Experience {
	out := make([]Experience, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...)
}

func PrependEducation(list []Education, e Education) []Education {
	out := make([]Education, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...)
}

// RemoveExperience drops the entry with id, or fails with ErrEntryNotFound.
func RemoveExperience(list []Experience, id string) ([]Experience, error) {
	for i := range list {
		if list[i].ID == id {
			out := make([]Experience, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), nil
		}
	}
	return list, ErrEntryNotFound
}

func RemoveEducation(list []Education, id string) ([]Education, error) {
	for i := range list {
		if list[i].ID == id {
			out := make([]Education, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), nil
		}
	}
	return list, ErrEntryNotFound
}
