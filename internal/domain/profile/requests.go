package profile

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidDate = errors.New("invalid date")

// DateError names the request field holding an unparseable date.
type DateError struct {
	Field string
}

func (e *DateError) Error() string { return "invalid " + e.Field + " date" }

func (e *DateError) Is(target error) bool { return target == ErrInvalidDate }

type UpsertRequest struct {
	Company        *string `json:"company"`
	Website        *string `json:"website"`
	Location       *string `json:"location"`
	Status         *string `json:"status" binding:"required,notblank" msg:"Status is required"`
	Bio            *string `json:"bio"`
	GitHubUsername *string `json:"githubusername"`
	Skills         *string `json:"skills" binding:"required,notblank,csv_items" msg:"Skills is required"`

	YouTube   *string `json:"youtube"`
	Twitter   *string `json:"twitter"`
	Facebook  *string `json:"facebook"`
	LinkedIn  *string `json:"linkedin"`
	Instagram *string `json:"instagram"`
}

// Patch converts the request into a profile patch; nil fields stay absent.
func (r UpsertRequest) Patch() Patch {
	p := Patch{
		Company:        trimmed(r.Company),
		Website:        trimmed(r.Website),
		Location:       trimmed(r.Location),
		Status:         trimmed(r.Status),
		Bio:            r.Bio,
		GitHubUsername: trimmed(r.GitHubUsername),
		Social: SocialPatch{
			YouTube:   trimmed(r.YouTube),
			Twitter:   trimmed(r.Twitter),
			Facebook:  trimmed(r.Facebook),
			LinkedIn:  trimmed(r.LinkedIn),
			Instagram: trimmed(r.Instagram),
		},
	}

	if r.Skills != nil {
		p.Skills = ParseSkills(*r.Skills)
	}

	return p
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

type ExperienceRequest struct {
	Title       string `json:"title" binding:"required,notblank" msg:"Title is required"`
	Company     string `json:"company" binding:"required,notblank" msg:"Company is required"`
	Location    string `json:"location"`
	From        string `json:"from" binding:"required,notblank" msg:"From date is required"`
	To          string `json:"to"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

func (r ExperienceRequest) Entry() (Experience, error) {
	from, to, err := parseRange(r.From, r.To)
	if err != nil {
		return Experience{}, err
	}

	return Experience{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(r.Title),
		Company:     strings.TrimSpace(r.Company),
		Location:    strings.TrimSpace(r.Location),
		From:        from,
		To:          to,
		Current:     r.Current,
		Description: r.Description,
	}, nil
}

type EducationRequest struct {
	School       string `json:"school" binding:"required,notblank" msg:"School is required"`
	Degree       string `json:"degree" binding:"required,notblank" msg:"Degree is required"`
	FieldOfStudy string `json:"fieldofstudy" binding:"required,notblank" msg:"Field of study is required"`
	From         string `json:"from" binding:"required,notblank" msg:"From date is required"`
	To           string `json:"to"`
	Current      bool   `json:"current"`
	Description  string `json:"description"`
}

func (r EducationRequest) Entry() (Education, error) {
	from, to, err := parseRange(r.From, r.To)
	if err != nil {
		return Education{}, err
	}

	return Education{
		ID:           uuid.NewString(),
		School:       strings.TrimSpace(r.School),
		Degree:       strings.TrimSpace(r.Degree),
		FieldOfStudy: strings.TrimSpace(r.FieldOfStudy),
		From:         from,
		To:           to,
		Current:      r.Current,
		Description:  r.Description,
	}, nil
}

func parseRange(fromRaw, toRaw string) (time.Time, *time.Time, error) {
	from, err := ParseDate(fromRaw)
	if err != nil {
		return time.Time{}, nil, &DateError{Field: "from"}
	}

	if strings.TrimSpace(toRaw) == "" {
		return from, nil, nil
	}

	to, err := ParseDate(toRaw)
	if err != nil {
		return time.Time{}, nil, &DateError{Field: "to"}
	}

	return from, &to, nil
}

// ParseDate accepts the date-only form sent by HTML date inputs as well as RFC 3339.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, ErrInvalidDate
}
