package indeed

import (
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

// jobTypeParam maps a canonical job type to the jt search parameter
func jobTypeParam(t domain.JobType) (string, bool) {
	switch t {
	case domain.JobTypeFullTime:
		return "fulltime", true
	case domain.JobTypePartTime:
		return "parttime", true
	case domain.JobTypeContract:
		return "contract", true
	case domain.JobTypeTemporary:
		return "temporary", true
	case domain.JobTypeInternship:
		return "internship", true
	case domain.JobTypeFreelance, domain.JobTypeUnknown:
		return "", false
	}
	return "", false
}

// experienceParam maps a maximum seniority to the explvl parameter
func experienceParam(l domain.ExperienceLevel) (string, bool) {
	switch l {
	case domain.ExperienceEntry, domain.ExperienceJunior:
		return "entry_level", true
	case domain.ExperienceMid:
		return "mid_level", true
	case domain.ExperienceSenior, domain.ExperienceLead:
		return "senior_level", true
	case domain.ExperienceAny:
		return "", false
	}
	return "", false
}

// fromAge maps a date window to the fromage parameter, in days
func fromAge(w domain.DateWindow) (string, bool) {
	switch w {
	case domain.DateWindowPastDay:
		return "1", true
	case domain.DateWindowPastWeek:
		return "7", true
	case domain.DateWindowPastMonth:
		return "30", true
	case domain.DateWindowAny:
		return "", false
	}
	return "", false
}

func canonicalJobType(raw string) domain.JobType {
	switch platform.NormalizeToken(raw) {
	case "FULLTIME", "FULL_TIME":
		return domain.JobTypeFullTime
	case "PARTTIME", "PART_TIME":
		return domain.JobTypePartTime
	case "CONTRACT":
		return domain.JobTypeContract
	case "TEMPORARY":
		return domain.JobTypeTemporary
	case "INTERNSHIP":
		return domain.JobTypeInternship
	default:
		return domain.JobTypeUnknown
	}
}

func remoteModel(raw string) domain.WorkplaceType {
	switch platform.NormalizeToken(raw) {
	case "REMOTE_ALWAYS", "REMOTE":
		return domain.WorkplaceRemote
	case "REMOTE_COVID_TEMPORARY", "HYBRID":
		return domain.WorkplaceHybrid
	case "ON_SITE", "NONE":
		return domain.WorkplaceOnSite
	default:
		return domain.WorkplaceUnknown
	}
}
