package linkedin

import (
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

// jobTypeCode maps a canonical job type to the f_JT search filter
func jobTypeCode(t domain.JobType) (string, bool) {
	switch t {
	case domain.JobTypeFullTime:
		return "F", true
	case domain.JobTypePartTime:
		return "P", true
	case domain.JobTypeContract:
		return "C", true
	case domain.JobTypeTemporary:
		return "T", true
	case domain.JobTypeInternship:
		return "I", true
	case domain.JobTypeFreelance, domain.JobTypeUnknown:
		return "", false
	}
	return "", false
}

// experienceCodes maps a maximum seniority to the f_E levels at or below it
func experienceCodes(l domain.ExperienceLevel) []string {
	switch l {
	case domain.ExperienceEntry:
		return []string{"1", "2"}
	case domain.ExperienceJunior:
		return []string{"1", "2", "3"}
	case domain.ExperienceMid, domain.ExperienceSenior:
		return []string{"1", "2", "3", "4"}
	case domain.ExperienceLead:
		return []string{"1", "2", "3", "4", "5"}
	case domain.ExperienceAny:
		return nil
	}
	return nil
}

// datePostedCode maps a date window to the f_TPR filter
func datePostedCode(w domain.DateWindow) (string, bool) {
	switch w {
	case domain.DateWindowPastDay:
		return "r86400", true
	case domain.DateWindowPastWeek:
		return "r604800", true
	case domain.DateWindowPastMonth:
		return "r2592000", true
	case domain.DateWindowAny:
		return "", false
	}
	return "", false
}

// salaryBucket maps a yearly minimum salary to the f_SB2 bucket
func salaryBucket(amount int) (string, bool) {
	switch {
	case amount >= 200000:
		return "9", true
	case amount >= 160000:
		return "8", true
	case amount >= 140000:
		return "7", true
	case amount >= 120000:
		return "6", true
	case amount >= 100000:
		return "5", true
	case amount >= 80000:
		return "4", true
	case amount >= 60000:
		return "3", true
	case amount >= 40000:
		return "2", true
	default:
		return "", false
	}
}

func canonicalJobType(raw string) domain.JobType {
	switch platform.NormalizeToken(raw) {
	case "F", "FULL_TIME", "FULLTIME":
		return domain.JobTypeFullTime
	case "P", "PART_TIME", "PARTTIME":
		return domain.JobTypePartTime
	case "C", "CONTRACT":
		return domain.JobTypeContract
	case "T", "TEMPORARY":
		return domain.JobTypeTemporary
	case "I", "INTERNSHIP":
		return domain.JobTypeInternship
	default:
		return domain.JobTypeUnknown
	}
}

func workplaceType(raw string) domain.WorkplaceType {
	switch platform.NormalizeToken(raw) {
	case "1", "ON_SITE", "ONSITE":
		return domain.WorkplaceOnSite
	case "2", "REMOTE":
		return domain.WorkplaceRemote
	case "3", "HYBRID":
		return domain.WorkplaceHybrid
	default:
		return domain.WorkplaceUnknown
	}
}
