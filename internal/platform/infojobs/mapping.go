package infojobs

import (
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

// contractType maps a canonical job type to the contractType offer filter
func contractType(t domain.JobType) (string, bool) {
	switch t {
	case domain.JobTypeFullTime:
		return "indefinido", true
	case domain.JobTypeTemporary:
		return "temporal", true
	case domain.JobTypeContract:
		return "de-duracion-determinada", true
	case domain.JobTypeFreelance:
		return "autonomo", true
	case domain.JobTypeInternship:
		return "formativo", true
	case domain.JobTypePartTime, domain.JobTypeUnknown:
		// part time is a working-day filter on InfoJobs, not a contract type
		return "", false
	}
	return "", false
}

// workDay maps a canonical job type to the workDay filter
func workDay(t domain.JobType) (string, bool) {
	switch t {
	case domain.JobTypePartTime:
		return "parcial", true
	case domain.JobTypeFullTime:
		return "completa", true
	case domain.JobTypeContract, domain.JobTypeTemporary, domain.JobTypeInternship,
		domain.JobTypeFreelance, domain.JobTypeUnknown:
		return "", false
	}
	return "", false
}

// experienceMin maps a maximum seniority to the experienceMin filter
func experienceMin(l domain.ExperienceLevel) (string, bool) {
	switch l {
	case domain.ExperienceEntry:
		return "NO_REQUERIDA", true
	case domain.ExperienceJunior:
		return "UN_ANYO", true
	case domain.ExperienceMid:
		return "TRES_ANYOS", true
	case domain.ExperienceSenior:
		return "CINCO_ANYOS", true
	case domain.ExperienceLead:
		return "DIEZ_ANYOS", true
	case domain.ExperienceAny:
		return "", false
	}
	return "", false
}

// sinceDate maps a date window to the sinceDate filter
func sinceDate(w domain.DateWindow) string {
	switch w {
	case domain.DateWindowPastDay:
		return "_24_HOURS"
	case domain.DateWindowPastWeek:
		return "_7_DAYS"
	case domain.DateWindowPastMonth:
		return "_15_DAYS"
	case domain.DateWindowAny:
		return "ANY"
	}
	return "ANY"
}

func canonicalJobType(raw string) domain.JobType {
	switch platform.NormalizeToken(raw) {
	case "INDEFINIDO", "FIJO_DISCONTINUO":
		return domain.JobTypeFullTime
	case "TEMPORAL":
		return domain.JobTypeTemporary
	case "DE_DURACION_DETERMINADA", "OTROS_CONTRATOS":
		return domain.JobTypeContract
	case "AUTONOMO":
		return domain.JobTypeFreelance
	case "FORMATIVO", "PRACTICAS":
		return domain.JobTypeInternship
	case "PARCIAL", "JORNADA_PARCIAL":
		return domain.JobTypePartTime
	default:
		return domain.JobTypeUnknown
	}
}

func teleworking(raw string) domain.WorkplaceType {
	switch platform.NormalizeToken(raw) {
	case "PRESENCIAL":
		return domain.WorkplaceOnSite
	case "SOLO_TELETRABAJO", "TELETRABAJO":
		return domain.WorkplaceRemote
	case "HIBRIDO", "HÍBRIDO":
		return domain.WorkplaceHybrid
	default:
		return domain.WorkplaceUnknown
	}
}
