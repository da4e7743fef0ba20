package catho

import (
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

// regime maps a canonical job type to the hiring regime filter
func regime(t domain.JobType) (string, bool) {
	switch t {
	case domain.JobTypeFullTime:
		return "efetivo", true
	case domain.JobTypeTemporary:
		return "temporario", true
	case domain.JobTypeInternship:
		return "estagio", true
	case domain.JobTypeContract:
		return "prestador-de-servicos", true
	case domain.JobTypeFreelance:
		return "autonomo", true
	case domain.JobTypePartTime, domain.JobTypeUnknown:
		return "", false
	}
	return "", false
}

// level maps a maximum seniority to the hierarchy level filter
func level(l domain.ExperienceLevel) (string, bool) {
	switch l {
	case domain.ExperienceEntry:
		return "trainee", true
	case domain.ExperienceJunior:
		return "junior", true
	case domain.ExperienceMid:
		return "pleno", true
	case domain.ExperienceSenior:
		return "senior", true
	case domain.ExperienceLead:
		return "gerencia", true
	case domain.ExperienceAny:
		return "", false
	}
	return "", false
}

// period maps a date window to the publication period filter, in days
func period(w domain.DateWindow) (string, bool) {
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
	case "CLT", "EFETIVO":
		return domain.JobTypeFullTime
	case "TEMPORARIO", "TEMPORÁRIO":
		return domain.JobTypeTemporary
	case "ESTAGIO", "ESTÁGIO":
		return domain.JobTypeInternship
	case "PJ", "PRESTADOR_DE_SERVICOS":
		return domain.JobTypeContract
	case "AUTONOMO", "AUTÔNOMO", "FREELANCE":
		return domain.JobTypeFreelance
	case "MEIO_PERIODO", "MEIO_PERÍODO":
		return domain.JobTypePartTime
	default:
		return domain.JobTypeUnknown
	}
}

func modality(raw string) domain.WorkplaceType {
	switch platform.NormalizeToken(raw) {
	case "PRESENCIAL":
		return domain.WorkplaceOnSite
	case "REMOTO", "HOME_OFFICE":
		return domain.WorkplaceRemote
	case "HIBRIDO", "HÍBRIDO":
		return domain.WorkplaceHybrid
	default:
		return domain.WorkplaceUnknown
	}
}
