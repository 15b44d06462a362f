package scraper

import (
	"slices"
	"strings"

	"jobmate/job-ingest/internal/model"
)

// Matches reports whether p satisfies criteria. Fields a posting does not
// carry (unknown salary, job type, location or sponsorship) never exclude it,
// except that RemoteOnly requires a posting known to be remote.
func Matches(p model.Posting, c model.ScrapeCriteria) bool {
	if len(c.Keywords) > 0 && !containsAny(p.Title+" "+p.Description, c.Keywords) {
		return false
	}
	if containsAny(p.Title+" "+p.Company+" "+p.Description, c.ExcludeKeywords) {
		return false
	}
	if len(c.ExcludeCompanies) > 0 && containsAny(p.Company, c.ExcludeCompanies) {
		return false
	}
	if len(c.Companies) > 0 && !containsAny(p.Company, c.Companies) {
		return false
	}
	if len(c.Locations) > 0 && p.Location != "" && !containsAny(p.Location, c.Locations) {
		return false
	}
	if len(c.JobTypes) > 0 && p.JobType != "" && p.JobType != model.JobTypeUnknown &&
		!slices.Contains(c.JobTypes, p.JobType) {
		return false
	}
	if c.MinSalary != nil {
		if best := bestSalary(p); best != nil && *best < *c.MinSalary {
			return false
		}
	}
	if c.RemoteOnly && !isRemote(p) {
		return false
	}
	if c.SponsorshipRequired && p.Sponsorship != nil && !*p.Sponsorship {
		return false
	}
	return true
}

// Filter returns the postings matching c, preserving order.
func Filter(postings []model.Posting, c model.ScrapeCriteria) []model.Posting {
	out := make([]model.Posting, 0, len(postings))
	for _, p := range postings {
		if Matches(p, c) {
			out = append(out, p)
		}
	}
	return out
}

// RepoFilters converts criteria into the filters applied while parsing
// repository tables.
func RepoFilters(c model.ScrapeCriteria) model.RepoFilters {
	f := model.RepoFilters{
		Companies:        c.Companies,
		ExcludeCompanies: c.ExcludeCompanies,
		Locations:        c.Locations,
	}
	if c.SponsorshipRequired {
		f.Sponsorship = model.Bool(true)
	}
	return f
}

func bestSalary(p model.Posting) *float64 {
	if p.SalaryMax != nil {
		return p.SalaryMax
	}
	return p.SalaryMin
}

func isRemote(p model.Posting) bool {
	if p.Remote != nil {
		return *p.Remote
	}
	return p.JobType == model.JobTypeRemote || strings.Contains(strings.ToLower(p.Location), "remote")
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
