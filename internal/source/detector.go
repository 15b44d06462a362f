// Package source classifies posting URLs into the platform they belong to.
package source

import (
	"regexp"
	"strings"

	"jobmate/job-ingest/internal/model"
)

// Info describes a supported source for API listings.
type Info struct {
	Source            model.Source `json:"source"`
	Name              string       `json:"name"`
	Patterns          []string     `json:"patterns"`
	RequestsPerMinute int          `json:"requestsPerMinute"`
}

type rule struct {
	info    Info
	matcher *regexp.Regexp
}

// rules is evaluated in order; the first match wins.
var rules = []rule{
	newRule(model.SourceLinkedIn, "LinkedIn", 10, `linkedin\.com/jobs`, `linkedin\.com/comm/jobs`),
	newRule(model.SourceIndeed, "Indeed", 10, `indeed\.com/(viewjob|jobs|rc/clk|cmp)`, `indeed\.[a-z.]+/viewjob`),
	newRule(model.SourceGlassdoor, "Glassdoor", 5, `glassdoor\.[a-z.]+/(job-listing|Job|partner)`),
	newRule(model.SourceGreenhouse, "Greenhouse", 30, `boards\.greenhouse\.io`, `job-boards\.greenhouse\.io`, `greenhouse\.io/.+/jobs/`),
	newRule(model.SourceLever, "Lever", 30, `jobs\.lever\.co`),
	newRule(model.SourceWorkday, "Workday", 10, `myworkdayjobs\.com`, `\.wd\d+\.myworkday`, `workday\.com/.+/job/`),
	newRule(model.SourceAshby, "Ashby", 30, `jobs\.ashbyhq\.com`),
	newRule(model.SourceSmartRecruiters, "SmartRecruiters", 20, `(jobs|careers)\.smartrecruiters\.com`),
	newRule(model.SourceWellfound, "Wellfound", 10, `wellfound\.com/(jobs|company)`, `angel\.co/(jobs|company)`),
	newRule(model.SourceGitHub, "GitHub", 30, `github\.com/[^/]+/[^/]+`, `raw\.githubusercontent\.com`),
}

var companySite = Info{
	Source:            model.SourceCompanySite,
	Name:              "Company career site",
	Patterns:          []string{"*"},
	RequestsPerMinute: 20,
}

func newRule(src model.Source, name string, rpm int, patterns ...string) rule {
	return rule{
		info: Info{
			Source:            src,
			Name:              name,
			Patterns:          patterns,
			RequestsPerMinute: rpm,
		},
		matcher: regexp.MustCompile(`(?i)(` + strings.Join(patterns, `|`) + `)`),
	}
}

// Detect returns the source a URL belongs to. URLs matching no known
// platform are classified as company career sites.
func Detect(rawURL string) model.Source {
	u := strings.TrimSpace(rawURL)
	for _, r := range rules {
		if r.matcher.MatchString(u) {
			return r.info.Source
		}
	}
	return model.SourceCompanySite
}

// Supported lists every known source, company_site last.
func Supported() []Info {
	out := make([]Info, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.info)
	}
	return append(out, companySite)
}

// DefaultLimits returns the per-minute request budget of every source.
func DefaultLimits() map[model.Source]int {
	limits := make(map[model.Source]int, len(rules)+1)
	for _, info := range Supported() {
		limits[info.Source] = info.RequestsPerMinute
	}
	return limits
}

// IsKnown reports whether s names a supported source.
func IsKnown(s model.Source) bool {
	for _, info := range Supported() {
		if info.Source == s {
			return true
		}
	}
	return false
}
