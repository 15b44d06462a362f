package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmate/job-ingest/internal/model"
)

// extractJSONLD maps the first schema.org JobPosting found in the page's
// ld+json blocks. It reports false when the page carries none.
func extractJSONLD(page *Page) (model.Posting, bool) {
	var node map[string]any
	page.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return true
		}
		node = findJobPosting(data)
		return node == nil
	})
	if node == nil {
		return model.Posting{}, false
	}

	p := model.Posting{
		Title:       collapse(str(node["title"])),
		Company:     organizationName(node["hiringOrganization"]),
		Location:    jobLocation(node["jobLocation"]),
		Description: StripMarkup(str(node["description"])),
		JobType:     employmentType(node["employmentType"]),
		PostedAt:    parseDate(str(node["datePosted"])),
		RawData:     node,
	}
	if p.Title == "" {
		p.Title = collapse(str(node["name"]))
	}
	p.SalaryMin, p.SalaryMax, p.SalaryCurrency = baseSalary(node["baseSalary"])

	locType := strings.ToLower(str(node["jobLocationType"]))
	if strings.Contains(locType, "remote") || strings.Contains(locType, "telecommute") {
		p.Remote = model.Bool(true)
	}
	if apply := str(node["url"]); strings.HasPrefix(apply, "http") {
		p.ApplicationURL = apply
	}
	return p, true
}

// findJobPosting walks top-level arrays and @graph containers.
func findJobPosting(data any) map[string]any {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if n := findJobPosting(item); n != nil {
				return n
			}
		}
	case map[string]any:
		if isJobPosting(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findJobPosting(graph)
		}
	}
	return nil
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func organizationName(v any) string {
	switch org := v.(type) {
	case string:
		return collapse(org)
	case map[string]any:
		return collapse(str(org["name"]))
	case []any:
		if len(org) > 0 {
			return organizationName(org[0])
		}
	}
	return ""
}

func jobLocation(v any) string {
	switch loc := v.(type) {
	case []any:
		var parts []string
		for _, item := range loc {
			if s := jobLocation(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		return address(loc["address"])
	case string:
		return collapse(loc)
	}
	return ""
}

func address(v any) string {
	switch addr := v.(type) {
	case string:
		return collapse(addr)
	case map[string]any:
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode", "addressCountry"} {
			val := addr[key]
			if country, ok := val.(map[string]any); ok {
				val = country["name"]
			}
			if s := collapse(str(val)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func employmentType(v any) model.JobType {
	switch et := v.(type) {
	case string:
		return ParseJobType(et)
	case []any:
		for _, item := range et {
			if jt := ParseJobType(str(item)); jt != model.JobTypeUnknown {
				return jt
			}
		}
	}
	return model.JobTypeUnknown
}

func baseSalary(v any) (minSalary, maxSalary *float64, currency string) {
	salary, ok := v.(map[string]any)
	if !ok {
		return nil, nil, ""
	}
	currency = str(salary["currency"])

	switch value := salary["value"].(type) {
	case map[string]any:
		minSalary = number(value["minValue"])
		maxSalary = number(value["maxValue"])
		if exact := number(value["value"]); exact != nil {
			if minSalary == nil {
				minSalary = exact
			}
			if maxSalary == nil {
				maxSalary = exact
			}
		}
		if currency == "" {
			currency = str(value["currency"])
		}
	default:
		if exact := number(value); exact != nil {
			minSalary, maxSalary = exact, exact
		}
	}
	return minSalary, maxSalary, currency
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func number(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		if err == nil {
			return &f
		}
	}
	return nil
}
