// Package table parses the markdown job tables published by aggregator
// repositories (SimplifyJobs style READMEs) into postings.
package table

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"jobmate/job-ingest/internal/model"
)

// column identifies a recognised header cell.
type column int

const (
	colCompany column = iota
	colRole
	colLocation
	colLink
	colDate
	colNotes
)

// continuation marks a row belonging to the previous row's company.
const continuation = "↳"

var (
	separatorCell = regexp.MustCompile(`^:?-{1,}:?$`)
	markdownLink  = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]*)\)`)
	hrefAttr      = regexp.MustCompile(`href="([^"]+)"`)
	bareURL       = regexp.MustCompile(`https?://[^\s)"'<>]+`)
	htmlTag       = regexp.MustCompile(`<[^>]*>`)
	ageCell       = regexp.MustCompile(`^(\d+)\s*(d|mo)$`)
)

var closedMarkers = []string{"closed", "n/a", "🔒", "[x]", "☑", "✅"}

var dateLayouts = []string{
	"Jan 02", "Jan 2", "January 2", "01/02", "1/2",
	"01/02/2006", "2006-01-02", "Jan 02, 2006", "Jan 2, 2006", "02 Jan",
}

// Importer converts markdown tables to postings. The zero value is not
// usable; construct with NewImporter.
type Importer struct {
	now func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock sets the clock used to infer missing years and relative ages.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

// NewImporter returns an Importer.
func NewImporter(opts ...Option) *Importer {
	i := &Importer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Parse scans markdown for pipe tables and returns at most maxCount postings
// (no cap when maxCount <= 0) that pass filters.
func (imp *Importer) Parse(markdown string, filters model.RepoFilters, maxCount int) []model.Posting {
	var (
		postings    []model.Posting
		columns     map[column]int
		headers     []string
		inTable     bool
		lastCompany string
	)

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "|") {
			inTable = false
			columns = nil
			continue
		}
		cells := splitRow(line)

		if !inTable {
			if cols, ok := parseHeader(cells); ok {
				columns, headers, inTable = cols, cells, true
				lastCompany = ""
			}
			continue
		}
		if isSeparator(cells) {
			continue
		}

		p, company, ok := imp.parseRow(cells, columns, headers, lastCompany, filters)
		if company != "" {
			lastCompany = company
		}
		if !ok {
			continue
		}
		postings = append(postings, p)
		if maxCount > 0 && len(postings) >= maxCount {
			break
		}
	}
	return postings
}

// parseRow returns the posting, the row's resolved company (for
// continuation rows) and whether the row survived filtering.
func (imp *Importer) parseRow(
	cells []string,
	columns map[column]int,
	headers []string,
	lastCompany string,
	filters model.RepoFilters,
) (model.Posting, string, bool) {
	cell := func(c column) string {
		idx, ok := columns[c]
		if !ok || idx >= len(cells) {
			return ""
		}
		return cells[idx]
	}

	rawCompany := strings.TrimSpace(cell(colCompany))
	var company string
	if rawCompany == continuation {
		company = lastCompany
	} else {
		company = sanitizeCompany(unwrap(rawCompany))
	}
	if company == "" {
		return model.Posting{}, "", false
	}
	if !companyAllowed(company, filters) {
		return model.Posting{}, company, false
	}

	roleText := unwrap(cell(colRole))
	noSponsor := strings.Contains(roleText, "🛂")
	title := collapse(strings.NewReplacer("🛂", "", "🇺🇸", "", "🎓", "").Replace(roleText))
	if title == "" {
		return model.Posting{}, company, false
	}

	location := cleanLocation(cell(colLocation))
	if location != "" && !locationAllowed(location, filters.Locations) {
		return model.Posting{}, company, false
	}

	linkCell := cell(colLink)
	if isClosed(linkCell) {
		return model.Posting{}, company, false
	}

	postedAt := imp.parseDate(unwrap(cell(colDate)))
	if filters.PostedAfter != nil && postedAt != nil && postedAt.Before(*filters.PostedAfter) {
		return model.Posting{}, company, false
	}

	sponsorship := parseSponsorship(cell(colNotes))
	if sponsorship == nil && noSponsor {
		sponsorship = model.Bool(false)
	}
	if filters.Sponsorship != nil && sponsorship != nil && *sponsorship != *filters.Sponsorship {
		return model.Posting{}, company, false
	}

	rawData := make(map[string]any, len(headers))
	for i, h := range headers {
		if i < len(cells) && h != "" {
			rawData[h] = cells[i]
		}
	}

	return model.Posting{
		Title:          title,
		Company:        company,
		Location:       location,
		JobType:        inferJobType(title, location),
		Source:         model.SourceGitHub,
		ApplicationURL: extractLink(linkCell),
		PostedAt:       postedAt,
		Remote:         remoteFromLocation(location),
		Sponsorship:    sponsorship,
		RawData:        rawData,
	}, company, true
}

func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseHeader(cells []string) (map[column]int, bool) {
	cols := make(map[column]int)
	set := func(c column, i int) {
		if _, ok := cols[c]; !ok {
			cols[c] = i
		}
	}
	for i, c := range cells {
		h := strings.ToLower(unwrap(c))
		switch {
		case strings.Contains(h, "company"):
			set(colCompany, i)
		case strings.Contains(h, "role"), strings.Contains(h, "position"), strings.Contains(h, "title"):
			set(colRole, i)
		case strings.Contains(h, "location"):
			set(colLocation, i)
		case strings.Contains(h, "application"), strings.Contains(h, "link"), strings.Contains(h, "apply"):
			set(colLink, i)
		case strings.Contains(h, "date"), strings.Contains(h, "posted"), h == "age":
			set(colDate, i)
		case strings.Contains(h, "sponsor"), strings.Contains(h, "notes"):
			set(colNotes, i)
		}
	}
	_, hasCompany := cols[colCompany]
	_, hasRole := cols[colRole]
	return cols, hasCompany && hasRole
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if !separatorCell.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return len(cells) > 0
}

// unwrap replaces markdown links with their text and drops emphasis and
// inline HTML.
func unwrap(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1")
	s = htmlTag.ReplaceAllString(s, " ")
	s = strings.NewReplacer("**", "", "__", "").Replace(s)
	return collapse(s)
}

func sanitizeCompany(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" &,.-", r) {
			b.WriteRune(r)
		}
	}
	return collapse(b.String())
}

func companyAllowed(company string, filters model.RepoFilters) bool {
	lower := strings.ToLower(company)
	for _, ex := range filters.ExcludeCompanies {
		if ex = strings.ToLower(strings.TrimSpace(ex)); ex != "" && strings.Contains(lower, ex) {
			return false
		}
	}
	if len(filters.Companies) == 0 {
		return true
	}
	for _, in := range filters.Companies {
		if in = strings.ToLower(strings.TrimSpace(in)); in != "" && strings.Contains(lower, in) {
			return true
		}
	}
	return false
}

func locationAllowed(location string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	lower := strings.ToLower(location)
	for _, w := range wanted {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func cleanLocation(s string) string {
	s = strings.NewReplacer("<br>", ", ", "<br/>", ", ", "<br />", ", ", "</br>", ", ").Replace(s)
	return strings.Trim(unwrap(s), ", ")
}

// isClosed checks the visible text of the link cell; URLs are ignored so a
// path such as /en/apply does not read as "n/a".
func isClosed(cell string) bool {
	text := markdownLink.ReplaceAllString(cell, "$1")
	text = htmlTag.ReplaceAllString(text, " ")
	text = bareURL.ReplaceAllString(text, " ")
	lower := strings.ToLower(text)
	for _, m := range closedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func extractLink(cell string) string {
	for _, m := range markdownLink.FindAllStringSubmatch(cell, -1) {
		if m[2] != "" {
			return m[2]
		}
	}
	if m := hrefAttr.FindStringSubmatch(cell); m != nil {
		return m[1]
	}
	return bareURL.FindString(cell)
}

func (imp *Importer) parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	now := imp.now()

	if m := ageCell.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, _ := strconv.Atoi(m[1])
		t := now.AddDate(0, 0, -n)
		if m[2] == "mo" {
			t = now.AddDate(0, -n, 0)
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &t
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = inferYear(t.Month(), t.Day(), now)
		}
		return &t
	}
	return nil
}

// inferYear places a yearless month-day in the latest year where it exists and
// is not after tomorrow. Feb 29 lands in the most recent leap year.
func inferYear(month time.Month, day int, now time.Time) time.Time {
	limit := now.AddDate(0, 0, 1)
	for year := now.Year(); ; year-- {
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if t.Month() == month && !t.After(limit) {
			return t
		}
	}
}

func parseSponsorship(cell string) *bool {
	lower := strings.ToLower(cell)
	if !strings.Contains(lower, "sponsor") {
		return nil
	}
	offered := (strings.Contains(lower, "yes") || strings.Contains(lower, "available")) &&
		!strings.Contains(lower, "not available") && !strings.Contains(lower, "unavailable")
	return model.Bool(offered)
}

func inferJobType(title, location string) model.JobType {
	t := strings.ToLower(title)
	l := strings.ToLower(location)
	switch {
	case model.MentionsInternship(t):
		return model.JobTypeInternship
	case strings.Contains(t, "part-time"), strings.Contains(t, "part time"):
		return model.JobTypePartTime
	case strings.Contains(t, "contract"):
		return model.JobTypeContract
	case strings.Contains(t, "temporary"):
		return model.JobTypeTemporary
	case strings.Contains(l, "hybrid"):
		return model.JobTypeHybrid
	case strings.Contains(l, "remote"):
		return model.JobTypeRemote
	default:
		return model.JobTypeFullTime
	}
}

func remoteFromLocation(location string) *bool {
	if location == "" {
		return nil
	}
	return model.Bool(strings.Contains(strings.ToLower(location), "remote"))
}

var spaces = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
