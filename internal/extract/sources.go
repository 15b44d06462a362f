package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/source"
)

// Platform adapters. Selectors follow each board's public markup and need
// revisiting whenever a platform ships a redesign.

func extractGreenhouse(page *Page) model.Posting {
	doc := page.Doc
	company := firstText(doc, ".company-name", "span.company-name", ".job__header .company")
	company = strings.TrimSpace(strings.TrimPrefix(company, "at "))
	if company == "" {
		company = greenhouseBoard(page.URL)
	}
	p := model.Posting{
		Title:       firstText(doc, "h1.app-title", ".app-title", ".job__title h1", "h1"),
		Company:     company,
		Location:    firstText(doc, ".location", ".job__location"),
		Description: StripMarkup(htmlOf(page, "#content", ".job__description", "#app_body")),
	}
	p.Remote = remoteFromText(p.Location)
	return p
}

var greenhouseBoardPattern = regexp.MustCompile(`greenhouse\.io/(?:embed/job_app\?for=)?([a-zA-Z0-9_-]+)`)

func greenhouseBoard(pageURL string) string {
	m := greenhouseBoardPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return ""
	}
	return titleWord(m[1])
}

func extractLever(page *Page) model.Posting {
	doc := page.Doc
	company := firstAttr(doc, "alt", ".main-header-logo img")
	if company == "" {
		company = leverCompany(page.URL)
	}
	commitment := firstText(doc, ".posting-categories .commitment", ".commitment")
	p := model.Posting{
		Title:       firstText(doc, ".posting-headline h2", ".posting-header h2", "h2"),
		Company:     company,
		Location:    firstText(doc, ".posting-categories .location", ".sort-by-time.posting-category", ".location"),
		Description: StripMarkup(htmlOf(page, `[data-qa="job-description"]`, ".section-wrapper.page-full-width", ".content")),
		JobType:     ParseJobType(commitment),
	}
	p.Remote = remoteFromText(p.Location, firstText(doc, ".workplaceTypes"))
	if apply := firstAttr(doc, "href", ".postings-btn-wrapper a", "a.postings-btn"); strings.HasPrefix(apply, "http") {
		p.ApplicationURL = apply
	}
	return p
}

var leverCompanyPattern = regexp.MustCompile(`jobs\.lever\.co/([a-zA-Z0-9_-]+)`)

func leverCompany(pageURL string) string {
	m := leverCompanyPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return ""
	}
	return titleWord(m[1])
}

func extractWorkday(page *Page) model.Posting {
	doc := page.Doc
	p := model.Posting{
		Title:       firstText(doc, `[data-automation-id="jobPostingHeader"]`, "h2", "h1"),
		Company:     companyFromURL(page.URL),
		Location:    firstText(doc, `[data-automation-id="locations"] dd`, `[data-automation-id="locations"]`),
		Description: StripMarkup(htmlOf(page, `[data-automation-id="jobPostingDescription"]`)),
		JobType:     ParseJobType(firstText(doc, `[data-automation-id="time"] dd`, `[data-automation-id="time"]`)),
	}
	p.Remote = remoteFromText(p.Location, firstText(doc, `[data-automation-id="remoteType"]`))
	return p
}

func extractLinkedIn(page *Page) model.Posting {
	doc := page.Doc
	p := model.Posting{
		Title:       firstText(doc, ".top-card-layout__title", ".topcard__title", "h1"),
		Company:     firstText(doc, ".topcard__org-name-link", ".topcard__flavor a", ".top-card-layout__second-subline a"),
		Location:    firstText(doc, ".topcard__flavor--bullet", ".top-card-layout__second-subline .topcard__flavor--bullet"),
		Description: StripMarkup(htmlOf(page, ".show-more-less-html__markup", ".description__text")),
	}
	doc.Find(".description__job-criteria-item").Each(func(_ int, s *goquery.Selection) {
		header := strings.ToLower(collapse(s.Find(".description__job-criteria-subheader").Text()))
		if strings.Contains(header, "employment type") {
			p.JobType = ParseJobType(collapse(s.Find(".description__job-criteria-text").Text()))
		}
	})
	p.Remote = remoteFromText(p.Location)
	return p
}

func extractIndeed(page *Page) model.Posting {
	doc := page.Doc
	company := firstText(doc, `[data-company-name="true"]`, `[data-testid="inlineHeader-companyName"]`, ".jobsearch-CompanyInfoContainer a")
	p := model.Posting{
		Title:       strings.TrimSuffix(firstText(doc, "h1.jobsearch-JobInfoHeader-title", `[data-testid="jobsearch-JobInfoHeader-title"]`, "h1"), " - job post"),
		Company:     company,
		Location:    firstText(doc, `[data-testid="inlineHeader-companyLocation"]`, `[data-testid="job-location"]`, ".jobsearch-JobInfoHeader-subtitle > div:last-child"),
		Description: StripMarkup(htmlOf(page, "#jobDescriptionText")),
		JobType:     ParseJobType(firstText(doc, `[data-testid="jobsearch-JobInfoHeader-jobType"]`, ".jobsearch-JobMetadataHeader-item")),
	}
	p.Remote = remoteFromText(p.Location)
	return p
}

var ashbyLocationPattern = regexp.MustCompile(`"locationName"\s*:\s*"([^"]+)"`)

// Ashby renders client-side; the server page carries only metadata and the
// app state blob.
func extractAshby(page *Page) model.Posting {
	doc := page.Doc
	title := metaContent(doc, "og:title")
	if title == "" {
		title = firstText(doc, "title")
	}
	var company string
	if role, org, ok := strings.Cut(title, " @ "); ok {
		title, company = strings.TrimSpace(role), strings.TrimSpace(org)
	}
	p := model.Posting{
		Title:       title,
		Company:     company,
		Description: metaContent(doc, "description", "og:description"),
	}
	if m := ashbyLocationPattern.FindStringSubmatch(page.Raw); m != nil {
		p.Location = collapse(m[1])
	}
	p.Remote = remoteFromText(p.Location)
	return p
}

var (
	embeddedCompanyPattern  = regexp.MustCompile(`"(?:company|employer|hiringOrganization)"\s*:\s*"([^"]{1,200})"`)
	embeddedLocationPattern = regexp.MustCompile(`"(?:location|jobLocation)"\s*:\s*"([^"]{1,200})"`)
)

// extractGeneric reads page-level metadata. It serves sources without an
// adapter and pages where the adapter found nothing.
func extractGeneric(page *Page) model.Posting {
	doc := page.Doc
	title := firstText(doc, "title")
	if title == "" {
		title = metaContent(doc, "og:title")
	}

	company := metaContent(doc, "author", "og:site_name")
	if company == "" {
		if m := embeddedCompanyPattern.FindStringSubmatch(page.Raw); m != nil {
			company = collapse(m[1])
		}
	}
	if company == "" && source.Detect(page.URL) == model.SourceCompanySite {
		company = companyFromURL(page.URL)
	}

	var location string
	if m := embeddedLocationPattern.FindStringSubmatch(page.Raw); m != nil {
		location = collapse(m[1])
	}

	description := metaContent(doc, "description", "og:description")
	return model.Posting{
		Title:       title,
		Company:     company,
		Location:    location,
		Description: description,
		Remote:      remoteFromText(location, title),
	}
}

// htmlOf returns the inner HTML of the first selector that matches.
func htmlOf(page *Page, selectors ...string) string {
	for _, sel := range selectors {
		s := page.Doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if h, err := s.Html(); err == nil && strings.TrimSpace(h) != "" {
			return h
		}
	}
	return ""
}

func titleWord(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
