package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobmate/job-ingest/internal/model"
)

var whitespace = regexp.MustCompile(`\s+`)

// collapse trims s and folds internal whitespace runs into single spaces.
func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// StripMarkup returns the visible text of an HTML fragment.
func StripMarkup(fragment string) string {
	// Structured data often carries entity-escaped HTML.
	if strings.Contains(fragment, "&lt;") {
		fragment = html.UnescapeString(fragment)
	}
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	doc.Find("script, style").Remove()
	// Keep block boundaries readable once tags are gone.
	doc.Find("p, li, br, div, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml(" ")
	})
	return collapse(doc.Text())
}

// firstText returns the trimmed text of the first selector that matches
// non-empty content.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := collapse(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value among selectors.
func firstAttr(doc *goquery.Document, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr(attr); ok {
			if v = collapse(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		sel := "meta[name='" + name + "'], meta[property='" + name + "']"
		if v := firstAttr(doc, "content", sel); v != "" {
			return v
		}
	}
	return ""
}

// ParseJobType maps free-form employment type text to a JobType.
func ParseJobType(s string) model.JobType {
	t := strings.ToLower(s)
	t = strings.NewReplacer("_", "-", " ", "-").Replace(t)
	switch {
	case t == "":
		return model.JobTypeUnknown
	case model.MentionsInternship(t):
		return model.JobTypeInternship
	case strings.Contains(t, "full"):
		return model.JobTypeFullTime
	case strings.Contains(t, "part"):
		return model.JobTypePartTime
	case strings.Contains(t, "contract"):
		return model.JobTypeContract
	case strings.Contains(t, "temp"):
		return model.JobTypeTemporary
	case strings.Contains(t, "remote"), strings.Contains(t, "telecommute"):
		return model.JobTypeRemote
	case strings.Contains(t, "hybrid"):
		return model.JobTypeHybrid
	default:
		return model.JobTypeUnknown
	}
}

// remoteFromText reports true when text mentions remote work and nil when
// it says nothing either way.
func remoteFromText(texts ...string) *bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		if strings.Contains(lower, "remote") || strings.Contains(lower, "work from home") {
			return model.Bool(true)
		}
	}
	return nil
}

// parseDate accepts the date layouts seen in structured data.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// companyFromURL guesses an employer name from a page's host, e.g.
// careers.acme.com or acme.wd5.myworkdayjobs.com both give "Acme".
func companyFromURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	labels := strings.Split(strings.ToLower(u.Hostname()), ".")
	var name string
	switch {
	case strings.HasSuffix(u.Hostname(), "myworkdayjobs.com"):
		name = labels[0]
	case len(labels) >= 2:
		name = labels[len(labels)-2]
	default:
		name = labels[0]
	}
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
