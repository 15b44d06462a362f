// Package model defines shared data structures for the ingestion pipeline.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Source identifies the platform a URL or feed belongs to.
type Source string

const (
	SourceLinkedIn        Source = "linkedin"
	SourceIndeed          Source = "indeed"
	SourceGlassdoor       Source = "glassdoor"
	SourceGreenhouse      Source = "greenhouse"
	SourceLever           Source = "lever"
	SourceWorkday         Source = "workday"
	SourceAshby           Source = "ashby"
	SourceSmartRecruiters Source = "smartrecruiters"
	SourceWellfound       Source = "wellfound"
	SourceGitHub          Source = "github"
	SourceCompanySite     Source = "company_site"
)

// JobType is the normalised employment type of a posting.
type JobType string

const (
	JobTypeFullTime   JobType = "full-time"
	JobTypePartTime   JobType = "part-time"
	JobTypeContract   JobType = "contract"
	JobTypeTemporary  JobType = "temporary"
	JobTypeInternship JobType = "internship"
	JobTypeRemote     JobType = "remote"
	JobTypeHybrid     JobType = "hybrid"
	JobTypeUnknown    JobType = "unknown"
)

var internWord = regexp.MustCompile(`(?i)\bintern(ship)?s?\b`)

// MentionsInternship reports whether text names an intern role as a word, so
// "Backend Intern" matches and "Internal Tools" does not.
func MentionsInternship(text string) bool {
	return internWord.MatchString(text)
}

// Posting is one normalised job listing. It is built once by an extractor or
// the table importer and not mutated afterwards.
type Posting struct {
	Title          string         `json:"title"`
	Company        string         `json:"company"`
	Location       string         `json:"location"`
	Description    string         `json:"description"`
	SalaryMin      *float64       `json:"salaryMin,omitempty"`
	SalaryMax      *float64       `json:"salaryMax,omitempty"`
	SalaryCurrency string         `json:"salaryCurrency,omitempty"`
	JobType        JobType        `json:"jobType"`
	Source         Source         `json:"source"`
	ApplicationURL string         `json:"applicationUrl,omitempty"`
	PostingURL     string         `json:"postingUrl,omitempty"`
	PostedAt       *time.Time     `json:"postedAt,omitempty"`
	Remote         *bool          `json:"remote,omitempty"`
	Sponsorship    *bool          `json:"sponsorship,omitempty"`
	RawData        map[string]any `json:"rawData,omitempty"`
}

// Fingerprint hashes the identifying fields of a posting. Two postings with
// the same company, title and location (case-insensitive) share a fingerprint.
func (p Posting) Fingerprint() string {
	key := strings.ToLower(strings.TrimSpace(p.Company)) + "|" +
		strings.ToLower(strings.TrimSpace(p.Title)) + "|" +
		strings.ToLower(strings.TrimSpace(p.Location))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SearchConfig mirrors the search_configs table row used to seed scheduled
// scrape jobs at start-up.
type SearchConfig struct {
	ID              string
	UserID          string
	Name            string
	Source          Source
	IntervalMinutes int
	Feeds           []string
	Criteria        ScrapeCriteria
	Enabled         bool
}

// RepoFilters narrows the rows accepted while parsing a repository table.
type RepoFilters struct {
	Companies        []string   `json:"companies,omitempty"`
	ExcludeCompanies []string   `json:"excludeCompanies,omitempty"`
	Locations        []string   `json:"locations,omitempty"`
	PostedAfter      *time.Time `json:"postedAfter,omitempty"`
	Sponsorship      *bool      `json:"sponsorship,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
