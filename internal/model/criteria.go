package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// ScrapeCriteria is a user-defined filter applied to scraped postings.
type ScrapeCriteria struct {
	Keywords            []string  `json:"keywords,omitempty"`
	ExcludeKeywords     []string  `json:"excludeKeywords,omitempty"`
	Companies           []string  `json:"companies,omitempty"`
	ExcludeCompanies    []string  `json:"excludeCompanies,omitempty"`
	Locations           []string  `json:"locations,omitempty"`
	JobTypes            []JobType `json:"jobTypes,omitempty"`
	MinSalary           *float64  `json:"minSalary,omitempty"`
	RemoteOnly          bool      `json:"remoteOnly"`
	SponsorshipRequired bool      `json:"sponsorshipRequired"`
}

// Hash returns a stable digest of the criteria. List order and letter case
// do not affect the result.
func (c ScrapeCriteria) Hash() string {
	canon := ScrapeCriteria{
		Keywords:            canonicalList(c.Keywords),
		ExcludeKeywords:     canonicalList(c.ExcludeKeywords),
		Companies:           canonicalList(c.Companies),
		ExcludeCompanies:    canonicalList(c.ExcludeCompanies),
		Locations:           canonicalList(c.Locations),
		MinSalary:           c.MinSalary,
		RemoteOnly:          c.RemoteOnly,
		SponsorshipRequired: c.SponsorshipRequired,
	}
	types := make([]string, 0, len(c.JobTypes))
	for _, t := range c.JobTypes {
		types = append(types, string(t))
	}
	for _, t := range canonicalList(types) {
		canon.JobTypes = append(canon.JobTypes, JobType(t))
	}

	// Marshalling a struct of strings, slices and pointers cannot fail.
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
