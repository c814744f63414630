package apify

import (
	"context"
	"strings"
)

// JobScraperInput is the run input of the job search actor
type JobScraperInput struct {
	SearchURL             string `json:"search_url"`
	IncludeCompanyDetails bool   `json:"include_company_details"`
	MaxResults            int    `json:"max_results"`
	ProxyGroup            string `json:"proxy_group"`
	MaxConcurrency        int    `json:"maxConcurrency"`
	Headless              bool   `json:"headless"`
	UseApifyProxy         bool   `json:"useApifyProxy"`
}

// ContactScraperInput is the run input of the website contact actor
type ContactScraperInput struct {
	StartURLs           []StartURL `json:"startUrls"`
	MaxDepth            int        `json:"maxDepth"`
	MaxRequests         int        `json:"maxRequests"`
	SameDomain          bool       `json:"sameDomain"`
	ConsiderChildFrames bool       `json:"considerChildFrames"`
	MaxConcurrency      int        `json:"maxConcurrency"`
	IgnoreSSLErrors     bool       `json:"ignoreSslErrors"`
	MaxRequestRetries   int        `json:"maxRequestRetries"`
}

// StartURL is one crawl entry point
type StartURL struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// JobPosting is one job found by the search actor
type JobPosting struct {
	JobURL          string
	Title           string
	CompanyName     string
	CompanyWebsite  string
	EmploymentType  string
	PostedAt        string
	CompanyStreet   string
	CompanyLocality string
}

// ScrapeJobs runs the job search actor against a search URL.
// Concurrency stays at 1 to avoid upstream rate limiting.
func (c *Client) ScrapeJobs(ctx context.Context, actorID, searchURL string, maxResults int, proxyGroup string) ([]JobPosting, error) {
	if proxyGroup == "" {
		proxyGroup = "RESIDENTIAL"
	}
	items, err := c.RunActor(ctx, actorID, JobScraperInput{
		SearchURL:             searchURL,
		IncludeCompanyDetails: true,
		MaxResults:            maxResults,
		ProxyGroup:            strings.ToUpper(proxyGroup),
		MaxConcurrency:        1,
		Headless:              true,
		UseApifyProxy:         true,
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]JobPosting, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, JobPosting{
			JobURL:          item.String("job_url"),
			Title:           item.String("title"),
			CompanyName:     item.String("company_name"),
			CompanyWebsite:  item.String("company_website"),
			EmploymentType:  item.String("employment_type"),
			PostedAt:        item.String("posted_datetime"),
			CompanyStreet:   item.String("company_street"),
			CompanyLocality: item.String("company_locality"),
		})
	}
	return jobs, nil
}

// ScrapeContacts runs the contact actor against a company website and
// returns the raw dataset items for aggregation
func (c *Client) ScrapeContacts(ctx context.Context, actorID, websiteURL string) ([]Item, error) {
	return c.RunActor(ctx, actorID, ContactScraperInput{
		StartURLs:           []StartURL{{URL: websiteURL, Method: "GET"}},
		MaxDepth:            2,
		MaxRequests:         5,
		SameDomain:          true,
		ConsiderChildFrames: true,
		MaxConcurrency:      1,
		IgnoreSSLErrors:     true,
		MaxRequestRetries:   3,
	})
}

// Strings reads a field that is a list of strings, tolerating mixed
// item types
func (i Item) Strings(key string) []string {
	raw, ok := i[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// String reads a string field from a dataset item, empty when absent
// or not a string
func (i Item) String(key string) string {
	v, _ := i[key].(string)
	return v
}
