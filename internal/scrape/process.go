// Package scrape discovers leads: it runs job searches against the
// actor platform, enriches each company with scraped contact details
// and appends the result to the targets worksheet.
package scrape

import (
	"net/url"
	"strings"

	"github.com/leadflowhq/leadflow/internal/apify"
)

// BuildSearchURL constructs a job search URL for a keyword and
// location. The trailing filters restrict results to remote positions
// posted in the last 24 hours.
func BuildSearchURL(keyword, location string) string {
	params := url.Values{}
	params.Set("keywords", keyword)
	params.Set("location", location)
	return "https://www.linkedin.com/jobs/search/?" + params.Encode() + "&f_WT=2&f_TPR=r86400"
}

// ContactInfo is the aggregated, cleaned contact data for one company
type ContactInfo struct {
	Domain    string
	Emails    []string
	Phones    []string
	LinkedIn  string
	Twitter   string
	Instagram string
	Facebook  string
	YouTube   string
	TikTok    string
	Pinterest string
	Discord   string
}

// AggregateContacts merges all dataset items from a contact scrape into
// one cleaned record: phones reduced to digits, emails lowercased and
// trimmed, both deduplicated in first-seen order, and the first link
// kept per social network.
func AggregateContacts(items []apify.Item) ContactInfo {
	if len(items) == 0 {
		return ContactInfo{}
	}

	var emails, phones []string
	links := map[string][]string{}
	for _, item := range items {
		emails = append(emails, item.Strings("emails")...)
		phones = append(phones, item.Strings("phones")...)
		phones = append(phones, item.Strings("phonesUncertain")...)
		for _, key := range []string{"linkedIns", "twitters", "instagrams", "facebooks", "youtubes", "tiktoks", "pinterests", "discords"} {
			links[key] = append(links[key], item.Strings(key)...)
		}
	}

	return ContactInfo{
		Domain:    items[0].String("domain"),
		Emails:    CleanEmails(emails),
		Phones:    CleanPhones(phones),
		LinkedIn:  firstNonEmpty(links["linkedIns"]),
		Twitter:   firstNonEmpty(links["twitters"]),
		Instagram: firstNonEmpty(links["instagrams"]),
		Facebook:  firstNonEmpty(links["facebooks"]),
		YouTube:   firstNonEmpty(links["youtubes"]),
		TikTok:    firstNonEmpty(links["tiktoks"]),
		Pinterest: firstNonEmpty(links["pinterests"]),
		Discord:   firstNonEmpty(links["discords"]),
	}
}

// CleanPhones strips every non-digit character and deduplicates,
// keeping first-seen order
func CleanPhones(phones []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, phone := range phones {
		var b strings.Builder
		for _, r := range phone {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		cleaned := b.String()
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// CleanEmails trims, lowercases and deduplicates, keeping first-seen
// order
func CleanEmails(emails []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, email := range emails {
		cleaned := strings.ToLower(strings.TrimSpace(email))
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

func firstNonEmpty(links []string) string {
	for _, link := range links {
		if link != "" {
			return link
		}
	}
	return ""
}
