package domain

import "time"

// MaxPhones caps the phone list persisted per record. Excess numbers are
// dropped by MergePhones, never silently kept.
const MaxPhones = 3

// Record is the reconciled, store-ready representation of one domain's
// crawl data. URL is the identity key and is always normalized and
// non-empty before a Record reaches merge or persistence.
type Record struct {
	URL             string    `json:"url"`
	Date            time.Time `json:"date"`
	Title           string    `json:"title,omitempty"`
	Twitter         string    `json:"twitter,omitempty"`
	Facebook        string    `json:"facebook,omitempty"`
	Instagram       string    `json:"instagram,omitempty"`
	LinkedIn        string    `json:"linkedin,omitempty"`
	YouTube         string    `json:"youtube,omitempty"`
	Pinterest       string    `json:"pinterest,omitempty"`
	Email           string    `json:"email,omitempty"`
	Postcode        string    `json:"postcode,omitempty"`
	StatusCode      string    `json:"status_code,omitempty"`
	RedirectURL     string    `json:"redirect_url,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
	Phones          []string  `json:"phones,omitempty"`
	IsBlacklisted   bool      `json:"is_blacklisted,omitempty"`
}

// scalarFields returns pointers to every first-non-empty-wins attribute,
// pairing the receiver's slot with the incoming value.
func scalarFields(dst *Record, src *Record) [][2]*string {
	return [][2]*string{
		{&dst.Title, &src.Title},
		{&dst.Twitter, &src.Twitter},
		{&dst.Facebook, &src.Facebook},
		{&dst.Instagram, &src.Instagram},
		{&dst.LinkedIn, &src.LinkedIn},
		{&dst.YouTube, &src.YouTube},
		{&dst.Pinterest, &src.Pinterest},
		{&dst.Email, &src.Email},
		{&dst.Postcode, &src.Postcode},
		{&dst.StatusCode, &src.StatusCode},
		{&dst.RedirectURL, &src.RedirectURL},
		{&dst.MetaDescription, &src.MetaDescription},
	}
}

// Merge folds src into r under the reconciliation policy: scalar fields
// keep the first non-empty value in arrival order, Date keeps the latest
// timestamp, the blacklist flag only ever turns on, and phones are
// unioned and capped. Incoming empties never erase populated fields.
func (r *Record) Merge(src Record) {
	for _, pair := range scalarFields(r, &src) {
		if *pair[0] == "" && *pair[1] != "" {
			*pair[0] = *pair[1]
		}
	}
	if src.Date.After(r.Date) {
		r.Date = src.Date
	}
	if src.IsBlacklisted {
		r.IsBlacklisted = true
	}
	r.Phones = MergePhones(r.Phones, src.Phones)
}

// MergePhones unions two phone lists preserving first-seen order,
// deduplicates, and truncates to MaxPhones.
func MergePhones(existing, incoming []string) []string {
	merged, _ := MergePhonesDropped(existing, incoming)
	return merged
}

// MergePhonesDropped is MergePhones plus the count of distinct numbers
// discarded by the cap, so callers can log the loss.
func MergePhonesDropped(existing, incoming []string) ([]string, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, MaxPhones)
	dropped := 0
	for _, list := range [][]string{existing, incoming} {
		for _, p := range list {
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			if len(merged) < MaxPhones {
				merged = append(merged, p)
			} else {
				dropped++
			}
		}
	}
	if len(merged) == 0 {
		return nil, dropped
	}
	return merged, dropped
}

// IsEmpty reports whether the record carries no payload beyond its
// identity and timestamp.
func (r Record) IsEmpty() bool {
	probe := r
	for _, pair := range scalarFields(&probe, &probe) {
		if *pair[0] != "" {
			return false
		}
	}
	return len(r.Phones) == 0 && !r.IsBlacklisted
}
