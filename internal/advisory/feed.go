// Package advisory loads the security advisory feed that maps platform
// versions to known vulnerabilities.
package advisory

import "context"

// Advisory is the metadata of one security advisory
type Advisory struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Link   string `json:"link"`
}

// Feed is the decoded advisory document
type Feed struct {
	VersionToAdvisories map[string][]string `json:"versionToAdvisories"`
	Advisories          map[string]Advisory `json:"advisories"`
}

// Entry is an advisory affecting a specific version
type Entry struct {
	ID string
	Advisory
}

// ForVersion returns the advisories listed for version, in feed order.
// Advisories without metadata fall back to their ID as title.
func (f *Feed) ForVersion(version string) []Entry {
	if f == nil {
		return nil
	}
	ids := f.VersionToAdvisories[version]
	if len(ids) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		meta, ok := f.Advisories[id]
		if !ok || meta.Title == "" {
			meta.Title = id
		}
		entries = append(entries, Entry{ID: id, Advisory: meta})
	}
	return entries
}

// Source provides the current advisory feed
type Source interface {
	Fetch(ctx context.Context) (*Feed, error)
}

// StaticSource serves a fixed feed
type StaticSource struct {
	Feed *Feed
}

// Fetch returns the configured feed
func (s StaticSource) Fetch(ctx context.Context) (*Feed, error) {
	return s.Feed, nil
}
