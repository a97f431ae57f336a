// Package platform catalogs the target services sessions authenticate
// against: where to log in, how to probe for a live session, and where
// to compose a post.
package platform

import (
	"fmt"
	"sort"
)

// Platform describes one target service.
type Platform struct {
	Name string
	// LoginURL is the page the guided onboarding flow opens.
	LoginURL string
	// LoginPathMarker is a URL substring that identifies the login page;
	// landing on it after a probe navigation means the session is gone.
	LoginPathMarker string
	// ProbeURL is an authenticated-only page used to check session
	// validity.
	ProbeURL string
	// AuthMarker is a selector present only for authenticated users.
	AuthMarker string

	ComposeURL     string
	ComposeBox     string
	ComposeSubmit  string
	PostPermalinkA string
}

var catalog = map[string]Platform{
	"linkedin": {
		Name:            "linkedin",
		LoginURL:        "https://www.linkedin.com/login",
		LoginPathMarker: "/login",
		ProbeURL:        "https://www.linkedin.com/feed/",
		AuthMarker:      "#global-nav",
		ComposeURL:      "https://www.linkedin.com/feed/",
		ComposeBox:      "div.ql-editor[contenteditable=true]",
		ComposeSubmit:   "button.share-actions__primary-action",
		PostPermalinkA:  "a.app-aware-link[href*='/feed/update/']",
	},
	"twitter": {
		Name:            "twitter",
		LoginURL:        "https://x.com/i/flow/login",
		LoginPathMarker: "/login",
		ProbeURL:        "https://x.com/home",
		AuthMarker:      "a[data-testid='AppTabBar_Profile_Link']",
		ComposeURL:      "https://x.com/compose/post",
		ComposeBox:      "div[data-testid='tweetTextarea_0']",
		ComposeSubmit:   "button[data-testid='tweetButton']",
		PostPermalinkA:  "a[href*='/status/']",
	},
}

// Lookup returns the named platform.
func Lookup(name string) (Platform, error) {
	p, ok := catalog[name]
	if !ok {
		return Platform{}, fmt.Errorf("platform: unknown platform %q (known: %v)", name, Names())
	}
	return p, nil
}

// Register adds or replaces a platform definition. Intended for custom
// targets and tests.
func Register(p Platform) error {
	if p.Name == "" || p.ProbeURL == "" {
		return fmt.Errorf("platform: name and probe URL are required")
	}
	catalog[p.Name] = p
	return nil
}

// Names lists the known platforms in stable order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
