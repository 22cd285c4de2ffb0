// Package sanitize normalizes AI-generated HTML so it can be embedded in the
// component-based UI that renders the action plan. The browser injects the
// content into a JSX tree, which requires React attribute names and strict
// self-closing tags.
package sanitize

import "regexp"

var (
	classAttrRE = regexp.MustCompile(`class=`)
	// Matches void tags that are not already self-closed; the attribute group
	// must not end in '/', so re-running the rewrite is a no-op.
	selfClosingRE = regexp.MustCompile(`<(img|br|hr|input)((?:[^>]*[^/>])?)>`)
)

// PrepareHTML rewrites presentational markup for the consuming UI framework:
// the `class` attribute becomes `className`, and img/br/hr/input tags get an
// explicit self-closing slash.
//
// The transformation is deterministic and idempotent; the webhook proxy's
// inline path and the callback receiver must produce byte-identical output
// for the same input so that whichever write lands last is indistinguishable
// from a single write.
func PrepareHTML(html string) string {
	if html == "" {
		return ""
	}
	out := classAttrRE.ReplaceAllString(html, "className=")
	out = selfClosingRE.ReplaceAllString(out, "<$1$2/>")
	return out
}
