package evidence

import (
	"regexp"
	"strings"

	"screentrace/internal/capture"
)

// Classifier decides whether a foreground context looks like document
// consumption. The default heuristic classifier works without a model; a
// learned classifier can replace it behind the same contract.
//
//go:generate mockgen -source=trigger.go -destination=mocks/mock_classifier.go -package=mocks
type Classifier interface {
	IsDocumentContext(fg capture.Foreground, dwellSeconds int64) bool
}

// viewerApps are app ids whose foreground presence alone signals document
// consumption.
var viewerApps = map[string]struct{}{
	"com.apple.Preview":        {},
	"com.adobe.Reader":         {},
	"com.adobe.Acrobat.Pro":    {},
	"org.mozilla.firefox.pdf":  {},
	"com.readdle.PDFExpert":    {},
	"com.apple.iBooksX":        {},
	"com.kindle.Kindle":        {},
	"org.zotero.zotero":        {},
	"net.sourceforge.skim-app": {},
}

// titlePattern matches window titles that name a document file.
var titlePattern = regexp.MustCompile(`(?i)\.(pdf|epub|djvu|docx?|pptx?|txt|md)(\s|\)|\]|$)`)

// HeuristicClassifier flags document contexts from app identity, window
// title, and dwell time.
type HeuristicClassifier struct {
	// MinDwellSeconds is how long a context must hold focus before it
	// counts as reading rather than passing through. Zero disables the
	// dwell requirement.
	MinDwellSeconds int64
}

// IsDocumentContext reports whether the foreground looks like the user is
// reading a document.
func (c *HeuristicClassifier) IsDocumentContext(fg capture.Foreground, dwellSeconds int64) bool {
	if c.MinDwellSeconds > 0 && dwellSeconds < c.MinDwellSeconds {
		return false
	}
	if fg.DocPath != "" {
		return true
	}
	if _, ok := viewerApps[fg.AppID]; ok {
		return true
	}
	if titlePattern.MatchString(fg.WindowTitle) {
		return true
	}
	if fg.URL != "" && strings.HasSuffix(strings.ToLower(urlPath(fg.URL)), ".pdf") {
		return true
	}
	return false
}

// urlPath strips scheme, host, query and fragment, keeping only the path.
func urlPath(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j:]
		} else {
			return ""
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
