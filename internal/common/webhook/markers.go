package webhook

import "strings"

// MarkerDetector finds workflow failure phrases inside otherwise successful
// responses. Matching is a case-insensitive substring test, so a legitimate
// answer that quotes one of the phrases is also flagged.
type MarkerDetector struct {
	markers []string
}

func NewMarkerDetector(markers []string) *MarkerDetector {
	d := &MarkerDetector{}
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			d.markers = append(d.markers, m)
		}
	}
	return d
}

// Match returns the first configured marker found in any of texts.
func (d *MarkerDetector) Match(texts ...string) (string, bool) {
	if d == nil || len(d.markers) == 0 {
		return "", false
	}
	for _, t := range texts {
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		for _, m := range d.markers {
			if strings.Contains(lower, m) {
				return m, true
			}
		}
	}
	return "", false
}

func (d *MarkerDetector) Markers() []string {
	out := make([]string, len(d.markers))
	copy(out, d.markers)
	return out
}
