package harvest

import "bytes"

// HeuristicRenderDetector implements RenderDetector using simple HTML
// signals: framework marker strings and a floor on extractable text.
type HeuristicRenderDetector struct {
	minTextBytes int
	markers      [][]byte
}

// NewHeuristicRenderDetector constructs a detector with the configured
// thresholds. Markers are matched case-insensitively against the raw body.
func NewHeuristicRenderDetector(minTextBytes int, markers []string) *HeuristicRenderDetector {
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = string(bytes.TrimSpace([]byte(m)))
		if m == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(m)))
	}
	return &HeuristicRenderDetector{
		minTextBytes: minTextBytes,
		markers:      lowered,
	}
}

// ShouldPromote reports whether the fetched page looks script-built enough
// to deserve one pass through the headless renderer. Already-rendered
// responses never promote again.
func (d *HeuristicRenderDetector) ShouldPromote(resp FetchResponse) bool {
	if d == nil || resp.UsedHeadless {
		return false
	}
	if len(resp.Body) == 0 {
		return false
	}
	if d.containsMarker(resp.Body) {
		return true
	}
	return d.textBelowThreshold(resp.Body)
}

func (d *HeuristicRenderDetector) containsMarker(body []byte) bool {
	if len(d.markers) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

func (d *HeuristicRenderDetector) textBelowThreshold(body []byte) bool {
	if d.minTextBytes <= 0 {
		return false
	}
	text, err := ExtractText(body)
	if err != nil {
		return true
	}
	return len(text) < d.minTextBytes
}
