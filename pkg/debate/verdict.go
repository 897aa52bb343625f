package debate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/models"
)

const syntheticConfidence = 50

var errNoVerdictJSON = errors.New("no verdict JSON object in reply")

// extractJSONObjects returns every balanced top-level {...} block in s,
// tracking string literals and escapes so braces inside quoted text do not
// break the scan.
func extractJSONObjects(s string) []string {
	var (
		out      []string
		depth    int
		start    int
		inString bool
		escaped  bool
	)
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					out = append(out, s[start:i+1])
				}
			}
		}
	}
	return out
}

// parseVerdict extracts and validates a VerdictReport from a raw model
// reply. Unknown fields are rejected so the dossier schema stays frozen.
func parseVerdict(raw string) (*models.VerdictReport, error) {
	candidates := extractJSONObjects(raw)
	if len(candidates) == 0 {
		return nil, errNoVerdictJSON
	}
	lastErr := errNoVerdictJSON
	for _, candidate := range candidates {
		var v models.VerdictReport
		dec := json.NewDecoder(strings.NewReader(candidate))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			lastErr = fmt.Errorf("decode verdict: %w", err)
			continue
		}
		if err := validateReport(&v); err != nil {
			lastErr = err
			continue
		}
		return &v, nil
	}
	return nil, lastErr
}

func validateReport(v *models.VerdictReport) error {
	if !models.ValidVerdict(v.Verdict) {
		return fmt.Errorf("invalid verdict %q", v.Verdict)
	}
	if v.ConfidencePct < 0 || v.ConfidencePct > 100 {
		return fmt.Errorf("confidence %d out of range", v.ConfidencePct)
	}
	if strings.TrimSpace(v.Summary) == "" {
		return errors.New("verdict summary is empty")
	}
	for _, e := range v.ForensicDossier.Entities {
		if e.Name == "" {
			return errors.New("dossier entity without a name")
		}
		if e.ReputationScore < 0 || e.ReputationScore > 1 {
			return fmt.Errorf("dossier entity %q reputation %v out of range", e.Name, e.ReputationScore)
		}
	}
	return nil
}

// syntheticVerdict is the terminal fallback after the repair call also fails
// to produce valid JSON. It leans on the moderator's framing when one exists.
func syntheticVerdict(moderatorContent string) *models.VerdictReport {
	summary := "The debate did not produce a machine-readable verdict; the claim remains contested."
	if s := strings.TrimSpace(moderatorContent); s != "" {
		summary = truncateText(s, 500)
	}
	return &models.VerdictReport{
		Verdict:         models.VerdictComplex,
		ConfidencePct:   syntheticConfidence,
		Summary:         summary,
		KeyEvidence:     []models.EvidenceItem{},
		ForensicDossier: models.ForensicDossier{Entities: []models.DossierEntity{}},
		BiasSignals:     []string{},
		Recommendation:  "Review the debate transcript and cited sources directly.",
		Contradictions:  []string{},
		Timestamp:       time.Now().UTC(),
	}
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
