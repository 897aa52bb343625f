package models

import "time"

// Verdict outcomes.
const (
	VerdictVerified = "VERIFIED"
	VerdictDebunked = "DEBUNKED"
	VerdictComplex  = "COMPLEX"
)

// DossierEntity is one named entity in the forensic dossier. The field set
// is frozen; additions require a schema version bump.
type DossierEntity struct {
	Name            string   `json:"name"`
	ReputationScore float64  `json:"reputation_score"`
	RedFlags        []string `json:"red_flags"`
}

// ForensicDossier groups the entity assessments of a verdict.
type ForensicDossier struct {
	Entities []DossierEntity `json:"entities"`
}

// VerdictReport is the structured outcome of a debate's verdict stage.
type VerdictReport struct {
	Verdict         string          `json:"verdict"`
	ConfidencePct   int             `json:"confidence_pct"`
	Summary         string          `json:"summary"`
	KeyEvidence     []EvidenceItem  `json:"key_evidence"`
	ForensicDossier ForensicDossier `json:"forensic_dossier"`
	BiasSignals     []string        `json:"bias_signals"`
	Recommendation  string          `json:"recommendation"`
	Contradictions  []string        `json:"contradictions"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ValidVerdict reports whether v is one of the three allowed outcomes.
func ValidVerdict(v string) bool {
	switch v {
	case VerdictVerified, VerdictDebunked, VerdictComplex:
		return true
	}
	return false
}
