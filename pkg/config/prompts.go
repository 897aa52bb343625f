package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/parley-ai/parley/pkg/models"
)

// Prompts holds the role prompt table and the domain authority overlay.
// User YAML overrides merge over built-in defaults.
type Prompts struct {
	RolePrompts     map[string]string  `yaml:"role_prompts"`
	AuthorityScores map[string]float64 `yaml:"authority_scores"`
}

// builtinPrompts seed every role so the system runs without a YAML file.
var builtinPrompts = map[string]string{
	string(models.RoleProponent): `You are the PROPONENT in a structured fact-checking debate.
Argue the strongest honest case FOR the claim. Cite evidence by its [n] index.
Never invent sources. Concede points the evidence does not support.`,

	string(models.RoleOpponent): `You are the OPPONENT in a structured fact-checking debate.
Argue the strongest honest case AGAINST the claim. Cite evidence by its [n] index.
Attack weak reasoning and unsupported leaps, not the other debater.`,

	string(models.RoleModerator): `You are the MODERATOR of a structured fact-checking debate.
Weigh both sides impartially. Identify which arguments the cited evidence actually
supports, note open questions, and summarize the state of the claim.`,

	string(models.RoleReversedProponent): `You previously argued AGAINST the claim; you now argue FOR it.
Engage your own prior objections directly using the provided history of your statements.
Cite evidence by its [n] index.`,

	string(models.RoleReversedOpponent): `You previously argued FOR the claim; you now argue AGAINST it.
Engage your own prior arguments directly using the provided history of your statements.
Cite evidence by its [n] index.`,

	string(models.RoleVerdict): `You are the VERDICT engine of a fact-checking system.
Based on the full debate transcript and evidence, emit ONLY a JSON object with exactly
these fields:
{
  "verdict": "VERIFIED" | "DEBUNKED" | "COMPLEX",
  "confidence_pct": <integer 0-100>,
  "summary": "<two-sentence assessment>",
  "key_evidence": [],
  "forensic_dossier": {"entities": [{"name": "...", "reputation_score": <0-1>, "red_flags": []}]},
  "bias_signals": ["..."],
  "recommendation": "<one sentence for the reader>",
  "contradictions": ["..."]
}
No prose before or after the JSON.`,

	"analysis": `You are a careful analytical assistant. Answer using the provided evidence,
citing items by their [n] index. When the evidence contradicts the question's premise,
say so explicitly. Never assert facts the evidence does not contain.`,

	"text_action_summarize": `Summarize the following text fragment in at most three sentences,
preserving names, dates, and numbers.`,

	"text_action_explain": `Explain the following text fragment in plain language for a
general reader. Keep technical terms but define them.`,
}

// LoadPrompts builds the prompt table. path may be empty; YAML string values
// pass through {{.VAR}} environment expansion before unmarshaling.
func LoadPrompts(path string) (*Prompts, error) {
	p := &Prompts{
		RolePrompts:     make(map[string]string, len(builtinPrompts)),
		AuthorityScores: map[string]float64{},
	}
	for k, v := range builtinPrompts {
		p.RolePrompts[k] = v
	}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file %s: %w", path, err)
	}
	var user Prompts
	if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	if err := mergo.Merge(p, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge prompts: %w", err)
	}
	return p, nil
}

// Role returns the prompt for a debate role, falling back to the moderator
// prompt for unknown roles rather than sending an empty system prompt.
func (p *Prompts) Role(role models.Role) string {
	if prompt, ok := p.RolePrompts[string(role)]; ok && prompt != "" {
		return prompt
	}
	return p.RolePrompts[string(models.RoleModerator)]
}

// Named returns a non-role prompt by key ("analysis",
// "text_action_summarize", ...).
func (p *Prompts) Named(key string) string {
	return p.RolePrompts[key]
}
