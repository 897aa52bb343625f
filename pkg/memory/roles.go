package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-ai/parley/pkg/vectorstore"
)

const (
	roleHistoryDefaultK    = 10
	inconsistencyThreshold = 0.5
)

// RoleStatement is one past statement attributed to a role.
type RoleStatement struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Role      string `json:"role"`
	DebateID  string `json:"debate_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ReversalBundle is the context handed to a role about to argue against its
// own prior position.
type ReversalBundle struct {
	PreviousRole           string          `json:"previous_role"`
	CurrentRole            string          `json:"current_role"`
	PreviousArgumentsCount int             `json:"previous_arguments_count"`
	PreviousArguments      []RoleStatement `json:"previous_arguments"`
	Context                string          `json:"context"`
}

// ConsistencyResult reports whether a new statement contradicts a role's
// stored positions.
type ConsistencyResult struct {
	HasInconsistencies bool            `json:"has_inconsistencies"`
	ConsistencyScore   float64         `json:"consistency_score"`
	Warnings           []string        `json:"warnings"`
	RelatedStatements  []RoleStatement `json:"related_statements"`
}

// RoleHistory returns up to k past statements made by role in this session,
// most relevant to topic first.
func (m *Manager) RoleHistory(ctx context.Context, role, sessionID, topic string, k int) ([]RoleStatement, error) {
	if k <= 0 {
		k = roleHistoryDefaultK
	}
	query := topic
	if query == "" {
		query = "statements by " + role
	}
	filter := vectorstore.Filter{
		vectorstore.MetaType: vectorstore.TypeRoleStatement,
		vectorstore.MetaRole: role,
	}
	if sessionID != "" {
		filter[vectorstore.MetaSessionID] = sessionID
	}
	records, err := m.store.Search(ctx, query, k, filter)
	if err != nil {
		return nil, fmt.Errorf("role history for %s: %w", role, err)
	}
	return toStatements(records), nil
}

// ReversalBundle assembles the previous role's arguments verbatim so the
// reversed role can engage its own prior claims.
func (m *Manager) ReversalBundle(ctx context.Context, previousRole, currentRole, currentTask, sessionID string) (*ReversalBundle, error) {
	statements, err := m.RoleHistory(ctx, previousRole, sessionID, currentTask, roleHistoryDefaultK)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You previously argued as the %s. Your prior statements:\n", previousRole)
	for i, s := range statements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Text)
	}
	fmt.Fprintf(&b, "\nYou are now the %s. %s\n", currentRole, currentTask)

	return &ReversalBundle{
		PreviousRole:           previousRole,
		CurrentRole:            currentRole,
		PreviousArgumentsCount: len(statements),
		PreviousArguments:      statements,
		Context:                b.String(),
	}, nil
}

// ConsistencyCheck compares a new statement against the role's stored
// positions. The score is the lowest stance similarity over related
// statements; below the threshold the statement is flagged.
func (m *Manager) ConsistencyCheck(ctx context.Context, role, newStatement, sessionID string) (*ConsistencyResult, error) {
	filter := vectorstore.Filter{
		vectorstore.MetaType: vectorstore.TypeRoleStatement,
		vectorstore.MetaRole: role,
	}
	if sessionID != "" {
		filter[vectorstore.MetaSessionID] = sessionID
	}
	records, err := m.store.Search(ctx, newStatement, roleHistoryDefaultK, filter)
	if err != nil {
		return nil, fmt.Errorf("consistency check for %s: %w", role, err)
	}

	result := &ConsistencyResult{ConsistencyScore: 1.0, Warnings: []string{}, RelatedStatements: []RoleStatement{}}
	for _, rec := range records {
		sim := StanceSimilarity(rec.Text, newStatement)
		if sim < result.ConsistencyScore {
			result.ConsistencyScore = sim
		}
		if sim < inconsistencyThreshold {
			result.RelatedStatements = append(result.RelatedStatements, toStatement(rec))
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("new statement conflicts with prior %s position: %q", role, truncate(rec.Text, 160)))
		}
	}
	result.HasInconsistencies = result.ConsistencyScore < inconsistencyThreshold
	return result, nil
}

func toStatements(records []vectorstore.Record) []RoleStatement {
	out := make([]RoleStatement, 0, len(records))
	for _, rec := range records {
		out = append(out, toStatement(rec))
	}
	return out
}

func toStatement(rec vectorstore.Record) RoleStatement {
	s := RoleStatement{ID: rec.ID, Text: rec.Text}
	if v, ok := rec.Metadata[vectorstore.MetaRole].(string); ok {
		s.Role = v
	}
	if v, ok := rec.Metadata[vectorstore.MetaDebateID].(string); ok {
		s.DebateID = v
	}
	if v, ok := rec.Metadata[vectorstore.MetaTimestamp].(string); ok {
		s.Timestamp = v
	}
	return s
}
