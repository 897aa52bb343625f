// Package debate runs the orchestrator state machine: evidence gathering,
// role turns with token streaming, optional role reversal, and verdict
// synthesis, publishing an ordered event stream along the way.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/events"
	"github.com/parley-ai/parley/pkg/evidence"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
)

const (
	defaultTotalBudget  = 5 * time.Minute
	defaultEvidenceMax  = 5
	defaultMaxTokens    = 1024
	maxConsecutiveFails = 2

	// Evidence gathering faster than this is attributed to the cache.
	cacheHitThreshold = 1500 * time.Millisecond
)

// Options configure an Orchestrator.
type Options struct {
	TotalBudget    time.Duration
	EvidenceMax    int
	Model          string
	MaxTokens      int
	Temperature    float32
	ReversalRounds int
}

// Request starts one debate.
type Request struct {
	Topic          string
	SessionID      string
	MemoryEnabled  bool
	EnableReversal bool
	ReversalRounds int // 0 uses the configured default
}

// Orchestrator owns debate execution. One Run call is one goroutine; the
// orchestrator is the only publisher on the debate's event stream.
type Orchestrator struct {
	gateway  *llm.Gateway
	memory   *memory.Manager
	gatherer *evidence.Gatherer
	prompts  *config.Prompts
	registry *Registry
	opts     Options
}

// New creates an Orchestrator. memory and gatherer may be nil; the debate
// then runs on internal knowledge only.
func New(gw *llm.Gateway, mem *memory.Manager, gatherer *evidence.Gatherer, prompts *config.Prompts, registry *Registry, opts Options) *Orchestrator {
	if opts.TotalBudget <= 0 {
		opts.TotalBudget = defaultTotalBudget
	}
	if opts.EvidenceMax <= 0 {
		opts.EvidenceMax = defaultEvidenceMax
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.ReversalRounds <= 0 {
		opts.ReversalRounds = 1
	}
	return &Orchestrator{
		gateway:  gw,
		memory:   mem,
		gatherer: gatherer,
		prompts:  prompts,
		registry: registry,
		opts:     opts,
	}
}

// Run executes a full debate, publishing events to stream and closing it
// before returning. The returned Debate is complete and owned by the caller.
func (o *Orchestrator) Run(ctx context.Context, req Request, stream *events.Stream) *models.Debate {
	d := &models.Debate{
		ID:        ulid.Make().String(),
		Topic:     req.Topic,
		SessionID: req.SessionID,
		Mode:      models.ModeDebate,
		CreatedAt: time.Now().UTC(),
		Status:    models.DebateStatusRunning,
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(ctx, o.opts.TotalBudget)
	defer cancel()
	if o.registry != nil {
		o.registry.Register(d.ID, cancel)
		defer o.registry.Unregister(d.ID)
	}

	started := time.Now()
	slog.Info("Debate started", "debate_id", d.ID, "topic", d.Topic, "session_id", d.SessionID)

	bundle := o.gatherEvidence(ctx, d)
	o.emit(stream, events.EventMetadata, events.MetadataPayload{
		DebateID:          d.ID,
		Topic:             d.Topic,
		ModelUsed:         o.modelLabel(),
		MemoryEnabled:     req.MemoryEnabled,
		V2FeaturesEnabled: req.EnableReversal,
		RAGStatus:         d.RAGStatus,
		EvidenceCount:     bundle.Len(),
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
	})

	evidenceText := formatEvidence(bundle)
	contents := map[models.Role]string{}
	consecutiveFails := 0

	runRound := func(roles []models.Role, reversal bool) bool {
		for _, role := range roles {
			if ctx.Err() != nil {
				o.finishInterrupted(ctx, d, stream)
				return false
			}
			reversalCtx := ""
			if reversal && role != models.RoleModerator {
				reversalCtx = o.reversalContext(ctx, d, role, req, contents)
			}
			turn := o.runTurn(ctx, d, stream, req, role, evidenceText, reversalCtx)
			d.Turns = append(d.Turns, *turn)
			d.TurnCount++
			if turn.Status == models.TurnStatusCompleted {
				consecutiveFails = 0
				contents[role] = turn.Content
				continue
			}
			if ctx.Err() != nil {
				o.finishInterrupted(ctx, d, stream)
				return false
			}
			consecutiveFails++
			if consecutiveFails >= maxConsecutiveFails {
				o.fail(stream, d, events.CodeConsecutiveFails,
					fmt.Sprintf("%d consecutive role turns failed", consecutiveFails))
				return false
			}
		}
		return true
	}

	if !runRound([]models.Role{models.RoleProponent, models.RoleOpponent, models.RoleModerator}, false) {
		return d
	}

	var reversalStats *events.ReversalStats
	if req.EnableReversal {
		rounds := req.ReversalRounds
		if rounds <= 0 {
			rounds = o.opts.ReversalRounds
		}
		o.emit(stream, events.EventRoleReversalStart, events.RoleReversalStartPayload{Rounds: rounds})

		initial := memory.Divergence(contents[models.RoleProponent], contents[models.RoleOpponent])
		completed := 0
		for i := 0; i < rounds; i++ {
			if !runRound([]models.Role{models.RoleReversedProponent, models.RoleReversedOpponent, models.RoleModerator}, true) {
				return d
			}
			completed++
		}
		final := memory.Divergence(contents[models.RoleReversedProponent], contents[models.RoleReversedOpponent])
		reversalStats = convergenceStats(initial, final, completed)
		o.emit(stream, events.EventRoleReversalComplete, events.RoleReversalCompletePayload{Stats: *reversalStats})
	}

	if ctx.Err() != nil {
		o.finishInterrupted(ctx, d, stream)
		return d
	}

	failedTurns := 0
	for _, t := range d.Turns {
		if t.Status == models.TurnStatusSkipped {
			failedTurns++
		}
	}
	o.emit(stream, events.EventAnalyticsMetrics, events.AnalyticsPayload{
		Turns:         d.TurnCount,
		FailedTurns:   failedTurns,
		EvidenceCount: bundle.Len(),
		RAGStatus:     d.RAGStatus,
		ProvidersUsed: providersUsed(d.Turns),
		DurationMS:    time.Since(started).Milliseconds(),
		ReversalStats: reversalStats,
	})

	verdict := o.runVerdict(ctx, d, evidenceText, bundle, contents[models.RoleModerator])
	if ctx.Err() != nil {
		o.finishInterrupted(ctx, d, stream)
		return d
	}
	d.FinalVerdict = verdict
	o.emit(stream, events.EventFinalVerdict, events.FinalVerdictPayload{Verdict: *verdict})

	d.Status = models.DebateStatusCompleted
	o.emit(stream, events.EventEnd, events.EndPayload{})
	slog.Info("Debate completed", "debate_id", d.ID, "turns", d.TurnCount,
		"verdict", verdict.Verdict, "duration_ms", time.Since(started).Milliseconds())
	return d
}

// gatherEvidence runs the pre-debate evidence block and derives rag_status
// from its wall clock. Gatherer failure degrades to internal knowledge.
func (o *Orchestrator) gatherEvidence(ctx context.Context, d *models.Debate) *models.EvidenceBundle {
	if o.gatherer == nil {
		d.RAGStatus = models.RAGInternalKnowledge
		return &models.EvidenceBundle{}
	}
	start := time.Now()
	bundle, err := o.gatherer.Gather(ctx, d.Topic, o.opts.EvidenceMax)
	if err != nil || bundle == nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Evidence gathering failed, continuing without evidence",
				"debate_id", d.ID, "error", err)
		}
		bundle = &models.EvidenceBundle{}
	}
	switch {
	case bundle.Len() == 0:
		d.RAGStatus = models.RAGInternalKnowledge
	case time.Since(start) < cacheHitThreshold:
		d.RAGStatus = models.RAGCacheHit
	default:
		d.RAGStatus = models.RAGLiveFetch
	}
	return bundle
}

// runTurn executes one role turn end to end: start_role, streamed tokens,
// end_role on success or turn_error on failure. Failed turns keep their
// index and are recorded as skipped.
func (o *Orchestrator) runTurn(ctx context.Context, d *models.Debate, stream *events.Stream, req Request, role models.Role, evidenceText, reversalCtx string) *models.Turn {
	turn := &models.Turn{
		DebateID:  d.ID,
		TurnIndex: d.TurnCount,
		Role:      role,
		StartedAt: time.Now().UTC(),
	}
	o.emit(stream, events.EventStartRole, events.StartRolePayload{Role: role, TurnIndex: turn.TurnIndex})

	msgs, err := o.turnMessages(ctx, d, req, role, evidenceText, reversalCtx)
	if err == nil {
		err = o.streamTurn(ctx, stream, role, msgs, turn)
	}
	if err != nil {
		turn.Status = models.TurnStatusSkipped
		turn.Error = err.Error()
		o.emit(stream, events.EventTurnError, events.TurnErrorPayload{
			Role: role, TurnIndex: turn.TurnIndex, Message: err.Error(),
		})
		slog.Warn("Turn failed", "debate_id", d.ID, "role", role, "turn_index", turn.TurnIndex, "error", err)
		return turn
	}

	now := time.Now().UTC()
	turn.CompletedAt = &now
	turn.Status = models.TurnStatusCompleted
	o.emit(stream, events.EventEndRole, events.EndRolePayload{
		Role: role, TurnIndex: turn.TurnIndex,
		Length: len(turn.Content), ProviderID: turn.ProviderUsed,
	})

	if o.memory != nil && req.MemoryEnabled {
		if _, err := o.memory.PersistTurn(ctx, d.ID, role, turn.Content, d.SessionID, d.Topic); err != nil {
			slog.Warn("Turn persistence failed", "debate_id", d.ID, "role", role, "error", err)
		}
	}
	return turn
}

// streamTurn drains a committed gateway stream into the turn, forwarding
// each delta as a token event.
func (o *Orchestrator) streamTurn(ctx context.Context, stream *events.Stream, role models.Role, msgs []llm.Message, turn *models.Turn) error {
	handle, err := o.gateway.Stream(ctx, msgs, o.params())
	if err != nil {
		return err
	}
	turn.ProviderUsed = handle.ProviderID

	var b strings.Builder
	for chunk := range handle.Chunks {
		if chunk.DeltaText != "" {
			b.WriteString(chunk.DeltaText)
			o.emit(stream, events.EventToken, events.TokenPayload{Role: role, Text: chunk.DeltaText})
		}
	}
	if err := handle.Err(); err != nil {
		return err
	}
	turn.Content = b.String()
	if strings.TrimSpace(turn.Content) == "" {
		return errors.New("provider returned an empty turn")
	}
	return nil
}

// turnMessages builds the system and user messages for one role turn. With
// memory available the user payload comes from BuildContext; otherwise it is
// composed from the transcript directly.
func (o *Orchestrator) turnMessages(ctx context.Context, d *models.Debate, req Request, role models.Role, evidenceText, reversalCtx string) ([]llm.Message, error) {
	system := o.prompts.Role(role)
	if reversalCtx != "" {
		system += "\n\n" + reversalCtx
	}

	task := "Debate this claim: " + d.Topic
	var user string
	if o.memory != nil {
		payload, _, err := o.memory.BuildContext(ctx, memory.BuildInput{
			CurrentTask:  task,
			Query:        d.Topic,
			ShortTerm:    transcriptTurns(d.Turns),
			UseShortTerm: true,
			UseLongTerm:  req.MemoryEnabled,
			FormatStyle:  memory.FormatDebate,
			SessionID:    d.SessionID,
			DebateID:     d.ID,
			Role:         role,
		})
		if err != nil {
			return nil, err
		}
		user = payload
	} else {
		var b strings.Builder
		for _, t := range transcriptTurns(d.Turns) {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString(task)
		user = b.String()
	}
	if evidenceText != "" {
		user = evidenceText + "\n" + user
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// reversalContext hands a reversed role its own prior statements. Vector
// recall is preferred; the in-debate transcript is the fallback.
func (o *Orchestrator) reversalContext(ctx context.Context, d *models.Debate, role models.Role, req Request, contents map[models.Role]string) string {
	prev := models.RoleOpponent
	if role == models.RoleReversedOpponent {
		prev = models.RoleProponent
	}

	if o.memory != nil && req.MemoryEnabled {
		bundle, err := o.memory.ReversalBundle(ctx, string(prev), string(role), d.Topic, d.SessionID)
		if err == nil && bundle.PreviousArgumentsCount > 0 {
			return bundle.Context
		}
		if err != nil {
			slog.Warn("Reversal bundle unavailable, using transcript",
				"debate_id", d.ID, "role", role, "error", err)
		}
	}
	prior := contents[prev]
	if prior == "" {
		return ""
	}
	return fmt.Sprintf("You previously argued as the %s:\n%s\n\nYou are now the %s and must argue the opposite position, engaging your prior points directly.",
		prev, prior, role)
}

// runVerdict produces the structured verdict: one parse attempt, one repair
// call, then the synthetic fallback.
func (o *Orchestrator) runVerdict(ctx context.Context, d *models.Debate, evidenceText string, bundle *models.EvidenceBundle, moderatorContent string) *models.VerdictReport {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: o.prompts.Role(models.RoleVerdict)},
		{Role: llm.RoleUser, Content: verdictPrompt(d, evidenceText)},
	}

	res, err := o.gateway.Call(ctx, msgs, o.params())
	if err != nil {
		slog.Warn("Verdict call failed, using synthetic verdict", "debate_id", d.ID, "error", err)
		return syntheticVerdict(moderatorContent)
	}
	verdict, parseErr := parseVerdict(res.Text)
	if parseErr != nil {
		repair := append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: res.Text},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Your previous reply was not a valid verdict (%v). Emit ONLY a valid JSON object matching the schema, with no surrounding text.", parseErr)},
		)
		res, err = o.gateway.Call(ctx, repair, o.params())
		if err == nil {
			verdict, parseErr = parseVerdict(res.Text)
		}
		if err != nil || parseErr != nil {
			slog.Warn("Verdict repair failed, using synthetic verdict",
				"debate_id", d.ID, "call_error", err, "parse_error", parseErr)
			return syntheticVerdict(moderatorContent)
		}
	}

	if verdict.Timestamp.IsZero() {
		verdict.Timestamp = time.Now().UTC()
	}
	if len(verdict.KeyEvidence) == 0 && bundle.Len() > 0 {
		n := bundle.Len()
		if n > 3 {
			n = 3
		}
		verdict.KeyEvidence = append(verdict.KeyEvidence, bundle.Items[:n]...)
	}
	return verdict
}

// finishInterrupted closes out a debate whose context ended: deadline maps
// to timeout/FAILED, explicit cancel to cancelled/CANCELLED.
func (o *Orchestrator) finishInterrupted(ctx context.Context, d *models.Debate, stream *events.Stream) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.fail(stream, d, events.CodeTimeout, "debate exceeded its total time budget")
		return
	}
	d.Status = models.DebateStatusCancelled
	o.emit(stream, events.EventError, events.ErrorPayload{Message: "debate cancelled", Code: events.CodeCancelled})
	o.emit(stream, events.EventEnd, events.EndPayload{})
	slog.Info("Debate cancelled", "debate_id", d.ID, "turns", d.TurnCount)
}

func (o *Orchestrator) fail(stream *events.Stream, d *models.Debate, code, msg string) {
	d.Status = models.DebateStatusFailed
	o.emit(stream, events.EventError, events.ErrorPayload{Message: msg, Code: code})
	o.emit(stream, events.EventEnd, events.EndPayload{})
	slog.Error("Debate failed", "debate_id", d.ID, "code", code, "message", msg)
}

func (o *Orchestrator) emit(stream *events.Stream, name string, payload any) {
	if err := stream.Publish(name, payload); err != nil {
		slog.Warn("Event publish failed", "event", name, "error", err)
	}
}

func (o *Orchestrator) params() llm.Params {
	return llm.Params{
		Model:       o.opts.Model,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
	}
}

func (o *Orchestrator) modelLabel() string {
	if o.opts.Model != "" {
		return o.opts.Model
	}
	if providers := o.gateway.Providers(); len(providers) > 0 {
		return providers[0]
	}
	return "unknown"
}

// convergenceStats clamps final divergence to never exceed the initial one;
// reversed rounds argue toward each other's original positions, so measured
// divergence above the starting point is noise.
func convergenceStats(initial, final float64, rounds int) *events.ReversalStats {
	initial = clamp01(initial)
	final = clamp01(final)
	if final > initial {
		final = initial
	}
	rate := 0.0
	if initial > 1e-9 {
		rate = (initial - final) / initial
	}
	return &events.ReversalStats{
		InitialDivergence: initial,
		FinalDivergence:   final,
		ConvergenceRate:   rate,
		RoundsCompleted:   rounds,
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func formatEvidence(bundle *models.EvidenceBundle) string {
	if bundle.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("=== EVIDENCE ===\n")
	for _, item := range bundle.Items {
		fmt.Fprintf(&b, "[%d] %s (%s, authority %.2f)\n%s\n",
			item.CitationIdx, item.Title, item.Domain, item.Authority, item.Snippet)
	}
	return b.String()
}

func verdictPrompt(d *models.Debate, evidenceText string) string {
	var b strings.Builder
	if evidenceText != "" {
		b.WriteString(evidenceText)
		b.WriteString("\n")
	}
	b.WriteString("=== DEBATE TRANSCRIPT ===\n")
	for _, t := range d.Turns {
		if t.Status != models.TurnStatusCompleted {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", strings.ToUpper(string(t.Role)), t.Content)
	}
	fmt.Fprintf(&b, "CLAIM: %s\n", d.Topic)
	return b.String()
}

func transcriptTurns(turns []models.Turn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		if t.Status != models.TurnStatusCompleted {
			continue
		}
		out = append(out, models.ChatTurn{Role: string(t.Role), Content: t.Content})
	}
	return out
}

func providersUsed(turns []models.Turn) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range turns {
		if t.ProviderUsed != "" && !seen[t.ProviderUsed] {
			seen[t.ProviderUsed] = true
			out = append(out, t.ProviderUsed)
		}
	}
	return out
}
