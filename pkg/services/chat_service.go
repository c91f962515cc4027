package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/agents"
	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/generator"
	"github.com/umami-labs/brigade/pkg/governance"
	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/memory"
	"github.com/umami-labs/brigade/pkg/mode"
	"github.com/umami-labs/brigade/pkg/models"
	"github.com/umami-labs/brigade/pkg/policy"
	"github.com/umami-labs/brigade/pkg/pubchem"
	"github.com/umami-labs/brigade/pkg/resource"
	"github.com/umami-labs/brigade/pkg/retrieval"
	"github.com/umami-labs/brigade/pkg/scheduler"
	"github.com/umami-labs/brigade/pkg/store"
	"github.com/umami-labs/brigade/pkg/stream"
	"github.com/umami-labs/brigade/pkg/trace"
)

// Registry identity locked onto every trace before enrichment runs.
const (
	agentRegistryVersion = "2026.08"
	ontologyVersion      = "culinary-onto-4"
)

// agentRegistryHash fingerprints the agent roster so trace consumers can
// detect roster drift between deployments.
var agentRegistryHash = func() string {
	roster := []string{
		policy.AgentIntent, policy.AgentRecipe, policy.AgentPresentation,
		policy.AgentRecipeRenderer, policy.AgentSensoryModel,
		policy.AgentExplanation, policy.AgentFrontier, policy.AgentSelector,
	}
	sum := sha256.Sum256([]byte(strings.Join(roster, ",")))
	return hex.EncodeToString(sum[:])[:12]
}()

// ChatInput contains the domain-level data needed to run one chat turn.
// Transformed from the HTTP request + headers by the handler.
type ChatInput struct {
	SessionID string
	UserID    string // From the X-User-ID header
	Message   string
	Profile   config.Profile // Explicit execution profile (optional)
	// AudienceMode overrides the stored skill level for this turn only.
	AudienceMode config.SkillLevel
	// OptimizationGoal overrides intent-goal detection, e.g. optimize_nutrition.
	OptimizationGoal string
	// Verbosity is a free-form register hint passed to the generator
	// ("concise", "detailed").
	Verbosity string
	// Ingredients overrides ingredient discovery for compound verification
	// (optional, POST body only).
	Ingredients []string
}

// ChatService runs the chat turn pipeline: policy, memory, mode, phases,
// retrieval, the enhancement DAG, compound verification, generation,
// governance, and the execution trace, publishing progress onto a stream.
type ChatService struct {
	cfg        *config.Config
	store      store.Store
	chat       llm.ChatClient
	monitor    *resource.Monitor
	indexes    *retrieval.Manager
	compounds  *pubchem.Client // nil disables compound verification
	engine     *policy.Engine
	classifier *mode.Classifier
	selector   *mode.Selector
	extractor  *memory.Extractor
	recoverer  *governance.Recoverer
	generator  *generator.Generator
}

// NewChatService creates a new ChatService. compounds and indexes may be nil;
// the corresponding pipeline stages are skipped.
func NewChatService(cfg *config.Config, st store.Store, chat llm.ChatClient, monitor *resource.Monitor, indexes *retrieval.Manager, compounds *pubchem.Client) *ChatService {
	if cfg == nil {
		panic("NewChatService: cfg must not be nil")
	}
	if st == nil {
		panic("NewChatService: store must not be nil")
	}
	if chat == nil {
		panic("NewChatService: chat must not be nil")
	}
	if monitor == nil {
		panic("NewChatService: monitor must not be nil")
	}
	return &ChatService{
		cfg:        cfg,
		store:      st,
		chat:       chat,
		monitor:    monitor,
		indexes:    indexes,
		compounds:  compounds,
		engine:     policy.NewEngine(nil),
		classifier: mode.NewClassifier(),
		selector:   mode.NewSelector(),
		extractor:  memory.NewExtractor(chat),
		recoverer:  governance.NewRecoverer(chat, cfg.ClaimExtractionTimeout),
		generator:  generator.New(chat),
	}
}

// Validate checks the input before any stream is opened, so handlers can
// still answer with a plain 4xx.
func (s *ChatService) Validate(in ChatInput) error {
	if in.SessionID == "" {
		return NewValidationError("session_id", "required")
	}
	if in.UserID == "" {
		return NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return NewValidationError("message", "required")
	}
	if in.Profile != "" && !in.Profile.IsValid() {
		return NewValidationError("execution_mode", fmt.Sprintf("unknown profile '%s'", in.Profile))
	}
	if in.AudienceMode != "" && !in.AudienceMode.IsValid() {
		return NewValidationError("audience_mode", fmt.Sprintf("unknown audience mode '%s'", in.AudienceMode))
	}
	return nil
}

// Producer returns the stream producer for one chat turn. The stream owns
// terminal-event semantics; the producer only returns its pipeline error.
func (s *ChatService) Producer(in ChatInput, st *stream.Stream) stream.Producer {
	return func(ctx context.Context) error {
		return s.run(ctx, in, st)
	}
}

func (s *ChatService) run(ctx context.Context, in ChatInput, st *stream.Stream) error {
	if err := s.monitor.CheckBudget("chat_turn", true); err != nil {
		return err
	}
	stopLeakWatch := s.monitor.LeakWatch()
	defer stopLeakWatch()

	sess, err := s.store.EnsureSession(ctx, in.SessionID, in.UserID)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	now := time.Now().UTC()
	prefs, err := s.store.Preferences(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	memory.Decay(prefs, now, s.cfg.PreferenceDecayAfter, s.cfg.PreferenceDecayAmount)
	if in.AudienceMode != "" {
		// Per-turn override: do not persist, do not touch confirmation time.
		prefs.SkillLevel.Value = in.AudienceMode
		prefs.SkillLevel.Confidence = 1.0
	}

	state := policy.ResourceState{
		Degraded: s.monitor.Degraded(),
		Pressure: s.monitor.PressureClass(),
	}
	pol := s.engine.Decide(in.Message, in.Profile, state)

	// The total latency budget covers everything downstream of the policy
	// decision; a deadline hit surfaces as RESOURCE_EXCEEDED on the stream.
	ctx, cancel := context.WithTimeout(ctx, pol.Budget.Total)
	defer cancel()

	tr := trace.New("chat")
	tr.SetPolicy(pol)
	tr.LockVersions(agentRegistryVersion, agentRegistryHash, ontologyVersion)

	intent := agents.ExtractIntent(in.Message)
	if in.OptimizationGoal != "" {
		intent.Goal = in.OptimizationGoal
		intent.Confidence = 1.0
	}
	respMode := s.classifier.Classify(in.Message, intent, sess.ResponseMode)
	if respMode != sess.ResponseMode {
		if err := s.store.SetResponseMode(ctx, sess.ID, respMode); err != nil {
			return fmt.Errorf("persist response mode: %w", err)
		}
	}
	st.Emit(stream.KindStatus, stream.StatusPayload{State: "planning", Detail: string(pol.Profile)})

	if upd, err := s.extractor.Extract(ctx, in.Message); err != nil {
		slog.Warn("Preference extraction failed, continuing without update", "error", err)
	} else if !upd.Empty() {
		memory.Apply(prefs, upd, now)
		if err := s.store.SavePreferences(ctx, prefs); err != nil {
			return fmt.Errorf("save preferences: %w", err)
		}
	}

	sessCtx, err := s.refreshContext(ctx, sess.ID, in.Message, now)
	if err != nil {
		return err
	}

	if err := s.store.AppendMessage(ctx, &models.Message{
		SessionID: sess.ID,
		Role:      models.RoleUser,
		Content:   in.Message,
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	history, err := s.store.Messages(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	phases := s.selector.Select(mode.PhaseInput{
		Message:  in.Message,
		Mode:     respMode,
		PrevMode: sess.ResponseMode,
		Intent:   intent,
		Prefs:    prefs,
	})
	phases, phaseResults := s.runPhases(ctx, phases, in.Message, st)

	s.ensureIndexes(in.Message)

	tr.SetStatus(trace.StatusEnriching)
	st.Emit(stream.KindStatus, stream.StatusPayload{State: "enriching"})
	agentResults := s.runAgents(ctx, pol, in.Message, intent, tr, st)

	res := s.verifyCompounds(ctx, in, intent, sessCtx, tr)

	tr.SetStatus(trace.StatusStreaming)
	st.Emit(stream.KindStatus, stream.StatusPayload{State: "generating"})
	text, err := s.generate(ctx, generateInput{
		mode:         respMode,
		phases:       phases,
		phaseResults: phaseResults,
		trace:        tr,
		prefs:        prefs,
		history:      history,
		agentResults: agentResults,
		verbosity:    in.Verbosity,
	}, st)
	if err != nil {
		return err
	}

	st.Emit(stream.KindStatus, stream.StatusPayload{State: "finalizing"})
	claims, invalid := s.recoverer.Recover(ctx, text)
	tr.AddClaims(claims, nil)
	if invalid {
		tr.SetValidation(trace.ValidationInvalid)
	}
	if res != nil {
		tr.SetConfidence(res.Confidence())
	}
	tr.SetStatus(trace.StatusComplete)

	traceMap, err := tr.ToMap()
	if err != nil {
		return fmt.Errorf("serialize trace: %w", err)
	}
	if err := s.store.AppendMessage(ctx, &models.Message{
		SessionID: sess.ID,
		Role:      models.RoleAssistant,
		Content:   text,
		Trace:     traceMap,
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	st.Emit(stream.KindExecutionTrace, stream.TracePayload{Trace: traceMap})

	// Every stream closes with a nutrition summary, zeroed when no
	// verification ran.
	report := stream.NutritionReportPayload{}
	if res != nil {
		report = stream.NutritionReportPayload{
			Resolved:   len(res.Resolved),
			Unresolved: len(res.Unresolved),
			Confidence: res.Confidence(),
			Proof:      tr.PubChemProof(),
		}
	}
	st.Emit(stream.KindNutritionReport, report)
	return nil
}

// refreshContext lifts session context from the message and persists it when
// the message carried anything; otherwise the previous context stands.
func (s *ChatService) refreshContext(ctx context.Context, sessionID, message string, now time.Time) (*models.SessionContext, error) {
	lifted := memory.ExtractContext(sessionID, message, now)
	if lifted != nil && (lifted.CurrentDish != "" || len(lifted.KeyIngredients) > 0 || lifted.Technique != "") {
		if err := s.store.SaveContext(ctx, lifted); err != nil {
			return nil, fmt.Errorf("save session context: %w", err)
		}
		return lifted, nil
	}
	prev, err := s.store.Context(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session context: %w", err)
	}
	return prev, nil
}

// Per-phase reasoning instructions for the planning pass.
var phasePrompts = map[config.Phase]string{
	config.PhaseDiagnose:  "Identify what went wrong or what is being asked about this cooking situation. One or two sentences, no advice.",
	config.PhaseModel:     "Describe the culinary science at work here. Declarative sentences only; do not instruct the user.",
	config.PhasePredict:   "Predict the outcome if the user proceeds unchanged. One or two sentences.",
	config.PhaseRecommend: "Recommend the concrete next adjustments. Use direct action verbs.",
}

// runPhases generates and validates content for each selected phase,
// announcing survivors on the stream. Phases failing their content contract
// are dropped; losing all of them reverts the turn to zero-phase generation.
func (s *ChatService) runPhases(ctx context.Context, phases []config.Phase, message string, st *stream.Stream) ([]config.Phase, map[config.Phase]string) {
	kept := phases[:0:0]
	results := make(map[config.Phase]string, len(phases))
	for _, p := range phases {
		result, err := s.chat.Complete(ctx, llm.Request{
			System:    phasePrompts[p],
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: message}},
			MaxTokens: 256,
		})
		if err != nil {
			slog.Warn("Phase content generation failed, dropping phase", "phase", p, "error", err)
			continue
		}
		if !mode.ValidatePhaseContent(p, result.Text) {
			slog.Warn("Phase content failed validation, dropping phase", "phase", p)
			continue
		}
		kept = append(kept, p)
		results[p] = result.Text
		st.Emit(stream.KindThinkingPhase, stream.ThinkingPhasePayload{Phase: p, Content: result.Text})
	}
	return kept, results
}

// ensureIndexes routes the message and makes the selected indexes resident.
// Memory refusals degrade retrieval, never the turn.
func (s *ChatService) ensureIndexes(message string) {
	if s.indexes == nil {
		return
	}
	for _, name := range retrieval.Route(message) {
		if _, err := s.indexes.Ensure(name); err != nil {
			if errors.Is(err, retrieval.ErrInsufficientMemory) {
				slog.Warn("Index skipped under memory pressure", "index", name)
				continue
			}
			slog.Error("Index load failed", "index", name, "error", err)
		}
	}
}

// runAgents executes the enhancement DAG, records every vertex on the trace,
// and publishes completed enhancement outputs.
func (s *ChatService) runAgents(ctx context.Context, pol *models.ExecutionPolicy, message string, intent *models.Intent, tr *trace.Trace, st *stream.Stream) map[string]*agents.Output {
	sched := scheduler.New()
	agents.BuildGraph(sched, s.chat, pol, message, intent)
	results, err := sched.Execute(ctx, pol, s.monitor.Degraded())
	if err != nil {
		slog.Error("Enhancement graph rejected", "error", err)
		return nil
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	outputs := make(map[string]*agents.Output)
	for _, name := range names {
		r := results[name]
		inv := models.AgentInvocation{
			AgentName: name,
			Status:    r.Status,
			Reason:    r.Reason,
			DependsOn: r.DependsOn,
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
		}
		if out, ok := r.Value.(*agents.Output); ok {
			inv.Model = out.Model
			inv.OutputTokens = out.OutputTokens
			outputs[name] = out
			if name != policy.AgentIntent {
				st.Emit(stream.KindEnhancement, stream.EnhancementPayload{Agent: name, Content: out.Content})
			}
		}
		tr.AddInvocation(inv)
	}
	return outputs
}

// verifyCompounds resolves compounds for any turn with a discoverable
// ingredient source (explicit list, intent, recipe lines, session context),
// attaching the proof to the trace. Returns nil when nothing was
// discoverable; the caller still reports a zeroed nutrition summary.
func (s *ChatService) verifyCompounds(ctx context.Context, in ChatInput, intent *models.Intent, sessCtx *models.SessionContext, tr *trace.Trace) *pubchem.Result {
	if s.compounds == nil {
		return nil
	}
	names := pubchem.DiscoverIngredients(in.Ingredients, intent, in.Message, sessCtx)
	if len(names) == 0 {
		return nil
	}

	res := s.compounds.ResolveIngredients(ctx, names)
	if err := tr.SetPubChemEnforcement(res.Resolved); err != nil {
		slog.Error("Trace rejected compound enforcement", "error", err)
	}
	return res
}

type generateInput struct {
	mode         config.Mode
	phases       []config.Phase
	phaseResults map[config.Phase]string
	trace        *trace.Trace
	prefs        *models.UserPreferences
	history      []*models.Message
	agentResults map[string]*agents.Output
	verbosity    string
}

// generate produces the governed response text and streams it token by
// token. The full narrative is assembled and passed through nutrition
// governance before the first token event, so stripped content never
// reaches the wire.
func (s *ChatService) generate(ctx context.Context, in generateInput, st *stream.Stream) (string, error) {
	turns := make([]llm.Message, 0, len(in.history))
	for _, m := range in.history {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Message{Role: role, Content: m.Content})
	}

	prompt := generator.PromptInput{
		Mode:         in.mode,
		Phases:       in.phases,
		PhaseResults: in.phaseResults,
		Preferences:  memory.InjectionBlock(in.prefs),
	}
	if recipe, ok := in.agentResults[policy.AgentRecipe]; ok {
		prompt.Preferences = strings.TrimSpace(prompt.Preferences + "\n\nWorking recipe draft:\n" + recipe.Content)
	}
	if in.verbosity != "" {
		prompt.Preferences = strings.TrimSpace(prompt.Preferences + "\n\nRequested verbosity: " + in.verbosity)
	}
	if in.trace.PubChemUsed() {
		prompt.Compounds = in.trace.Compounds()
	}

	text, err := s.generator.Generate(ctx, prompt, turns, nil)
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}

	governed, removed := governance.Strip(in.mode, text)
	if removed > 0 {
		slog.Info("Nutrition governance stripped numeric claims", "count", removed, "mode", in.mode)
	}
	for _, token := range strings.SplitAfter(governed, " ") {
		if token == "" {
			continue
		}
		st.EmitToken(token)
	}
	return governed, nil
}
