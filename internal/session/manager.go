// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/agentsig/internal/model"
	"github.com/jeranaias/agentsig/internal/signature"
	"github.com/jeranaias/agentsig/internal/tools"
	"github.com/jeranaias/agentsig/internal/util"
)

// ErrNilArgs is reported when a targeted tool call arrives without arguments.
var ErrNilArgs = errors.New("tool call has no arguments")

// previewWidth bounds the before/after text kept in outcomes.
const previewWidth = 160

// =============================================================================
// CONFIG
// =============================================================================

// Config holds configuration for a coordinator.
type Config struct {
	// Codec renders and detects signatures.
	Codec signature.Codec

	// Registry decides which tools are targeted. Nil means the built-ins.
	Registry *tools.Registry

	// GitCommit and GitHub enable the shell command families.
	GitCommit bool
	GitHub    bool

	// DefaultModel seeds the display name before any model event arrives.
	DefaultModel string

	// HistorySize bounds the in-memory outcome history (default: 100).
	HistorySize int

	// Logger receives one line per tool call. Nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Codec:       signature.Default(),
		Registry:    tools.NewRegistry(),
		GitCommit:   true,
		GitHub:      true,
		HistorySize: 100,
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns the session cell and signs tool calls.
type Coordinator struct {
	mu sync.RWMutex

	sessionID string
	startTime time.Time

	// Session cell
	displayName string
	modelID     string
	lastUpdate  time.Time

	// Signing setup, replaced as a whole by Reconfigure
	codec    signature.Codec
	registry *tools.Registry
	rewriter *tools.Rewriter

	logger *zap.Logger

	// History and counters
	history     []Outcome
	historySize int
	stats       counters

	// beforeHandle runs inside the recovery boundary. Tests only.
	beforeHandle func(tool string)
}

type counters struct {
	calls        int
	targeted     int
	mutated      int
	modelUpdates int
	recovered    int
	byAction     map[tools.Action]int
	byTool       map[string]int
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		sessionID:   uuid.NewString(),
		startTime:   time.Now(),
		displayName: model.UnknownModel,
		stats: counters{
			byAction: make(map[tools.Action]int),
			byTool:   make(map[string]int),
		},
	}
	c.apply(cfg)
	if cfg.DefaultModel != "" {
		c.displayName = model.FormatID(cfg.DefaultModel)
		c.modelID = cfg.DefaultModel
	}
	return c
}

// apply installs the signing setup from cfg. Caller holds the write lock or
// owns c exclusively.
func (c *Coordinator) apply(cfg Config) {
	if cfg.Codec == (signature.Codec{}) {
		cfg.Codec = signature.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.NewRegistry()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c.codec = cfg.Codec
	c.registry = cfg.Registry
	c.rewriter = tools.NewRewriter(cfg.Codec).WithFamilies(cfg.GitCommit, cfg.GitHub)
	c.logger = cfg.Logger.With(zap.String("session", c.sessionID))
	c.historySize = cfg.HistorySize
	if len(c.history) > c.historySize {
		c.history = append([]Outcome(nil), c.history[len(c.history)-c.historySize:]...)
	}
}

// Reconfigure swaps codec, registry, command families and logger. The
// current display name is kept.
func (c *Coordinator) Reconfigure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(cfg)
	c.logger.Info("coordinator reconfigured",
		zap.String("host", c.codec.HostName),
		zap.Int("tools", c.registry.Len()))
}

// SessionID returns the session identifier.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// DisplayName returns the display name that the next signature will carry.
func (c *Coordinator) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

// Signature renders the signature for the current display name.
func (c *Coordinator) Signature() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.codec.Render(c.displayName)
}

// Codec returns the active codec.
func (c *Coordinator) Codec() signature.Codec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.codec
}

// Registry returns the active tool registry.
func (c *Coordinator) Registry() *tools.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

// =============================================================================
// MODEL EVENTS
// =============================================================================

// HandleModelUpdate records the model of a chat event and returns the new
// display name. A nil identity stores the unknown-model sentinel.
func (c *Coordinator) HandleModelUpdate(id *model.Identity) string {
	name := model.FormatIdentity(id)

	c.mu.Lock()
	prev := c.displayName
	c.displayName = name
	c.modelID = id.ID()
	c.lastUpdate = time.Now()
	c.stats.modelUpdates++
	logger := c.logger
	c.mu.Unlock()

	if prev != name {
		logger.Info("model changed",
			zap.Stringer("model", id),
			zap.String("display_name", name),
			zap.String("previous", prev))
	} else {
		logger.Debug("model update", zap.Stringer("model", id))
	}
	return name
}

// =============================================================================
// TOOL EVENTS
// =============================================================================

// Outcome describes what HandleToolCall did.
type Outcome struct {
	ID      string       `json:"id"`
	Tool    string       `json:"tool"`
	Kind    string       `json:"kind"`
	Action  tools.Action `json:"action"`
	Mutated bool         `json:"mutated"`
	Model   string       `json:"model"`

	// Before and After are one-line previews of the signed field.
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`

	Err  error     `json:"-"`
	Time time.Time `json:"time"`
}

// ErrorMessage returns the outcome's error text, empty if there was none.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// snapshot is the signing setup read under one read lock.
type snapshot struct {
	displayName string
	codec       signature.Codec
	registry    *tools.Registry
	rewriter    *tools.Rewriter
	logger      *zap.Logger
	hook        func(string)
}

func (c *Coordinator) snapshot() snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot{
		displayName: c.displayName,
		codec:       c.codec,
		registry:    c.registry,
		rewriter:    c.rewriter,
		logger:      c.logger,
		hook:        c.beforeHandle,
	}
}

// HandleToolCall signs the arguments of a targeted tool call in place.
// Untargeted tools, already signed payloads and malformed arguments are left
// untouched. It never panics.
func (c *Coordinator) HandleToolCall(tool string, args map[string]any) (out Outcome) {
	snap := c.snapshot()
	kind := snap.registry.KindOf(tool)

	out = Outcome{
		ID:     uuid.NewString(),
		Tool:   tool,
		Kind:   kind.String(),
		Action: tools.ActionNone,
		Model:  snap.displayName,
		Time:   time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.Action = tools.ActionMalformed
			out.Mutated = false
			out.Err = fmt.Errorf("recovered from panic handling %s: %v", tool, r)
			c.mu.Lock()
			c.stats.recovered++
			c.mu.Unlock()
		}
		c.record(out)
		logOutcome(snap.logger, out)
	}()

	if snap.hook != nil {
		snap.hook(tool)
	}

	switch kind {
	case tools.KindStructured:
		signBody(snap, args, &out)
	case tools.KindShell:
		rewriteCommand(snap, args, &out)
	}
	out.Mutated = out.Action.Mutates()
	return out
}

// signBody appends the signature to a structured "body" argument.
func signBody(snap snapshot, args map[string]any, out *Outcome) {
	if args == nil {
		out.Action = tools.ActionMalformed
		out.Err = ErrNilArgs
		return
	}

	sig := snap.codec.Render(snap.displayName)
	raw, present := args[tools.BodyArg]

	var body string
	if present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			out.Action = tools.ActionMalformed
			out.Err = fmt.Errorf("%s argument is %T, not a string", tools.BodyArg, raw)
			return
		}
		body = s
	}
	out.Before = util.Preview(body, previewWidth)

	switch {
	case body == "":
		args[tools.BodyArg] = sig
		out.Action = tools.ActionBodySet
	case snap.codec.HasSignature(body):
		out.Action = tools.ActionAlreadySigned
		return
	default:
		args[tools.BodyArg] = strings.TrimRight(body, " \t\r\n") + "\n\n" + sig
		out.Action = tools.ActionBodyAppend
	}
	out.After = util.Preview(args[tools.BodyArg].(string), previewWidth)
}

// rewriteCommand runs a shell "command" argument through the rewriter.
func rewriteCommand(snap snapshot, args map[string]any, out *Outcome) {
	value := args[tools.CommandArg]
	if value == nil {
		return
	}
	raw, ok := value.(string)
	if !ok {
		out.Action = tools.ActionMalformed
		out.Err = fmt.Errorf("%s argument is %T, not a string", tools.CommandArg, value)
		return
	}

	res := snap.rewriter.Apply(raw, snap.codec.Render(snap.displayName))
	out.Action = res.Action
	out.Before = util.Preview(raw, previewWidth)
	if res.Action.Mutates() {
		args[tools.CommandArg] = res.Command
		out.After = util.Preview(res.Command, previewWidth)
	}
}

func logOutcome(logger *zap.Logger, out Outcome) {
	fields := []zap.Field{
		zap.String("tool", out.Tool),
		zap.String("kind", out.Kind),
		zap.String("model", out.Model),
		zap.String("action", string(out.Action)),
		zap.Bool("mutated", out.Mutated),
	}
	switch {
	case out.Err != nil:
		logger.Warn("tool call not signed", append(fields, zap.Error(out.Err))...)
	case out.Kind == tools.KindNone.String():
		logger.Debug("tool call", fields...)
	default:
		logger.Info("tool call", fields...)
	}
}

// =============================================================================
// HISTORY AND STATS
// =============================================================================

func (c *Coordinator) record(out Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.calls++
	c.stats.byAction[out.Action]++
	if out.Kind != tools.KindNone.String() {
		c.stats.targeted++
		c.stats.byTool[out.Tool]++
		c.history = append(c.history, out)
		if len(c.history) > c.historySize {
			c.history = c.history[len(c.history)-c.historySize:]
		}
	}
	if out.Mutated {
		c.stats.mutated++
	}
}

// History returns the outcomes of targeted tool calls, oldest first.
func (c *Coordinator) History() []Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Outcome(nil), c.history...)
}

// Stats is a point-in-time summary of the session.
type Stats struct {
	SessionID    string         `json:"session_id"`
	StartTime    time.Time      `json:"start_time"`
	Uptime       string         `json:"uptime"`
	DisplayName  string         `json:"display_name"`
	ModelID      string         `json:"model_id,omitempty"`
	LastUpdate   time.Time      `json:"last_model_update,omitempty"`
	Calls        int            `json:"calls"`
	Targeted     int            `json:"targeted"`
	Mutated      int            `json:"mutated"`
	ModelUpdates int            `json:"model_updates"`
	Recovered    int            `json:"recovered"`
	ByAction     map[string]int `json:"by_action"`
	ByTool       map[string]int `json:"by_tool"`
}

// Stats returns the current session summary.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byAction := make(map[string]int, len(c.stats.byAction))
	for a, n := range c.stats.byAction {
		byAction[string(a)] = n
	}
	byTool := make(map[string]int, len(c.stats.byTool))
	for t, n := range c.stats.byTool {
		byTool[t] = n
	}

	return Stats{
		SessionID:    c.sessionID,
		StartTime:    c.startTime,
		Uptime:       util.FormatDuration(time.Since(c.startTime)),
		DisplayName:  c.displayName,
		ModelID:      c.modelID,
		LastUpdate:   c.lastUpdate,
		Calls:        c.stats.calls,
		Targeted:     c.stats.targeted,
		Mutated:      c.stats.mutated,
		ModelUpdates: c.stats.modelUpdates,
		Recovered:    c.stats.recovered,
		ByAction:     byAction,
		ByTool:       byTool,
	}
}
