package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxHandoffs bounds how many times a conversation may change profile.
const DefaultMaxHandoffs = 3

// BaseAgent implements the Agent interface
type BaseAgent struct {
	baseLLM        LLMProvider
	llm            LLMProvider
	allTools       []Tool
	tools          []Tool
	memory         Memory
	maxSteps       int
	maxHandoffs    int
	logger         *slog.Logger
	onStepComplete func(*Step, string)
	profile        Profile
	profiles       *ProfileManager
	handoffs       []string
	steps          []Step
}

// NewAgent creates a new BaseAgent running profile. Handoffs are disabled
// until WithProfiles supplies the profiles they point to.
func NewAgent(llm LLMProvider, tools []Tool, maxSteps int, logger *slog.Logger, onStepComplete func(*Step, string), profile Profile) *BaseAgent {
	if logger == nil {
		logger = slog.Default()
	}

	a := &BaseAgent{
		baseLLM:        llm,
		allTools:       tools,
		memory:         NewL1Memory(),
		maxSteps:       maxSteps,
		maxHandoffs:    DefaultMaxHandoffs,
		logger:         logger,
		onStepComplete: onStepComplete,
	}
	a.activate(profile)
	return a
}

// WithProfiles enables handoffs resolved against pm. maxHandoffs <= 0 keeps
// the default.
func (a *BaseAgent) WithProfiles(pm *ProfileManager, maxHandoffs int) *BaseAgent {
	a.profiles = pm
	if maxHandoffs > 0 {
		a.maxHandoffs = maxHandoffs
	}
	a.activate(a.profile)
	return a
}

// activate makes p the running profile: its instructions replace the system
// prompt and its tool set replaces the current one.
func (a *BaseAgent) activate(p Profile) {
	a.profile = p

	a.llm = a.baseLLM
	if p.Provider != "" {
		if sel, ok := a.baseLLM.(ProviderSelector); ok {
			if llm, ok := sel.Provider(p.Provider); ok {
				a.llm = llm
			} else {
				a.logger.Warn("Profile provider not configured, using default", "profile", p.Name, "provider", p.Provider)
			}
		}
	}

	var available []Tool
	for _, t := range a.allTools {
		if p.Allows(t.Name()) {
			available = append(available, t)
		}
	}
	if a.profiles != nil {
		for _, h := range p.Handoffs {
			available = append(available, &handoffTool{handoff: h})
		}
	}
	a.tools = available

	if p.Instructions != "" {
		a.memory.SetSystemPrompt(p.Instructions)
	}
}

// Run executes the agent loop for a given question
func (a *BaseAgent) Run(ctx context.Context, question string, approved bool) (*Result, error) {
	a.logger.Info("Starting agent run", "profile", a.profile.Name, "approved", approved)

	a.memory.AddUserMessage(question)

	// recentSteps tracks the current run's steps for loop detection
	var recentSteps []Step

	for step := 0; step < a.maxSteps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		a.logger.Info("Executing step", "step", step+1, "profile", a.profile.Name)

		// Think: Call LLM
		response, err := a.llm.Chat(ctx, a.memory.GetHistory(), a.tools)
		if err != nil {
			return nil, fmt.Errorf("failed to chat with LLM: %w", err)
		}

		if a.onStepComplete != nil && response.Content != "" {
			a.onStepComplete(nil, fmt.Sprintf("Step %d (Think): %s", step+1, truncate(response.Content, 500)))
		}

		if len(response.ToolCalls) > 0 {
			a.memory.AddAssistantToolCall(response.ToolCalls)
		} else {
			a.memory.AddAssistantMessage(response.Content)
		}

		// No tool calls means the model answered.
		if len(response.ToolCalls) == 0 {
			a.logger.Info("Agent decided to finish", "profile", a.profile.Name)
			if a.onStepComplete != nil {
				a.onStepComplete(nil, fmt.Sprintf("Step %d (Answer): %s", step+1, truncate(response.Content, 200)))
			}
			return &Result{
				Answer:   strings.TrimSpace(response.Content),
				Profile:  a.profile.Name,
				Handoffs: a.handoffs,
				Steps:    a.steps,
			}, nil
		}

		// Act: Execute tools
		var pending *handoffRequest
		for _, toolCall := range response.ToolCalls {
			if pending != nil {
				a.memory.AddToolOutput(toolCall.ID, fmt.Sprintf("Skipped: conversation handed off to %s.", pending.target.Name))
				continue
			}

			a.logger.Info("Executing tool", "tool", toolCall.Function.Name)

			var toolOutput string
			selected := a.findTool(toolCall.Function.Name)

			switch {
			case selected == nil:
				toolOutput = fmt.Sprintf("Error: Tool %s not found", toolCall.Function.Name)
			case isHandoff(selected):
				req, out := a.prepareHandoff(selected.(*handoffTool), toolCall.Function.Arguments)
				pending = req
				toolOutput = out
			default:
				switch selected.SafetyLevel() {
				case SafetyLevelForbidden:
					a.logger.Warn("Tool forbidden", "tool", selected.Name())
					toolOutput = fmt.Sprintf("Error: Tool %s is forbidden by safety policy.", selected.Name())
				case SafetyLevelHighRisk:
					if !approved {
						a.logger.Warn("Tool requires approval", "tool", selected.Name())
						return nil, &ErrWaitingForApproval{ToolName: selected.Name()}
					}
					toolOutput = a.execute(ctx, selected, toolCall.Function.Arguments)
				default:
					toolOutput = a.execute(ctx, selected, toolCall.Function.Arguments)
				}
			}

			// Observe: Add tool output to memory
			a.memory.AddToolOutput(toolCall.ID, toolOutput)

			s := Step{
				Number:    step + 1,
				Profile:   a.profile.Name,
				ToolName:  toolCall.Function.Name,
				ToolArgs:  toolCall.Function.Arguments,
				Summary:   truncate(toolOutput, 200),
				Timestamp: time.Now().UTC(),
			}
			recentSteps = append(recentSteps, s)
			a.steps = append(a.steps, s)

			if a.onStepComplete != nil {
				a.onStepComplete(&s, fmt.Sprintf("Step %d (Act): %s(%s) -> %s", step+1, s.ToolName, s.ToolArgs, s.Summary))
			}
		}

		if pending != nil {
			a.handoffs = append(a.handoffs, pending.target.Name)
			a.logger.Info("Handing off", "from", a.profile.Name, "to", pending.target.Name, "depth", len(a.handoffs))
			a.activate(pending.target)
			if pending.input != "" {
				a.memory.AddUserMessage(fmt.Sprintf("Handoff request: %s", pending.input))
			}
		}

		// Loop detection: abort if the same tool+args repeats 3 consecutive times
		if a.detectLoop(recentSteps, 3) {
			last := recentSteps[len(recentSteps)-1]
			return nil, fmt.Errorf("agent loop detected: tool %q called with identical arguments 3 consecutive times", last.ToolName)
		}
	}

	return nil, fmt.Errorf("agent exceeded maximum steps (%d)", a.maxSteps)
}

func (a *BaseAgent) findTool(name string) Tool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *BaseAgent) execute(ctx context.Context, t Tool, args string) string {
	out, err := t.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing tool: %v", err)
	}
	return out
}

type handoffRequest struct {
	target Profile
	input  string
}

// prepareHandoff validates a handoff call. It returns a nil request and an
// error message for the model when the handoff cannot happen.
func (a *BaseAgent) prepareHandoff(t *handoffTool, args string) (*handoffRequest, string) {
	if len(a.handoffs) >= a.maxHandoffs {
		return nil, fmt.Sprintf("Error: handoff limit (%d) reached, answer with what you have.", a.maxHandoffs)
	}
	target, ok := a.profiles.GetProfile(t.handoff.Target)
	if !ok {
		return nil, fmt.Sprintf("Error: handoff target %s is not configured.", t.handoff.Target)
	}
	var in struct {
		Input string `json:"input"`
	}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &in); err != nil {
			return nil, fmt.Sprintf("Error: invalid arguments for %s: %v", t.Name(), err)
		}
	}
	return &handoffRequest{target: target, input: in.Input}, fmt.Sprintf("Transferred to %s.", target.Name)
}

// detectLoop returns true if the last windowSize steps all called the same tool with the same args.
func (a *BaseAgent) detectLoop(steps []Step, windowSize int) bool {
	if len(steps) < windowSize {
		return false
	}
	tail := steps[len(steps)-windowSize:]
	first := tail[0]
	for _, s := range tail[1:] {
		if s.ToolName != first.ToolName || s.ToolArgs != first.ToolArgs {
			return false
		}
	}
	return true
}

// InjectContext adds a user message to the agent's memory before Run() is called.
// Callers use it to attach recent alerts or past run summaries.
func (a *BaseAgent) InjectContext(msg string) {
	if msg == "" {
		return
	}
	a.memory.AddUserMessage(msg)
}

// Profile returns the running profile.
func (a *BaseAgent) Profile() Profile {
	return a.profile
}

// handoffTool exposes a Handoff to the LLM as a callable tool. It is
// intercepted by the engine and never executed.
type handoffTool struct {
	handoff Handoff
}

func (h *handoffTool) Name() string {
	return h.handoff.ToolName
}

func (h *handoffTool) Description() string {
	if h.handoff.Description != "" {
		return fmt.Sprintf("Hand the conversation to the %s agent. %s", h.handoff.Target, h.handoff.Description)
	}
	return fmt.Sprintf("Hand the conversation to the %s agent.", h.handoff.Target)
}

func (h *handoffTool) Execute(context.Context, string) (string, error) {
	return "", fmt.Errorf("handoff %s must be handled by the agent loop", h.handoff.ToolName)
}

func (h *handoffTool) Schema() string {
	return `{"type":"object","properties":{"input":{"type":"string","description":"What the specialist should do, with every detail it needs"}}}`
}

func (h *handoffTool) SafetyLevel() SafetyLevel {
	return SafetyLevelReadOnly
}

func isHandoff(t Tool) bool {
	_, ok := t.(*handoffTool)
	return ok
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
