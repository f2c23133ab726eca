package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnknownProfile is returned by Ask for a profile name that is not registered.
var ErrUnknownProfile = errors.New("unknown agent profile")

// ToolSource lists the tools agents may draw from.
type ToolSource interface {
	ListTools(ctx context.Context) ([]Tool, error)
}

// AlertContextSource renders recent alert events relevant to a question.
// all asks for every known service when the question names none.
type AlertContextSource interface {
	AlertContext(ctx context.Context, question string, all bool) (string, error)
}

// alertContextProfiles always receive recent alerts, named service or not.
var alertContextProfiles = map[string]bool{
	GrafanaAlertsProfile.Name: true,
	K8sHelperProfile.Name:     true,
}

// AssistantOptions bound a single question.
type AssistantOptions struct {
	MaxSteps    int
	MaxHandoffs int
	Timeout     time.Duration
}

// Assistant answers one-shot questions by running a fresh agent per call.
type Assistant struct {
	llm      LLMProvider
	tools    ToolSource
	profiles *ProfileManager
	opts     AssistantOptions
	logger   *slog.Logger
	alerts   AlertContextSource
}

func NewAssistant(llm LLMProvider, tools ToolSource, profiles *ProfileManager, opts AssistantOptions, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 10
	}
	return &Assistant{llm: llm, tools: tools, profiles: profiles, opts: opts, logger: logger}
}

// WithAlertContext makes Ask prepend recent alert events to the conversation.
func (a *Assistant) WithAlertContext(src AlertContextSource) *Assistant {
	a.alerts = src
	return a
}

// Profiles returns the registered profiles sorted by name.
func (a *Assistant) Profiles() []Profile {
	return a.profiles.ListProfiles()
}

// Ask runs question against the named profile, or the profile matched from
// the question when name is empty. HighRisk tools only run when approved.
func (a *Assistant) Ask(ctx context.Context, name, question string, approved bool) (*Result, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	var profile Profile
	if name == "" {
		profile = a.profiles.Match(question)
	} else {
		p, ok := a.profiles.GetProfile(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
		}
		profile = p
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	var tools []Tool
	if a.tools != nil {
		var err error
		if tools, err = a.tools.ListTools(ctx); err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
	}

	onStep := func(_ *Step, msg string) { a.logger.Debug(msg) }
	ag := NewAgent(a.llm, tools, a.opts.MaxSteps, a.logger, onStep, profile).
		WithProfiles(a.profiles, a.opts.MaxHandoffs)
	if a.alerts != nil {
		msg, err := a.alerts.AlertContext(ctx, question, alertContextProfiles[profile.Name])
		if err != nil {
			a.logger.Warn("Recent alerts unavailable", "error", err)
		} else {
			ag.InjectContext(msg)
		}
	}
	return ag.Run(ctx, question, approved)
}
