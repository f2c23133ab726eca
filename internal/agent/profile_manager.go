package agent

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// ProfileManager holds the resolved profiles and picks one for a question.
type ProfileManager struct {
	profiles map[string]Profile
	logger   *slog.Logger
}

// NewProfileManager registers the built-in profiles, then overlays any YAML
// profiles found in profileDir. A missing directory is not an error.
func NewProfileManager(profileDir string, logger *slog.Logger) (*ProfileManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pm := &ProfileManager{
		profiles: make(map[string]Profile),
		logger:   logger,
	}
	builtins := BuiltinProfiles()
	for _, p := range builtins {
		pm.Register(p)
	}

	if profileDir != "" {
		if _, err := os.Stat(profileDir); err == nil {
			loaded, err := NewProfileLoader(builtins...).LoadProfiles(profileDir)
			if err != nil {
				return nil, err
			}
			for _, p := range loaded {
				pm.Register(p)
			}
			logger.Info("Loaded agent profiles from directory", "dir", profileDir, "count", len(loaded))
		} else {
			logger.Debug("Profile directory not found, using built-in profiles", "dir", profileDir)
		}
	}

	if err := pm.validate(); err != nil {
		return nil, err
	}
	return pm, nil
}

// Register adds or replaces a profile.
func (pm *ProfileManager) Register(p Profile) {
	pm.profiles[p.Name] = p
}

// validate checks that every handoff targets a known profile.
func (pm *ProfileManager) validate() error {
	for _, p := range pm.profiles {
		for _, h := range p.Handoffs {
			if h.ToolName == "" {
				return fmt.Errorf("profile %s: handoff to %s has no tool_name", p.Name, h.Target)
			}
			if _, ok := pm.profiles[h.Target]; !ok {
				return fmt.Errorf("profile %s: handoff %s targets unknown profile %s", p.Name, h.ToolName, h.Target)
			}
		}
	}
	return nil
}

// Match selects the profile for a free-form question: the first profile
// (by name) whose trigger keywords appear in it, else the default profile.
func (pm *ProfileManager) Match(question string) Profile {
	for _, p := range pm.ListProfiles() {
		if p.matches(question) {
			pm.logger.Info("Matched profile via trigger", "profile", p.Name)
			return p
		}
	}
	if p, ok := pm.GetProfile(DefaultProfile); ok {
		return p
	}
	return GeneralHelpProfile
}

// GetProfile retrieves a profile by name
func (pm *ProfileManager) GetProfile(name string) (Profile, bool) {
	p, ok := pm.profiles[name]
	return p, ok
}

// ListProfiles returns all registered profiles sorted by name
func (pm *ProfileManager) ListProfiles() []Profile {
	out := make([]Profile, 0, len(pm.profiles))
	for _, p := range pm.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
