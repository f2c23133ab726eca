package agent

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProfileLoader loads profiles from YAML files and resolves inheritance.
type ProfileLoader struct {
	// base holds already-resolved profiles a file may name as parent
	// (the built-ins).
	base     map[string]Profile
	profiles map[string]Profile
}

// NewProfileLoader creates a ProfileLoader. Profiles in base may be used as
// parents but are not returned unless a file redefines them.
func NewProfileLoader(base ...Profile) *ProfileLoader {
	l := &ProfileLoader{
		base:     make(map[string]Profile, len(base)),
		profiles: make(map[string]Profile),
	}
	for _, p := range base {
		l.base[p.Name] = p
	}
	return l
}

// LoadProfiles loads all profiles from the specified directory
func (l *ProfileLoader) LoadProfiles(dir string) (map[string]Profile, error) {
	raw := make(map[string]Profile)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open profile file %s: %w", path, err)
		}
		defer file.Close()

		// Several profiles may share one file as separate documents.
		decoder := yaml.NewDecoder(file)
		for {
			var p Profile
			if err := decoder.Decode(&p); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return fmt.Errorf("failed to parse profile file %s: %w", path, err)
			}
			if p.Name == "" {
				return fmt.Errorf("profile in %s is missing a name", path)
			}
			raw[p.Name] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.profiles = make(map[string]Profile, len(raw))
	resolving := make(map[string]bool)

	var resolve func(name string) (Profile, error)
	resolve = func(name string) (Profile, error) {
		if p, ok := l.profiles[name]; ok {
			return p, nil
		}
		p, ok := raw[name]
		if !ok {
			if b, ok := l.base[name]; ok {
				return b, nil
			}
			return Profile{}, fmt.Errorf("profile not found: %s", name)
		}

		if resolving[name] {
			return Profile{}, fmt.Errorf("circular inheritance detected for profile: %s", name)
		}
		resolving[name] = true
		defer func() { resolving[name] = false }()

		if p.Parent == "" {
			l.profiles[name] = p
			return p, nil
		}

		parent, err := resolve(p.Parent)
		if err != nil {
			return Profile{}, fmt.Errorf("failed to resolve parent for %s: %w", name, err)
		}
		merged := parent.MergeWith(&p)
		l.profiles[name] = *merged
		return *merged, nil
	}

	for name := range raw {
		if _, err := resolve(name); err != nil {
			return nil, err
		}
	}
	return l.profiles, nil
}
