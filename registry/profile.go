package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Setting pairs a parameter path with its target value. The value arrives
// as whatever scalar the document carried (bool, int or float); the type
// codec coerces it against the endpoint's declared type at write time.
type Setting struct {
	Path  string      `yaml:"path"`
	Value interface{} `yaml:"value"`
}

// Profile is the ordered settings list for one device class.
type Profile struct {
	Settings []Setting `yaml:"settings"`
}

// Profiles maps a device-class key ("8308", "GB36", ...) to its profile.
type Profiles map[string]Profile

// LoadProfiles reads a profiles document from disk.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read profiles %s: %w", path, err)
	}
	profiles, err := ParseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("registry: parse profiles %s: %w", path, err)
	}
	return profiles, nil
}

// ParseProfiles decodes a profiles document.
func ParseProfiles(data []byte) (Profiles, error) {
	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no device classes defined")
	}
	for class, profile := range profiles {
		if len(profile.Settings) == 0 {
			return nil, fmt.Errorf("device class %s has no settings", class)
		}
		for i, setting := range profile.Settings {
			if setting.Path == "" {
				return nil, fmt.Errorf("device class %s: setting %d has no path", class, i)
			}
			if setting.Value == nil {
				return nil, fmt.Errorf("device class %s: %s has no value", class, setting.Path)
			}
		}
	}
	return profiles, nil
}

// Get resolves a device class.
func (p Profiles) Get(class string) (Profile, error) {
	profile, ok := p[class]
	if !ok {
		return Profile{}, fmt.Errorf("registry: unknown device class %q", class)
	}
	return profile, nil
}
