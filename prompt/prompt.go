// Package prompt resolves coaching profiles into provider system prompts.
//
// Profiles are defined in an embedded YAML catalogue. Build assembles the
// sections of a profile around the user's own context text.
package prompt

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultProfile is used when a requested profile is unknown.
const DefaultProfile = "interview"

//go:embed profiles.yaml
var profilesYAML []byte

// Speakers names the two parties of a diarized conversation.
type Speakers struct {
	// Counterpart is the other party (speaker 1).
	Counterpart string `yaml:"counterpart"`
	// User is the person being coached (speaker 2).
	User string `yaml:"user"`
}

// Profile is one coaching persona.
type Profile struct {
	Name               string   `yaml:"-"`
	Intro              string   `yaml:"intro"`
	FormatRequirements string   `yaml:"format_requirements"`
	SearchUsage        string   `yaml:"search_usage"`
	Content            string   `yaml:"content"`
	OutputInstructions string   `yaml:"output_instructions"`
	Speakers           Speakers `yaml:"speakers"`
}

// Label returns the display label for a diarization speaker id. Speaker 1 is
// the counterpart, any other id is the user.
func (p *Profile) Label(speakerID int) string {
	if speakerID == 1 {
		return p.Speakers.Counterpart
	}
	return p.Speakers.User
}

type catalogue struct {
	Default  string              `yaml:"default"`
	Profiles map[string]*Profile `yaml:"profiles"`
}

var loadCatalogue = sync.OnceValues(func() (*catalogue, error) {
	return parseCatalogue(profilesYAML)
})

func parseCatalogue(data []byte) (*catalogue, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(c.Profiles) == 0 {
		return nil, fmt.Errorf("parse profiles: no profiles defined")
	}
	if c.Default == "" {
		c.Default = DefaultProfile
	}
	if _, ok := c.Profiles[c.Default]; !ok {
		return nil, fmt.Errorf("parse profiles: default profile %q not defined", c.Default)
	}
	for name, p := range c.Profiles {
		p.Name = name
	}
	return &c, nil
}

func mustCatalogue() *catalogue {
	c, err := loadCatalogue()
	if err != nil {
		// The catalogue is embedded at build time.
		panic(err)
	}
	return c
}

// Get returns the named profile, falling back to the default profile.
func Get(name string) *Profile {
	c := mustCatalogue()
	if p, ok := c.Profiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return c.Profiles[c.Default]
}

// Exists reports whether name is a defined profile.
func Exists(name string) bool {
	_, ok := mustCatalogue().Profiles[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names returns the defined profile names in sorted order.
func Names() []string {
	c := mustCatalogue()
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build resolves a profile into a system prompt. The search clause is only
// included when searchEnabled is true.
func Build(profile, customPrompt string, searchEnabled bool) string {
	return Get(profile).Render(customPrompt, searchEnabled)
}

// Render assembles the profile sections around customPrompt.
func (p *Profile) Render(customPrompt string, searchEnabled bool) string {
	var b strings.Builder
	b.WriteString(p.Intro)
	b.WriteString("\n\n")
	b.WriteString(p.FormatRequirements)
	if searchEnabled {
		b.WriteString("\n\n")
		b.WriteString(p.SearchUsage)
	}
	b.WriteString("\n\n")
	b.WriteString(p.Content)
	b.WriteString("\n\nUser-provided context\n-----\n")
	b.WriteString(customPrompt)
	b.WriteString("\n-----\n\n")
	b.WriteString(p.OutputInstructions)
	return b.String()
}
