// Package prompt renders the persona system prompt from a Markdown
// definition with YAML frontmatter and a text/template body.
package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes a persona definition loaded from frontmatter.
type Config struct {
	Name     string            `yaml:"name"`
	FullName string            `yaml:"full_name,omitempty"`
	Style    string            `yaml:"style,omitempty"`
	Rules    []string          `yaml:"rules,omitempty"`
	Facts    map[string]string `yaml:"facts,omitempty"`
}

// Persona wraps a parsed persona with its compiled template.
type Persona struct {
	Config Config
	Source string

	tmpl *template.Template
	now  func() time.Time
}

// templateContext is what the persona body template sees.
type templateContext struct {
	Name            string
	FullName        string
	Style           string
	Facts           map[string]string
	NumRules        int
	CriticalRules   string
	CurrentDatetime string
}

// Load parses a persona definition from Markdown bytes.
func Load(source string, data []byte) (*Persona, error) {
	config, body, err := parseFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", source, err)
	}

	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("persona %s has no prompt body", source)
	}
	if strings.TrimSpace(config.Name) == "" {
		return nil, fmt.Errorf("persona %s missing name", source)
	}

	tmpl, err := template.New(source).Option("missingkey=error").Parse(strings.TrimSpace(body))
	if err != nil {
		return nil, fmt.Errorf("compile persona %s: %w", source, err)
	}

	return &Persona{Config: config, Source: source, tmpl: tmpl, now: time.Now}, nil
}

// LoadFile reads a persona definition from disk.
func LoadFile(path string) (*Persona, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- persona path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("read persona %s: %w", path, err)
	}
	return Load(path, data)
}

// Render produces the system prompt text. Called per request so the
// injected datetime stays current.
func (p *Persona) Render() (string, error) {
	ctx := templateContext{
		Name:            p.Config.Name,
		FullName:        p.Config.FullName,
		Style:           p.Config.Style,
		Facts:           p.Config.Facts,
		NumRules:        len(p.Config.Rules),
		CriticalRules:   formatRules(p.Config.Rules),
		CurrentDatetime: p.now().Format("2006-01-02 15:04:05"),
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("render persona %s: %w", p.Source, err)
	}
	return buf.String(), nil
}

// formatRules renders rules as a numbered list, one per line.
func formatRules(rules []string) string {
	var b strings.Builder
	for i, rule := range rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, rule)
	}
	return b.String()
}

func parseFrontmatter(data []byte) (Config, string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, "", fmt.Errorf("empty persona")
	}

	lines := bufio.NewScanner(bytes.NewReader(trimmed))
	lines.Split(bufio.ScanLines)

	var (
		frontmatter []string
		body        []string
		headerSeen  bool
		inFront     bool
	)

	for lines.Scan() {
		line := lines.Text()
		switch {
		case !headerSeen && strings.TrimSpace(line) == "---":
			headerSeen = true
			inFront = true
		case headerSeen && inFront && strings.TrimSpace(line) == "---":
			inFront = false
		default:
			if inFront {
				frontmatter = append(frontmatter, line)
			} else {
				body = append(body, line)
			}
		}
	}
	if err := lines.Err(); err != nil {
		return Config{}, "", err
	}

	if !headerSeen {
		return Config{}, "", fmt.Errorf("missing frontmatter")
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(strings.Join(frontmatter, "\n")), &cfg); err != nil {
		return Config{}, "", fmt.Errorf("invalid frontmatter: %w", err)
	}

	return cfg, strings.Join(body, "\n"), nil
}
