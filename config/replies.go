package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Replies maps lower-case keywords to reply templates.
type Replies struct {
	Rules    map[string]string `yaml:"rules"`
	Fallback string            `yaml:"fallback"`
}

func DefaultReplies() Replies {
	return Replies{
		Rules: map[string]string{
			"hai":  "Hai juga dari {BOT_ID}! 👋",
			"ping": "Pong dari {BOT_ID}! 🏓",
		},
		Fallback: "Perintah tidak dikenal oleh {BOT_ID}",
	}
}

// LoadReplies reads a YAML replies file. An empty path yields the defaults.
//
//	rules:
//	  hai: "Hai juga dari {BOT_ID}! 👋"
//	fallback: "Perintah tidak dikenal oleh {BOT_ID}"
func LoadReplies(path string) (Replies, error) {
	if path == "" {
		return DefaultReplies(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Replies{}, fmt.Errorf("read replies file: %w", err)
	}
	return ParseReplies(data)
}

func ParseReplies(data []byte) (Replies, error) {
	var raw Replies
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Replies{}, fmt.Errorf("parse replies file: %w", err)
	}

	out := Replies{
		Rules:    make(map[string]string, len(raw.Rules)),
		Fallback: raw.Fallback,
	}
	for keyword, reply := range raw.Rules {
		k := strings.ToLower(strings.TrimSpace(keyword))
		if k == "" {
			return Replies{}, fmt.Errorf("parse replies file: empty keyword")
		}
		out.Rules[k] = reply
	}
	if len(out.Rules) == 0 && out.Fallback == "" {
		return Replies{}, fmt.Errorf("parse replies file: no rules and no fallback")
	}
	return out, nil
}
