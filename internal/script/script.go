// Package script loads the interview question sequence that drives a session.
package script

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script is the ordered question sequence for one interview, plus the
// canned opening and closing bot lines.
type Script struct {
	Title     string   `yaml:"title"`
	Opening   string   `yaml:"opening"`
	Closing   string   `yaml:"closing"`
	Questions []string `yaml:"questions"`
}

// Load reads a script from a YAML file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns the built-in script used when no script file is configured.
func Default() *Script {
	return &Script{
		Title:   "Causal beliefs interview",
		Opening: "Welcome! I'll ask you a few questions about your views. Ready when you are.",
		Closing: "That's everything — thank you for sharing your views. You'll be taken to the review screen shortly.",
		Questions: []string{
			"To start, what do you think is the main cause of the issue we described?",
			"What effects do you think that cause has, directly or indirectly?",
			"Are there any factors you believe make the situation better or worse?",
			"How confident are you in the relationships you just described?",
			"Is there anything else you believe influences the outcome that we haven't covered?",
		},
	}
}

// Validate checks that the script can actually drive an interview.
func (s *Script) Validate() error {
	if len(s.Questions) == 0 {
		return fmt.Errorf("script has no questions")
	}
	// The opening seeds the transcript as a completed bot message; a question
	// mark would mint a spurious QA pair for it.
	if strings.Contains(s.Opening, "?") {
		return fmt.Errorf("script opening must not contain a question mark")
	}
	for i, q := range s.Questions {
		if q == "" {
			return fmt.Errorf("script question %d is empty", i+1)
		}
	}
	return nil
}

// Total returns the number of scripted questions.
func (s *Script) Total() int {
	return len(s.Questions)
}

// Question returns the zero-indexed question text, and false when the index
// is past the end of the script.
func (s *Script) Question(i int) (string, bool) {
	if i < 0 || i >= len(s.Questions) {
		return "", false
	}
	return s.Questions[i], true
}

// IsFinal reports whether the zero-indexed question is the last one.
func (s *Script) IsFinal(i int) bool {
	return i == len(s.Questions)-1
}
