package seed

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/forum.yaml
var forumFixture []byte

// TopicFixture is one starter thread and its replies.
type TopicFixture struct {
	Title    string   `yaml:"title"`
	Category string   `yaml:"category"`
	Content  string   `yaml:"content"`
	Pinned   bool     `yaml:"pinned"`
	Locked   bool     `yaml:"locked"`
	Replies  []string `yaml:"replies"`
}

// Fixture is the decoded forum fixture file.
type Fixture struct {
	Topics []TopicFixture `yaml:"topics"`
}

// DefaultFixture returns the embedded starter forum.
func DefaultFixture() (*Fixture, error) {
	return LoadFixture(bytes.NewReader(forumFixture))
}

// LoadFixture decodes a forum fixture and rejects topics without a title or body.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	for i := range f.Topics {
		t := &f.Topics[i]
		t.Title = strings.TrimSpace(t.Title)
		t.Content = strings.TrimSpace(t.Content)
		t.Category = strings.ToLower(strings.TrimSpace(t.Category))
		if t.Title == "" || t.Content == "" {
			return nil, fmt.Errorf("fixture topic %d: title and content are required", i)
		}
	}
	return &f, nil
}
