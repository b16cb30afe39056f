package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"mortgage-copilot/internal/domain"
)

// ErrOutOfRange is returned when a stage index falls outside the catalog.
var ErrOutOfRange = errors.New("workflow: stage index out of range")

// Catalog is the fixed, ordered list of workflow stages. It is built once at
// startup and only read afterwards.
type Catalog struct {
	greeting string
	stages   []domain.Stage
	index    map[string]int
}

type catalogDocument struct {
	Greeting string         `json:"greeting" yaml:"greeting"`
	Stages   []domain.Stage `json:"stages" yaml:"stages"`
}

// New validates the stages and returns a Catalog holding its own copy of them.
func New(greeting string, stages []domain.Stage) (*Catalog, error) {
	greeting = strings.TrimSpace(greeting)
	if greeting == "" {
		return nil, errors.New("workflow: greeting must not be empty")
	}
	if len(stages) == 0 {
		return nil, errors.New("workflow: at least one stage is required")
	}

	c := &Catalog{
		greeting: greeting,
		stages:   make([]domain.Stage, 0, len(stages)),
		index:    make(map[string]int, len(stages)),
	}
	for i, s := range stages {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("workflow: stage %d: id must not be empty", i)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("workflow: stage %d: duplicate id %q", i, id)
		}
		if strings.TrimSpace(s.Title) == "" {
			return nil, fmt.Errorf("workflow: stage %q: title must not be empty", id)
		}
		if len(s.Prompts) == 0 {
			return nil, fmt.Errorf("workflow: stage %q: at least one prompt is required", id)
		}
		for j, p := range s.Prompts {
			if strings.TrimSpace(p) == "" {
				return nil, fmt.Errorf("workflow: stage %q: prompt %d is empty", id, j)
			}
		}
		s.ID = id
		c.index[id] = i
		c.stages = append(c.stages, copyStage(s))
	}
	return c, nil
}

// Parse decodes a catalog document of the form
// {"greeting": "...", "stages": [{"id", "title", "summary", "prompts"}]}.
// Input starting with '{' is read as JSON, anything else as YAML.
func Parse(raw []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := decode(raw, &doc); err != nil {
		return nil, fmt.Errorf("workflow: decode catalog: %w", err)
	}
	return New(doc.Greeting, doc.Stages)
}

func decode(raw []byte, v any) error {
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return json.Unmarshal(raw, v)
	}
	return yaml.Unmarshal(raw, v)
}

// Greeting is the assistant message that opens every conversation.
func (c *Catalog) Greeting() string {
	return c.greeting
}

func (c *Catalog) Len() int {
	return len(c.stages)
}

// Stages returns a copy of the ordered stage list.
func (c *Catalog) Stages() []domain.Stage {
	out := make([]domain.Stage, len(c.stages))
	for i, s := range c.stages {
		out[i] = copyStage(s)
	}
	return out
}

// Stage returns the stage at index i. Callers holding untrusted indexes
// should Clamp first.
func (c *Catalog) Stage(i int) (domain.Stage, error) {
	if i < 0 || i >= len(c.stages) {
		return domain.Stage{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(c.stages))
	}
	return copyStage(c.stages[i]), nil
}

// Clamp maps i to the nearest valid stage index.
func (c *Catalog) Clamp(i int) int {
	if i < 0 {
		return 0
	}
	if last := len(c.stages) - 1; i > last {
		return last
	}
	return i
}

// Index resolves a stage id to its position.
func (c *Catalog) Index(id string) (int, bool) {
	i, ok := c.index[strings.TrimSpace(id)]
	return i, ok
}

// Prompts returns the default suggestions for the stage at the clamped index.
func (c *Catalog) Prompts(i int) []string {
	return append([]string(nil), c.stages[c.Clamp(i)].Prompts...)
}

func copyStage(s domain.Stage) domain.Stage {
	s.Prompts = append([]string(nil), s.Prompts...)
	return s
}
