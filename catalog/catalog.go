/*
Package catalog provides the registered challenge catalog and its JSON
definition loader.

PURPOSE:
  Challenges and their objective sets are configuration, not code. Content
  authors define a challenge in JSON (slug, difficulty, objectives); the
  registry validates the definition and serves lookups to the completion
  orchestrator. The objective key set registered here is the security
  boundary every submission is checked against.

JSON SCHEMA:
  {
    "id": "ch-pod-basics",
    "slug": "pod-basics",
    "title": "Pod Basics",
    "difficulty": "easy",
    "objectives": [
      {"key": "pod-running", "title": "Pod is running", "category": "workload"},
      {"key": "probe-set", "title": "Liveness probe configured", "category": "health"}
    ]
  }

VALIDATION:
  - slug and at least one objective are required
  - difficulty must be easy, medium or hard
  - objective keys must be unique within the challenge
  - duplicate slugs are rejected at registration

SEE ALSO:
  - progression/types.go: Challenge and Objective types
  - api/seed.go: Demo definitions loaded at startup
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ChallengeJSON is the JSON representation of a challenge definition.
type ChallengeJSON struct {
	ID         string          `json:"id,omitempty"` // generated when empty
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	Difficulty string          `json:"difficulty"`
	Objectives []ObjectiveJSON `json:"objectives"`
}

// ObjectiveJSON is one registered check inside a challenge definition.
type ObjectiveJSON struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// =============================================================================
// REGISTRY
// =============================================================================

type entry struct {
	challenge  progression.Challenge
	objectives []progression.Objective
}

// Registry is an in-memory challenge catalog. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	bySlug  map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{bySlug: make(map[string]entry)}
}

var _ progression.Catalog = (*Registry)(nil)

// RegisterJSON parses and registers a challenge definition.
func (r *Registry) RegisterJSON(data []byte) (progression.Challenge, error) {
	var cj ChallengeJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return progression.Challenge{}, fmt.Errorf("failed to parse challenge JSON: %w", err)
	}
	return r.Register(cj)
}

// Register validates and stores a definition.
func (r *Registry) Register(cj ChallengeJSON) (progression.Challenge, error) {
	challenge, objectives, err := Parse(cj)
	if err != nil {
		return progression.Challenge{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySlug[challenge.Slug]; exists {
		return progression.Challenge{}, fmt.Errorf("challenge %q already registered", challenge.Slug)
	}
	r.bySlug[challenge.Slug] = entry{challenge: challenge, objectives: objectives}
	return challenge, nil
}

// ChallengeBySlug implements progression.Catalog.
func (r *Registry) ChallengeBySlug(_ context.Context, slug string) (progression.Challenge, []progression.Objective, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bySlug[slug]
	if !ok {
		return progression.Challenge{}, nil, &progression.ChallengeNotFoundError{Slug: slug}
	}
	objectives := make([]progression.Objective, len(e.objectives))
	copy(objectives, e.objectives)
	return e.challenge, objectives, nil
}

// Challenges returns every registered challenge, ordered by slug.
func (r *Registry) Challenges() []progression.Challenge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]progression.Challenge, 0, len(r.bySlug))
	for _, e := range r.bySlug {
		out = append(out, e.challenge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// Parse validates a JSON challenge definition and converts it to domain
// types. An empty ID gets a generated UUID.
func Parse(cj ChallengeJSON) (progression.Challenge, []progression.Objective, error) {
	if cj.Slug == "" {
		return progression.Challenge{}, nil, fmt.Errorf("challenge definition missing slug")
	}
	if len(cj.Objectives) == 0 {
		return progression.Challenge{}, nil, fmt.Errorf("challenge %q has no objectives", cj.Slug)
	}

	difficulty := progression.Difficulty(cj.Difficulty)
	if !difficulty.Valid() {
		return progression.Challenge{}, nil, fmt.Errorf("challenge %q has unknown difficulty %q", cj.Slug, cj.Difficulty)
	}

	id := cj.ID
	if id == "" {
		id = uuid.NewString()
	}

	seen := make(map[string]bool, len(cj.Objectives))
	objectives := make([]progression.Objective, 0, len(cj.Objectives))
	for _, oj := range cj.Objectives {
		if oj.Key == "" {
			return progression.Challenge{}, nil, fmt.Errorf("challenge %q has an objective with no key", cj.Slug)
		}
		if seen[oj.Key] {
			return progression.Challenge{}, nil, fmt.Errorf("challenge %q has duplicate objective key %q", cj.Slug, oj.Key)
		}
		seen[oj.Key] = true
		objectives = append(objectives, progression.Objective{
			Key:         oj.Key,
			Title:       oj.Title,
			Description: oj.Description,
			Category:    oj.Category,
		})
	}

	return progression.Challenge{
		ID:         ledger.ChallengeID(id),
		Slug:       cj.Slug,
		Title:      cj.Title,
		Difficulty: difficulty,
	}, objectives, nil
}
