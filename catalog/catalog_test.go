package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeasy-dev/progress-engine/catalog"
	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func validDefinition() catalog.ChallengeJSON {
	return catalog.ChallengeJSON{
		Slug:       "pod-basics",
		Title:      "Pod Basics",
		Difficulty: "easy",
		Objectives: []catalog.ObjectiveJSON{
			{Key: "pod-running", Title: "Pod is running"},
			{Key: "labels-set", Title: "Labels are set"},
		},
	}
}

// =============================================================================
// PARSE / VALIDATION TESTS
// =============================================================================

func TestParse_Valid(t *testing.T) {
	challenge, objectives, err := catalog.Parse(validDefinition())
	require.NoError(t, err)

	assert.Equal(t, "pod-basics", challenge.Slug)
	assert.Equal(t, progression.DifficultyEasy, challenge.Difficulty)
	assert.NotEmpty(t, challenge.ID, "empty ID must be generated")
	require.Len(t, objectives, 2)
	assert.Equal(t, "pod-running", objectives[0].Key)
}

func TestParse_ExplicitIDPreserved(t *testing.T) {
	cj := validDefinition()
	cj.ID = "fixed-id"

	challenge, _, err := catalog.Parse(cj)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", string(challenge.ID))
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*catalog.ChallengeJSON)
	}{
		{"missing slug", func(c *catalog.ChallengeJSON) { c.Slug = "" }},
		{"no objectives", func(c *catalog.ChallengeJSON) { c.Objectives = nil }},
		{"bad difficulty", func(c *catalog.ChallengeJSON) { c.Difficulty = "impossible" }},
		{"objective without key", func(c *catalog.ChallengeJSON) {
			c.Objectives = append(c.Objectives, catalog.ObjectiveJSON{Title: "nameless"})
		}},
		{"duplicate objective key", func(c *catalog.ChallengeJSON) {
			c.Objectives = append(c.Objectives, catalog.ObjectiveJSON{Key: "pod-running"})
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cj := validDefinition()
			tc.mutate(&cj)

			_, _, err := catalog.Parse(cj)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := catalog.NewRegistry()

	_, err := reg.Register(validDefinition())
	require.NoError(t, err)

	challenge, objectives, err := reg.ChallengeBySlug(context.Background(), "pod-basics")
	require.NoError(t, err)
	assert.Equal(t, "Pod Basics", challenge.Title)
	assert.Len(t, objectives, 2)
}

func TestRegistry_UnknownSlug(t *testing.T) {
	reg := catalog.NewRegistry()

	_, _, err := reg.ChallengeBySlug(context.Background(), "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, progression.ErrChallengeNotFound)
	var nfErr *progression.ChallengeNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "missing", nfErr.Slug)
}

func TestRegistry_DuplicateSlug_Rejected(t *testing.T) {
	reg := catalog.NewRegistry()

	_, err := reg.Register(validDefinition())
	require.NoError(t, err)

	_, err = reg.Register(validDefinition())
	assert.Error(t, err)
}

func TestRegistry_RegisterJSON(t *testing.T) {
	reg := catalog.NewRegistry()

	data := []byte(`{
		"slug": "from-json",
		"title": "From JSON",
		"difficulty": "medium",
		"objectives": [{"key": "only-check", "title": "Only check"}]
	}`)

	challenge, err := reg.RegisterJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "from-json", challenge.Slug)

	_, objectives, err := reg.ChallengeBySlug(context.Background(), "from-json")
	require.NoError(t, err)
	assert.Len(t, objectives, 1)
}

func TestRegistry_RegisterJSON_Malformed(t *testing.T) {
	reg := catalog.NewRegistry()

	_, err := reg.RegisterJSON([]byte(`{not json`))
	assert.Error(t, err)
}

func TestRegistry_ChallengesSorted(t *testing.T) {
	reg := catalog.NewRegistry()

	for _, slug := range []string{"zeta", "alpha", "mid"} {
		cj := validDefinition()
		cj.Slug = slug
		_, err := reg.Register(cj)
		require.NoError(t, err)
	}

	challenges := reg.Challenges()
	require.Len(t, challenges, 3)
	assert.Equal(t, "alpha", challenges[0].Slug)
	assert.Equal(t, "mid", challenges[1].Slug)
	assert.Equal(t, "zeta", challenges[2].Slug)
}
