/*
seed.go - Demo challenge catalog

PURPOSE:
  Loads a small set of demo challenges on boot when SEED_DEMO is set, so a
  fresh database is immediately usable for local development and manual
  testing. Registration is an upsert keyed by challenge ID, so reseeding
  an existing database is harmless.

SEE ALSO:
  - catalog/catalog.go: Definition validation
  - config/config.go: SEED_DEMO
*/
package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/catalog"
	"github.com/kubeasy-dev/progress-engine/store/sqlite"
)

var demoChallenges = []catalog.ChallengeJSON{
	{
		ID:         "5d1f14b2-8c7a-4e59-9b51-0a4f1d2c9e01",
		Slug:       "pod-basics",
		Title:      "Pod Basics",
		Difficulty: "easy",
		Objectives: []catalog.ObjectiveJSON{
			{Key: "pod-running", Title: "Pod is running", Category: "workload"},
			{Key: "labels-set", Title: "Required labels are set", Category: "metadata"},
		},
	},
	{
		ID:         "5d1f14b2-8c7a-4e59-9b51-0a4f1d2c9e02",
		Slug:       "deployment-rollout",
		Title:      "Deployment Rollout",
		Difficulty: "medium",
		Objectives: []catalog.ObjectiveJSON{
			{Key: "replicas-ready", Title: "All replicas ready", Category: "workload"},
			{Key: "strategy-rolling", Title: "Rolling update strategy", Category: "spec"},
			{Key: "probe-configured", Title: "Readiness probe configured", Category: "health"},
		},
	},
	{
		ID:         "5d1f14b2-8c7a-4e59-9b51-0a4f1d2c9e03",
		Slug:       "network-policies",
		Title:      "Network Policies",
		Difficulty: "hard",
		Objectives: []catalog.ObjectiveJSON{
			{Key: "default-deny", Title: "Default deny applied", Category: "security"},
			{Key: "allow-frontend", Title: "Frontend traffic allowed", Category: "security"},
			{Key: "allow-dns", Title: "DNS egress allowed", Category: "security"},
			{Key: "no-wide-open", Title: "No allow-all policy present", Category: "security"},
		},
	},
}

// SeedDemo registers the demo challenges.
func SeedDemo(ctx context.Context, store *sqlite.Store, log *zap.Logger) error {
	for _, cj := range demoChallenges {
		challenge, objectives, err := catalog.Parse(cj)
		if err != nil {
			return fmt.Errorf("invalid demo challenge %q: %w", cj.Slug, err)
		}
		if err := store.SaveChallenge(ctx, challenge, objectives); err != nil {
			return fmt.Errorf("failed to seed challenge %q: %w", cj.Slug, err)
		}
	}
	if log != nil {
		log.Info("demo catalog seeded", zap.Int("challenges", len(demoChallenges)))
	}
	return nil
}
