package revise

import (
	"context"
	"regexp"
	"strings"

	"screentrace/internal/contextutil"
	"screentrace/internal/storage"
)

var (
	parenthetical = regexp.MustCompile(`\s*\([^)]*\)\s*`)
	punctuation   = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// NormalizeName canonicalizes an entity name for duplicate detection:
// lowercase, parentheticals stripped, punctuation removed, whitespace
// collapsed. "Python (language)" and "python" normalize identically.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	s = parenthetical.ReplaceAllString(s, " ")
	s = punctuation.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MergePass finds active entities of the same type whose normalized names
// collide, either canonical-to-canonical or canonical-to-alias, and merges
// each group into one survivor. The survivor is the earliest-created entity,
// same-second ties broken by insertion order, so repeated passes pick the
// same survivor.
func MergePass(ctx context.Context, entities *storage.EntityRepo) (int, error) {
	active, err := entities.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	// ListActive orders by creation; the first entity seen for a key is
	// therefore the survivor.
	type key struct{ entityType, norm string }
	survivors := make(map[key]*storage.Entity)
	merges := 0

	for i := range active {
		e := &active[i]
		norms := map[string]struct{}{NormalizeName(e.CanonicalName): {}}
		for _, a := range e.Aliases {
			norms[NormalizeName(a)] = struct{}{}
		}

		// An entity matching any existing survivor key is absorbed; its
		// remaining keys then point at that survivor.
		var target *storage.Entity
		for n := range norms {
			if n == "" {
				continue
			}
			if s, ok := survivors[key{e.EntityType, n}]; ok && s.ID != e.ID {
				target = s
				break
			}
		}

		if target == nil {
			for n := range norms {
				if n == "" {
					continue
				}
				if _, taken := survivors[key{e.EntityType, n}]; !taken {
					survivors[key{e.EntityType, n}] = e
				}
			}
			continue
		}

		if err := entities.Merge(ctx, target.ID, e.ID); err != nil {
			return merges, err
		}
		merges++
		for n := range norms {
			if n == "" {
				continue
			}
			if _, taken := survivors[key{e.EntityType, n}]; !taken {
				survivors[key{e.EntityType, n}] = target
			}
		}
	}

	if merges > 0 {
		contextutil.LoggerFromContext(ctx).Info("entity merge pass complete", "merged", merges)
	}
	return merges, nil
}
