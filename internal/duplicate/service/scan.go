package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"lineage/internal/duplicate/models"
	"lineage/internal/duplicate/scoring"
	"lineage/internal/graph"
	"lineage/internal/policy"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/audit"
	"lineage/pkg/requestcontext"
)

type hit struct {
	a, b   *scoring.Profile
	result scoring.Result
}

// ScanDuplicates scores every pair of people in scope and stores the pairs
// at or above the requested confidence. The graph is only read. A cancelled
// scan returns what it stored so far with Partial set.
func (s *Service) ScanDuplicates(ctx context.Context, req *models.ScanRequest) (_ *models.ScanResult, err error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	scope := req.Scope()
	if err := requireTrees(caps, policy.DuplicateScan, scopeTrees(scope)...); err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "duplicate.Scan",
		attribute.String("tree.id", scope.TreeID.String()),
		attribute.String("target_tree.id", scope.TargetTreeID.String()),
		attribute.String("mode", string(*scope.Mode)),
	)
	defer func() { endSpan(span, err) }()
	start := time.Now()

	left, right, warnings, err := s.loadScope(ctx, scope)
	if err != nil {
		return nil, translate(err, "failed to load people for duplicate scan")
	}

	result := &models.ScanResult{Candidates: []*models.Candidate{}, Warnings: warnings}
	result.Scanned = len(left) + len(right)
	hits, compared := s.score(ctx, left, right, *scope.Mode, scope.MinConfidence)
	result.Compared = compared
	if ctx.Err() != nil {
		result.Partial = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("scan cancelled after %d pairs; nothing was stored", compared))
		s.finishScan(ctx, scope, result, start)
		return result, nil
	}

	now := requestcontext.Now(ctx)
	for i, h := range hits {
		if ctx.Err() != nil {
			result.Partial = true
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("scan cancelled after storing %d of %d candidates", i, len(hits)))
			break
		}
		c, err := models.NewCandidate(h.a.Person.ID, h.b.Person.ID, h.result.Score, *scope.Mode,
			scope.TreeID, scope.TargetTreeID, h.result.Reasons, now)
		if err != nil {
			return nil, translate(err, "failed to build duplicate candidate")
		}
		stored, err := s.upsert(ctx, c)
		if err != nil {
			return nil, translate(err, "failed to store duplicate candidate")
		}
		if stored.Status.IsTerminal() {
			result.Resolved++
			continue
		}
		result.Candidates = append(result.Candidates, stored)
	}

	if len(result.Candidates) > 0 {
		s.invalidate(ctx, scopeTrees(scope)...)
	}
	s.finishScan(ctx, scope, result, start)
	s.emit(ctx, audit.ActionDuplicateScanned, audit.EntityTree, scope.TreeID.String(), nil, map[string]any{
		"target_tree_id": scope.TargetTreeID,
		"mode":           scope.Mode,
		"min_confidence": scope.MinConfidence,
		"candidates":     len(result.Candidates),
		"partial":        result.Partial,
	})
	return result, nil
}

// upsert stores one candidate as its own unit of work so a failing
// resolution running alongside cannot roll it back.
func (s *Service) upsert(ctx context.Context, c *models.Candidate) (*models.Candidate, error) {
	var stored *models.Candidate
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		stored, err = s.store.Upsert(txCtx, c)
		return err
	})
	return stored, err
}

func (s *Service) finishScan(ctx context.Context, scope models.Scope, result *models.ScanResult, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveScan(start, result.Compared, result.Partial)
		s.metrics.AddCandidates(string(*scope.Mode), len(result.Candidates))
	}
	s.logger.InfoContext(ctx, "duplicate scan finished",
		"request_id", requestcontext.RequestID(ctx),
		"tree_id", scope.TreeID,
		"target_tree_id", scope.TargetTreeID,
		"mode", *scope.Mode,
		"scanned", result.Scanned,
		"compared", result.Compared,
		"candidates", len(result.Candidates),
		"already_resolved", result.Resolved,
		"partial", result.Partial,
		"duration", time.Since(start),
	)
}

// loadScope returns the profiles to compare. Within one tree every profile
// is in left and right is nil; across trees left holds the scanned tree and
// right the target tree. People beyond maxScanPersons are skipped with a
// warning.
func (s *Service) loadScope(ctx context.Context, scope models.Scope) (left, right []*scoring.Profile, warnings []string, err error) {
	people, err := s.graph.ListPeopleInTree(ctx, scope.TreeID)
	if err != nil {
		return nil, nil, nil, err
	}
	var others []*graph.Person
	if scope.CrossTree() {
		if others, err = s.graph.ListPeopleInTree(ctx, scope.TargetTreeID); err != nil {
			return nil, nil, nil, err
		}
	}

	warnings = []string{}
	if total := len(people) + len(others); total > s.maxScanPersons {
		warnings = append(warnings, fmt.Sprintf("scope too large: compared %d of %d people", s.maxScanPersons, total))
		people, others = capScope(people, others, s.maxScanPersons)
	}

	all := append(slices.Clone(people), others...)
	profiles, err := s.profiles(ctx, all)
	if err != nil {
		return nil, nil, nil, err
	}
	left = profiles[:len(people)]
	if scope.CrossTree() {
		right = profiles[len(people):]
	}
	return left, right, warnings, nil
}

// capScope keeps at most limit people, split as evenly as the two sides
// allow.
func capScope(people, others []*graph.Person, limit int) ([]*graph.Person, []*graph.Person) {
	if len(others) == 0 {
		return people[:limit], nil
	}
	half := limit / 2
	switch {
	case len(people) <= half:
		return people, others[:limit-len(people)]
	case len(others) <= limit-half:
		return people[:limit-len(others)], others
	}
	return people[:half], others[:limit-half]
}

func (s *Service) profiles(ctx context.Context, people []*graph.Person) ([]*scoring.Profile, error) {
	ids := make([]id.PersonID, len(people))
	for i, p := range people {
		ids[i] = p.ID
	}
	edges, err := s.graph.ListParentChildForPersons(ctx, ids)
	if err != nil {
		return nil, err
	}
	unions, err := s.graph.ListUnionsForPersons(ctx, ids)
	if err != nil {
		return nil, err
	}

	parents := make(map[id.PersonID][]id.PersonID)
	for _, e := range edges {
		parents[e.ChildID] = append(parents[e.ChildID], e.ParentID)
	}
	partners := make(map[id.PersonID][]id.PersonID)
	for _, u := range unions {
		partners[u.PartnerA] = append(partners[u.PartnerA], u.PartnerB)
		partners[u.PartnerB] = append(partners[u.PartnerB], u.PartnerA)
	}

	out := make([]*scoring.Profile, len(people))
	for i, p := range people {
		out[i] = scoring.NewProfile(p, parents[p.ID], partners[p.ID])
	}
	return out, nil
}

// score compares pairs on s.workers goroutines. Rows of the comparison are
// dealt round-robin so early rows, which have the most pairs within a tree,
// spread across workers. Workers stop at the next row once ctx is done.
func (s *Service) score(ctx context.Context, left, right []*scoring.Profile, mode models.Mode, minConfidence int) ([]hit, int) {
	var compared atomic.Int64
	results := make([][]hit, s.workers)

	var g errgroup.Group
	for w := range s.workers {
		g.Go(func() error {
			for i := w; i < len(left); i += s.workers {
				if ctx.Err() != nil {
					return nil
				}
				others, from := left, i+1
				if right != nil {
					others, from = right, 0
				}
				n := 0
				for _, other := range others[from:] {
					if left[i].Person.ID == other.Person.ID {
						continue
					}
					n++
					r := scoring.Score(left[i], other, mode)
					if r.Score >= minConfidence && r.Score > 0 {
						results[w] = append(results[w], hit{a: left[i], b: other, result: r})
					}
				}
				compared.Add(int64(n))
			}
			return nil
		})
	}
	_ = g.Wait()

	hits := slices.Concat(results...)
	slices.SortFunc(hits, func(x, y hit) int {
		if n := cmp.Compare(y.result.Score, x.result.Score); n != 0 {
			return n
		}
		return cmp.Compare(x.a.Person.ID.String()+x.b.Person.ID.String(), y.a.Person.ID.String()+y.b.Person.ID.String())
	})
	return hits, int(compared.Load())
}
