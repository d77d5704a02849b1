package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

func TestNewCandidate(t *testing.T) {
	tree := id.TreeID(uuid.New())
	a, b := id.NewPersonID(), id.NewPersonID()
	now := time.Now()

	t.Run("stores the pair lowest id first", func(t *testing.T) {
		c1, err := NewCandidate(a, b, 75, ModeFuzzy, tree, tree, nil, now)
		require.NoError(t, err)
		c2, err := NewCandidate(b, a, 75, ModeFuzzy, tree, tree, nil, now)
		require.NoError(t, err)

		assert.Equal(t, c1.Pair(), c2.Pair())
		assert.True(t, c1.PersonA.Less(c1.PersonB))
		assert.NotNil(t, c1.Reasons)
		assert.Equal(t, StatusPending, c1.Status)
	})

	t.Run("rejects a self pair and out of range scores", func(t *testing.T) {
		_, err := NewCandidate(a, a, 75, ModeFuzzy, tree, tree, nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		_, err = NewCandidate(a, b, 101, ModeFuzzy, tree, tree, nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		_, err = NewCandidate(a, b, -1, ModeFuzzy, tree, tree, nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestCandidateLifecycle(t *testing.T) {
	tree := id.TreeID(uuid.New())
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := NewCandidate(id.NewPersonID(), id.NewPersonID(), 72, ModeFuzzy, tree, tree, []string{"a"}, created)
	require.NoError(t, err)

	c.Refresh(81, ModePhonetic, []string{"b"}, created.Add(time.Hour))
	assert.Equal(t, 81, c.Score)
	assert.Equal(t, ModePhonetic, c.Mode)
	assert.Equal(t, created, c.CreatedAt)
	require.NoError(t, c.CanResolve())

	reviewer := id.UserID(uuid.New())
	c.Resolve(ActionReject, reviewer, "different fathers", nil, created.Add(2*time.Hour))
	assert.Equal(t, StatusRejected, c.Status)
	require.NotNil(t, c.ReviewerID)
	assert.Equal(t, reviewer, *c.ReviewerID)

	c.Refresh(99, ModeExact, nil, created.Add(3*time.Hour))
	assert.Equal(t, 81, c.Score, "resolved candidates keep their score")
	assert.True(t, dErrors.HasCode(c.CanResolve(), dErrors.CodeConflict))
}

func TestActionOutcome(t *testing.T) {
	assert.Equal(t, StatusApprovedLink, ActionApproveLink.Outcome())
	assert.Equal(t, StatusMerged, ActionMerge.Outcome())
	assert.Equal(t, StatusRejected, ActionReject.Outcome())
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusMerged.IsTerminal())
}

func TestScanRequest(t *testing.T) {
	tree, other := id.TreeID(uuid.New()), id.TreeID(uuid.New())
	conf := func(v int) *int { return &v }

	tests := []struct {
		name    string
		req     ScanRequest
		wantErr bool
		check   func(t *testing.T, s Scope)
	}{
		{
			name: "defaults to fuzzy within one tree",
			req:  ScanRequest{TreeID: " " + tree.String() + " "},
			check: func(t *testing.T, s Scope) {
				assert.Equal(t, ModeFuzzy, *s.Mode)
				assert.Equal(t, DefaultMinConfidence, s.MinConfidence)
				assert.False(t, s.CrossTree())
			},
		},
		{
			name: "cross tree with explicit threshold",
			req:  ScanRequest{TreeID: tree.String(), TargetTreeID: other.String(), Mode: "PHONETIC", MinConfidence: conf(0)},
			check: func(t *testing.T, s Scope) {
				assert.Equal(t, ModePhonetic, *s.Mode)
				assert.Equal(t, 0, s.MinConfidence)
				assert.True(t, s.CrossTree())
			},
		},
		{name: "bad tree", req: ScanRequest{TreeID: "tree-1"}, wantErr: true},
		{name: "bad target", req: ScanRequest{TreeID: tree.String(), TargetTreeID: "x"}, wantErr: true},
		{name: "bad mode", req: ScanRequest{TreeID: tree.String(), Mode: "metaphone"}, wantErr: true},
		{name: "threshold too high", req: ScanRequest{TreeID: tree.String(), MinConfidence: conf(101)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
				return
			}
			require.NoError(t, err)
			tt.check(t, tt.req.Scope())
		})
	}
}

func TestScopeMatches(t *testing.T) {
	tree, other := id.TreeID(uuid.New()), id.TreeID(uuid.New())
	c, err := NewCandidate(id.NewPersonID(), id.NewPersonID(), 75, ModeExact, other, tree, nil, time.Now())
	require.NoError(t, err)
	exact, fuzzy := ModeExact, ModeFuzzy

	assert.True(t, Scope{TreeID: tree, TargetTreeID: other, MinConfidence: 70}.Matches(c), "either tree order")
	assert.True(t, Scope{TreeID: tree, TargetTreeID: other, Mode: &exact, MinConfidence: 75}.Matches(c))
	assert.False(t, Scope{TreeID: tree, TargetTreeID: other, Mode: &fuzzy}.Matches(c))
	assert.False(t, Scope{TreeID: tree, TargetTreeID: other, MinConfidence: 76}.Matches(c))
	assert.False(t, Scope{TreeID: tree, TargetTreeID: tree}.Matches(c))
}

func TestBucketFor(t *testing.T) {
	for score, want := range map[int]Bucket{100: Bucket90to100, 90: Bucket90to100, 89: Bucket80to89, 70: Bucket70to79, 69: Bucket50to69, 50: Bucket50to69, 49: Bucket0to49, 0: Bucket0to49} {
		assert.Equal(t, want, BucketFor(score), "score %d", score)
	}
}
