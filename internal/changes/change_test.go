package changes

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	a, b := id.NewPersonID(), id.NewPersonID()
	union := id.NewUnionID()
	value := "Lagos"

	for _, c := range []Change{
		AddParentChild{ParentID: a, ChildID: b, Relationship: graph.RelationshipAdoptive, UnionID: &union},
		RemoveParentChild{ParentID: a, ChildID: b},
		AddUnion{PartnerA: a, PartnerB: b, UnionKind: graph.UnionPartnership},
		RemoveUnion{PartnerA: a, PartnerB: b},
		EditPersonFact{PersonID: a, Field: graph.FieldBirthPlace, Value: &value},
		LinkPerson{PersonA: a, PersonB: b},
		MergePerson{Keep: a, Absorb: b},
	} {
		t.Run(string(c.Kind()), func(t *testing.T) {
			raw, err := Encode(c)
			require.NoError(t, err)

			var env map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(raw, &env))
			assert.JSONEq(t, `"`+string(c.Kind())+`"`, string(env["kind"]))

			decoded, err := Decode(raw)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(c, decoded))
		})
	}
}

func TestDecodeRejectsBadEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"unknown kind", `{"kind":"rename_tree","data":{}}`},
		{"missing ids", `{"kind":"add_parent_child","data":{"relationship":"biological"}}`},
		{"unknown field", `{"kind":"edit_person_fact","data":{"person_id":"` + id.NewPersonID().String() + `","field":"eye_colour","value":"brown"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), "got %v", err)
		})
	}
}

func TestBuild(t *testing.T) {
	target, secondary := id.NewPersonID(), id.NewPersonID()

	t.Run("parent-child takes the secondary person as parent", func(t *testing.T) {
		c, err := Build(KindAddParentChild, target, &secondary, json.RawMessage(`{"relationship":"step"}`))
		require.NoError(t, err)
		assert.Equal(t, AddParentChild{ParentID: secondary, ChildID: target, Relationship: graph.RelationshipStep}, c)
	})

	t.Run("relationship defaults to biological", func(t *testing.T) {
		c, err := Build(KindAddParentChild, target, &secondary, nil)
		require.NoError(t, err)
		assert.Equal(t, graph.RelationshipBiological, c.(AddParentChild).Relationship)
	})

	t.Run("link and merge are left to duplicate resolution", func(t *testing.T) {
		for _, kind := range []Kind{KindLinkPerson, KindMergePerson} {
			_, err := Build(kind, target, &secondary, nil)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), string(kind))
			assert.True(t, kind.IsValid())
			assert.False(t, kind.IsSuggestion())
		}
	})

	t.Run("fact edit needs no secondary person", func(t *testing.T) {
		c, err := Build(KindEditPersonFact, target, nil, json.RawMessage(`{"field":"death_date","value":"1988-07"}`))
		require.NoError(t, err)
		assert.Equal(t, graph.FieldDeathDate, c.(EditPersonFact).Field)
	})

	t.Run("missing secondary person", func(t *testing.T) {
		_, err := Build(KindAddUnion, target, nil, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("invalid fact value", func(t *testing.T) {
		_, err := Build(KindEditPersonFact, target, nil, json.RawMessage(`{"field":"sex","value":"tall"}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Build(Kind("adopt_tree"), target, &secondary, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	before, after := "Ada", "Adaeze"
	snap := &Snapshot{
		Kind: KindEditPersonFact,
		Fact: &FactSnapshot{PersonID: id.NewPersonID(), Field: graph.FieldGivenName, Before: &before, After: &after},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Empty(t, cmp.Diff(snap, &decoded))
}
