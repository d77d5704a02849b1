// Package scoring rates how likely two people are the same individual.
//
// A score is the sum of five components, capped at 100:
//
//	names              50  given name and surname, 25 each, compared per mode
//	birth proximity    20
//	death proximity    10
//	parent overlap     10
//	partner overlap    10
//
// Known and differing sexes score 0 regardless of the other components.
package scoring

import (
	"fmt"
	"math"

	"github.com/agnivade/levenshtein"

	"lineage/internal/duplicate/models"
	"lineage/internal/graph"
	id "lineage/pkg/domain"
)

const (
	nameWeight    = 50
	birthWeight   = 20
	deathWeight   = 10
	parentWeight  = 10
	partnerWeight = 10

	// Fuzzy name parts below this similarity contribute nothing.
	minSimilarity = 0.75
)

// Profile is a person prepared for repeated comparison.
type Profile struct {
	Person   *graph.Person
	given    string
	surname  string
	givenSx  string
	surSx    string
	birth    *graph.PartialDate
	death    *graph.PartialDate
	parents  map[id.PersonID]struct{}
	partners map[id.PersonID]struct{}
}

// NewProfile normalizes p's names and parses its dates. parents and partners
// are the IDs of the person's parents and union partners.
func NewProfile(p *graph.Person, parents, partners []id.PersonID) *Profile {
	pr := &Profile{
		Person:   p,
		given:    NormalizeName(p.GivenName),
		surname:  NormalizeName(p.Surname),
		birth:    parseDate(p.BirthDate),
		death:    parseDate(p.DeathDate),
		parents:  toSet(parents),
		partners: toSet(partners),
	}
	pr.givenSx = Soundex(pr.given)
	pr.surSx = Soundex(pr.surname)
	return pr
}

func parseDate(v *string) *graph.PartialDate {
	if v == nil {
		return nil
	}
	d, err := graph.ParseDate(*v)
	if err != nil {
		return nil
	}
	return &d
}

func toSet(ids []id.PersonID) map[id.PersonID]struct{} {
	set := make(map[id.PersonID]struct{}, len(ids))
	for _, v := range ids {
		set[v] = struct{}{}
	}
	return set
}

// Result is a score with the reasons that contributed to it.
type Result struct {
	Score   int
	Reasons []string
}

// Score compares a and b using mode for the name component.
func Score(a, b *Profile, mode models.Mode) Result {
	if conflictingSex(a.Person.Sex, b.Person.Sex) {
		return Result{Score: 0, Reasons: []string{"sex conflict"}}
	}
	var r Result
	r.add(nameScore(a, b, mode))
	r.add(dateScore("birth", a.birth, b.birth, birthWeight))
	r.add(dateScore("death", a.death, b.death, deathWeight))
	r.add(overlapScore("parents", a.parents, b.parents, parentWeight))
	r.add(overlapScore("partners", a.partners, b.partners, partnerWeight))
	if r.Score > 100 {
		r.Score = 100
	}
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	return r
}

func (r *Result) add(points int, reason string) {
	if points <= 0 {
		return
	}
	r.Score += points
	r.Reasons = append(r.Reasons, reason)
}

func conflictingSex(a, b graph.Sex) bool {
	return a != graph.SexUnknown && b != graph.SexUnknown && a != b
}

func nameScore(a, b *Profile, mode models.Mode) (int, string) {
	part := nameWeight / 2
	switch mode {
	case models.ModeExact:
		pts := 0
		if a.given != "" && a.given == b.given {
			pts += part
		}
		if a.surname != "" && a.surname == b.surname {
			pts += part
		}
		return pts, fmt.Sprintf("names match exactly (%d/%d)", pts, nameWeight)
	case models.ModePhonetic:
		pts := 0
		if a.givenSx != "" && a.givenSx == b.givenSx {
			pts += part
		}
		if a.surSx != "" && a.surSx == b.surSx {
			pts += part
		}
		return pts, fmt.Sprintf("names sound alike (%d/%d)", pts, nameWeight)
	default:
		g, s := Similarity(a.given, b.given), Similarity(a.surname, b.surname)
		pts := fuzzyPoints(g, part) + fuzzyPoints(s, part)
		return pts, fmt.Sprintf("names similar (given %.2f, surname %.2f)", g, s)
	}
}

func fuzzyPoints(sim float64, weight int) int {
	if sim < minSimilarity {
		return 0
	}
	return int(math.Round(sim * float64(weight)))
}

// Similarity is 1 minus the Levenshtein distance over the longer length,
// counted in runes. Empty names are never similar.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func dateScore(label string, a, b *graph.PartialDate, weight int) (int, string) {
	if a == nil || b == nil {
		return 0, ""
	}
	var frac float64
	var how string
	switch years := a.YearsApart(*b); {
	case a.SameDay(*b):
		frac, how = 1, "same day"
	case a.SameMonth(*b):
		frac, how = 0.8, "same month"
	case years == 0:
		frac, how = 0.7, "same year"
	case years == 1:
		frac, how = 0.5, "one year apart"
	case years == 2:
		frac, how = 0.3, "two years apart"
	default:
		return 0, ""
	}
	return int(math.Round(frac * float64(weight))), label + " " + how
}

func overlapScore(label string, a, b map[id.PersonID]struct{}, weight int) (int, string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ""
	}
	shared := 0
	for k := range a {
		if _, ok := b[k]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0, ""
	}
	union := len(a) + len(b) - shared
	pts := int(math.Round(float64(weight) * float64(shared) / float64(union)))
	return pts, fmt.Sprintf("shared %s (%d of %d)", label, shared, union)
}
