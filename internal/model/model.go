// Package model defines domain entities shared by the codec, reconciler and stores.
package model

import (
	"math"
	"sort"

	"github.com/gofrs/uuid/v5"
)

// Grade scale bounds (German school scale, lower is better).
const (
	GradeBest  = 1.0
	GradeWorst = 6.0
)

// Grade is one scored assessment belonging to a Subject.
type Grade struct {
	ID     string  `json:"id"`     // client-assigned, stable across devices
	Value  float64 `json:"value"`  // 1.0..6.0, stored encrypted remotely
	Type   string  `json:"type"`   // free-text category ("Test", "Quiz", ...)
	Date   string  `json:"date"`   // ISO date, plaintext
	Weight float64 `json:"weight"` // positive, defaults to 1.0
}

// Subject represents one academic course for one user. Grades are linked
// documents on the remote side, not embedded.
type Subject struct {
	ID           string  `json:"id"`      // client-assigned domain id
	OwnerID      string  `json:"ownerId"` // key derivation + access filtering
	Name         string  `json:"name"`
	AverageGrade float64 `json:"averageGrade"` // derived, stored encrypted remotely
	Grades       []Grade `json:"grades"`       // newest first after reconciliation
}

// Snapshot is one owner's full local state handed to the reconciler.
type Snapshot struct {
	OwnerID  string    `json:"ownerId"`
	Subjects []Subject `json:"subjects"`
}

// NewID returns a fresh client-assigned domain id.
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// AssignIDs fills empty subject and grade ids with fresh ones. Imported data
// often carries no ids; a subject must never reach the remote store with an
// empty domain id, since every grade links to its subject by that id.
func AssignIDs(subjects []Subject) {
	for i := range subjects {
		if subjects[i].ID == "" {
			subjects[i].ID = NewID()
		}
		for j := range subjects[i].Grades {
			if subjects[i].Grades[j].ID == "" {
				subjects[i].Grades[j].ID = NewID()
			}
		}
	}
}

// EffectiveWeight returns the grade weight with the 1.0 default applied.
func (g Grade) EffectiveWeight() float64 {
	if g.Weight > 0 {
		return g.Weight
	}
	return 1.0
}

// WeightedAverage computes the weight-normalized mean of grade values,
// rounded to 2 decimals. Returns 0 for an empty set.
func WeightedAverage(grades []Grade) float64 {
	var sum, weights float64
	for _, g := range grades {
		w := g.EffectiveWeight()
		sum += g.Value * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return math.Round(sum/weights*100) / 100
}

// SortNewestFirst orders grades by ISO date descending, in place.
// ISO dates compare correctly as strings.
func SortNewestFirst(grades []Grade) {
	sort.SliceStable(grades, func(i, j int) bool {
		return grades[i].Date > grades[j].Date
	})
}
