// SPDX-License-Identifier: GPL-3.0-or-later
package domain

// SeenRole names the logical folder a seen-state file belongs to.
type SeenRole string

const (
	SeenInbox     = SeenRole("inbox")
	SeenLearnSpam = SeenRole("spam")
	SeenLearnHam  = SeenRole("ham")
)

// SeenSet is the set of MessageIDs already processed for one role, valid only
// while the folder still reports the recorded FolderIdentity.
type SeenSet struct {
	Validity FolderIdentity
	IDs      map[MessageID]bool
}

func NewSeenSet(validity FolderIdentity) *SeenSet {
	return &SeenSet{
		Validity: validity,
		IDs:      map[MessageID]bool{},
	}
}

func (s *SeenSet) Contains(id MessageID) bool {
	return s.IDs[id]
}

// Unseen returns the candidates not yet present in the set, preserving order.
func (s *SeenSet) Unseen(candidates []MessageID) []MessageID {
	unseen := []MessageID{}
	for _, id := range candidates {
		if !s.IDs[id] {
			unseen = append(unseen, id)
		}
	}
	return unseen
}

type SeenStore interface {
	// Load returns the persisted set for role, or an empty set tagged with
	// current when the file is missing, unreadable or recorded under a
	// different FolderIdentity.
	Load(role SeenRole, current FolderIdentity) *SeenSet
	// Save persists original.IDs ∪ newlySeen under original.Validity.
	Save(role SeenRole, original *SeenSet, newlySeen []MessageID) error
}
