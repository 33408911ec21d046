// SPDX-License-Identifier: GPL-3.0-or-later
package domain

// ScanResult totals one scan run. Never persisted, only reported.
type ScanResult struct {
	// Examined is the number of candidates actually processed this run.
	Examined int
	// Spam counts reported spam plus auto-deleted spam.
	Spam int
	// Deleted counts spam above the delete threshold.
	Deleted int
}

// LearnResult totals one learn folder run.
type LearnResult struct {
	// Candidates is the number of unseen messages found in the folder.
	Candidates int
	// Learned is how many of them the classifier had not seen before.
	Learned int
}
