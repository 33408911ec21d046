// SPDX-License-Identifier: GPL-3.0-or-later
package domain

type LearnType string

const (
	LearnSpam = LearnType("spam")
	LearnHam  = LearnType("ham")
)

// Score is the classifier's points/required ratio, e.g. 5.2/10.0.
// Points may be negative.
type Score struct {
	Points   float64
	Required float64
}

type Verdict struct {
	IsSpam bool
	Score  Score
}

type TeachOutcome int

const (
	Learned = TeachOutcome(iota)
	AlreadyLearned
)

type SpamClassifier interface {
	// Score classifies a raw message. A degenerate 0/0 score on a spam
	// verdict means the classifier backend is unreachable and is returned
	// as *ClassifierTransportError.
	Score(body []byte) (Verdict, error)
	// Annotate returns the message with the classifier's report embedded,
	// normalized so every line ends in CRLF.
	Annotate(body []byte) ([]byte, error)
	// Teach feeds a message with a known category to the classifier.
	Teach(learnType LearnType, body []byte) (TeachOutcome, error)
}
