// SPDX-License-Identifier: GPL-3.0-or-later
package begone

import (
	"errors"
	"testing"

	"github.com/nvall/go-imap-begone/domain"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func verdictFor(points, required float64) domain.Verdict {
	return domain.Verdict{
		IsSpam: points >= required,
		Score:  domain.Score{Points: points, Required: required},
	}
}

// verdictsByBody returns a classifier scoring each exact body with its
// mapped verdict.
func verdictsByBody(t *testing.T, verdicts map[string]domain.Verdict) *fakeClassifier {
	return &fakeClassifier{
		score: func(body []byte) (domain.Verdict, error) {
			verdict, ok := verdicts[string(body)]
			if !ok {
				t.Fatalf("unexpected body %q", body)
			}
			return verdict, nil
		},
	}
}

func TestScan_HamSpamAndAutoDelete(t *testing.T) {
	session := newFakeSession(123, 101, 102, 103)
	session.bodies[101] = []byte("Subject: a\r\n\r\nham\r\n")
	session.bodies[102] = []byte("Subject: b\r\n\r\nspam\r\n")
	session.bodies[103] = []byte("Subject: c\r\n\r\nworse spam\r\n")

	classifier := verdictsByBody(t, map[string]domain.Verdict{
		string(session.bodies[101]): {IsSpam: false, Score: domain.Score{Points: 1, Required: 10}},
		string(session.bodies[102]): {IsSpam: true, Score: domain.Score{Points: 5, Required: 10}},
		string(session.bodies[103]): {IsSpam: true, Score: domain.Score{Points: 12, Required: 10}},
	})
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen,
		SpamFolder("spam"),
		FlagSpam(),
		DeleteSpam(),
		DeleteHigherThan(10),
	)

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, &domain.ScanResult{Examined: 3, Spam: 2, Deleted: 1}, result)

	// 102 was filed with a report and flagged, 103 only flagged deleted
	assert.Len(t, session.appends, 1)
	assert.Equal(t, "spam", session.appends[0].folder)
	assert.Equal(t, []flagOp{
		{102, []string{imap.FlaggedFlag, imap.DeletedFlag}},
		{103, []string{imap.DeletedFlag}},
	}, session.flagOps)
	assert.Empty(t, session.copies)

	// all three are remembered regardless of verdict
	assert.ElementsMatch(t, ids(101, 102, 103), seen.storedIds(domain.SeenInbox))
}

func TestScan_SecondRunSeesNothing(t *testing.T) {
	session := newFakeSession(123, 1, 2, 3)
	classifier := &fakeClassifier{}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen)

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Examined)

	result, err = bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Examined)
	assert.Equal(t, 3, classifier.scoreCalls)
}

func TestScan_IdentityChangeResetsSeenState(t *testing.T) {
	session := newFakeSession(123, 1, 2, 3)
	classifier := &fakeClassifier{}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen)

	_, err := bg.Scan()
	assert.NoError(t, err)

	// the server renumbered the folder, everything is a candidate again
	session.validity = 124
	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Examined)
	assert.Equal(t, 6, classifier.scoreCalls)
}

func TestScan_PartialRun(t *testing.T) {
	session := newFakeSession(123, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	classifier := &fakeClassifier{}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, PartialRun(3))

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Examined)
	assert.ElementsMatch(t, ids(1, 2, 3), seen.storedIds(domain.SeenInbox))

	// the leftovers are the next run's candidates
	result, err = bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Examined)
	assert.ElementsMatch(t, ids(1, 2, 3, 4, 5, 6), seen.storedIds(domain.SeenInbox))
}

func TestScan_ThresholdTieIsReportedNotDeleted(t *testing.T) {
	session := newFakeSession(123, 1)
	classifier := &fakeClassifier{
		score: func([]byte) (domain.Verdict, error) {
			return domain.Verdict{IsSpam: true, Score: domain.Score{Points: 10, Required: 10}}, nil
		},
	}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, SpamFolder("spam"), FlagSpam(), DeleteHigherThan(10))

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, &domain.ScanResult{Examined: 1, Spam: 1, Deleted: 0}, result)
	assert.Len(t, session.appends, 1)
	assert.Equal(t, []flagOp{{1, []string{imap.FlaggedFlag}}}, session.flagOps)
}

func TestScan_DegenerateScoreAborts(t *testing.T) {
	session := newFakeSession(123, 1, 2, 3)
	classifier := &fakeClassifier{
		score: func([]byte) (domain.Verdict, error) {
			return domain.Verdict{}, &domain.ClassifierTransportError{Output: "0/0"}
		},
	}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen)

	result, err := bg.Scan()
	assert.Nil(t, result)

	var transport *domain.ClassifierTransportError
	assert.True(t, errors.As(err, &transport))

	// no further candidates were classified, but the aborted run still
	// remembers what it fetched
	assert.Equal(t, 1, classifier.scoreCalls)
	assert.ElementsMatch(t, ids(1), seen.storedIds(domain.SeenInbox))
}

func TestScan_GoneMessageIsSkippedButRemembered(t *testing.T) {
	session := newFakeSession(123, 1, 2)
	session.gone[1] = true
	classifier := &fakeClassifier{}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen)

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 1, classifier.scoreCalls)
	assert.ElementsMatch(t, ids(1, 2), seen.storedIds(domain.SeenInbox))
}

func TestScan_MissingSpamFolderFailsFast(t *testing.T) {
	session := newFakeSession(123, 1)
	session.selectErr = map[string]error{
		"spam": &domain.ProtocolError{Op: `select "spam"`, Err: errors.New("NO folder does not exist")},
	}
	classifier := &fakeClassifier{}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, SpamFolder("spam"))

	result, err := bg.Scan()
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Equal(t, 0, classifier.scoreCalls)
	assert.Equal(t, 0, seen.saves)
}

func TestScan_NoReportCopiesInstead(t *testing.T) {
	session := newFakeSession(123, 1)
	classifier := &fakeClassifier{
		score: func([]byte) (domain.Verdict, error) {
			return domain.Verdict{IsSpam: true, Score: domain.Score{Points: 9, Required: 5}}, nil
		},
	}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, SpamFolder("spam"), NoReport())

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Spam)
	assert.Empty(t, session.appends)
	assert.Equal(t, []copyOp{{1, "spam"}}, session.copies)
}

func TestScan_AppendFailureSkipsMessage(t *testing.T) {
	session := newFakeSession(123, 1, 2)
	session.appendErr = errors.New("append rejected")
	classifier := &fakeClassifier{
		score: func([]byte) (domain.Verdict, error) {
			return domain.Verdict{IsSpam: true, Score: domain.Score{Points: 9, Required: 5}}, nil
		},
	}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, FlagSpam())

	result, err := bg.Scan()
	assert.NoError(t, err)
	// both mails were classified, neither was successfully filed
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 0, result.Spam)
	assert.Empty(t, session.flagOps)
	assert.ElementsMatch(t, ids(1, 2), seen.storedIds(domain.SeenInbox))
}

func TestScan_GmailDeletesViaTrash(t *testing.T) {
	session := newFakeSession(123, 1, 2)
	session.bodies[1] = []byte("Subject: a\r\n\r\nspam\r\n")
	session.bodies[2] = []byte("Subject: b\r\n\r\nworse\r\n")
	classifier := verdictsByBody(t, map[string]domain.Verdict{
		string(session.bodies[1]): verdictFor(9, 5),
		string(session.bodies[2]): verdictFor(20, 5),
	})
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, SpamFolder("spam"), DeleteSpam(), GmailTrash(), DeleteHigherThan(10))

	result, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, &domain.ScanResult{Examined: 2, Spam: 2, Deleted: 1}, result)

	// no \Deleted flags under gmail semantics, both ended up in trash
	assert.Empty(t, session.flagOps)
	assert.ElementsMatch(t, []copyOp{{1, GmailTrashFolder}, {2, GmailTrashFolder}}, session.copies)
}

func TestScan_ExpungeAfterRun(t *testing.T) {
	session := newFakeSession(123, 1)
	classifier := &fakeClassifier{
		score: func([]byte) (domain.Verdict, error) {
			return verdictFor(9, 5), nil
		},
	}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, DeleteSpam(), ExpungeAfterRun())

	_, err := bg.Scan()
	assert.NoError(t, err)
	assert.Equal(t, 1, session.expunges)
}

func TestScan_DryRun(t *testing.T) {
	session := newFakeSession(123, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	classifier := &fakeClassifier{}
	seen := newMemorySeenStore()

	bg := newBegone(t, session, classifier, seen, DryRun(), FlagSpam(), DeleteSpam())

	result, err := bg.Scan()
	assert.NoError(t, err)

	// verdicts are synthesized, the classifier and the server stay untouched
	assert.Equal(t, 0, classifier.scoreCalls)
	assert.Empty(t, session.appends)
	assert.Empty(t, session.copies)
	assert.Empty(t, session.flagOps)
	assert.Equal(t, 0, session.expunges)

	assert.Equal(t, 10, result.Examined)
	assert.Equal(t, 1, result.Spam)

	// only the handful of dry-run processed mails count as seen
	assert.Len(t, seen.storedIds(domain.SeenInbox), dryRunProcessMax)
}
