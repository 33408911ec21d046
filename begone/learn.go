// SPDX-License-Identifier: GPL-3.0-or-later
package begone

import (
	"errors"
	"fmt"

	"github.com/nvall/go-imap-begone/domain"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

// LearnTotals reports both teach folders of one run. A role without a
// configured folder stays at its zero value.
type LearnTotals struct {
	Spam domain.LearnResult
	Ham  domain.LearnResult
}

// Learn feeds the curated spam and ham folders to the classifier, each with
// its own seen-state, and applies the configured post-learn disposition.
func (bg *Begone) Learn() (*LearnTotals, error) {
	cfg := bg.configuration
	totals := &LearnTotals{}

	roles := []struct {
		folder    string
		learnType domain.LearnType
		role      domain.SeenRole
		moveTo    string
		result    *domain.LearnResult
	}{
		{cfg.LearnSpamFolder, domain.LearnSpam, domain.SeenLearnSpam, "", &totals.Spam},
		{cfg.LearnHamFolder, domain.LearnHam, domain.SeenLearnHam, cfg.MoveHamTo, &totals.Ham},
	}

	for _, r := range roles {
		if len(r.folder) == 0 {
			continue
		}

		err := bg.learnFolder(r.folder, r.learnType, r.role, r.moveTo, r.result)
		if err != nil {
			return nil, err
		}
	}

	return totals, nil
}

func (bg *Begone) learnFolder(folder string, learnType domain.LearnType, role domain.SeenRole, moveTo string, result *domain.LearnResult) error {
	cfg := bg.configuration
	baseLogger := bg.l.WithFields(logrus.Fields{"folder": folder, "learntype": learnType})

	validity, err := bg.session.SelectFolder(folder, false)
	if err != nil {
		return fmt.Errorf("could not select learn folder %s: %w", folder, err)
	}

	candidates, err := bg.searchLearnCandidates()
	if err != nil {
		return fmt.Errorf("could not search learn folder %s: %w", folder, err)
	}

	seen := bg.seen.Load(role, validity)
	unseen := seen.Unseen(candidates)
	result.Candidates = len(unseen)

	baseLogger.WithFields(logrus.Fields{"candidates": len(candidates), "new": len(unseen)}).Info("Found mails to learn")

	newlySeen := []domain.MessageID{}
	for _, id := range unseen {
		body, err := bg.session.FetchBody(id)
		if err != nil {
			if errors.Is(err, domain.ErrMessageGone) {
				newlySeen = append(newlySeen, id)
				continue
			}
			return fmt.Errorf("could not fetch mail %d: %w", id, err)
		}

		body = bg.unwrap(id, body)

		outcome := domain.AlreadyLearned
		if cfg.DryRun {
			baseLogger.WithField("uid", id).Info("Not teaching classifier due to dry-run")
		} else {
			outcome, err = bg.classifier.Teach(learnType, body)
			if err != nil {
				var misconfigured *domain.ClassifierMisconfiguredError
				if errors.As(err, &misconfigured) {
					saveErr := bg.seen.Save(role, seen, newlySeen)
					if saveErr != nil {
						baseLogger.WithField("error", saveErr).Warn("Could not persist seen-state while aborting")
					}
					return err
				}

				baseLogger.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not teach mail, skipping")
				continue
			}
		}

		if outcome == domain.Learned {
			result.Learned++
		}
		newlySeen = append(newlySeen, id)

		if !cfg.DryRun {
			bg.disposeLearned(baseLogger, id, moveTo)
		}
	}

	err = bg.seen.Save(role, seen, newlySeen)
	if err != nil {
		baseLogger.WithField("error", err).Warn("Could not persist seen-state, mails may be relearned next run")
	}

	baseLogger.WithFields(logrus.Fields{"candidates": result.Candidates, "learnt": result.Learned}).Info("Learned mails")
	return nil
}

// searchLearnCandidates picks the candidate predicate. The flagged/unflagged
// switches are mutually exclusive, enforced when the configuration is built.
func (bg *Begone) searchLearnCandidates() ([]domain.MessageID, error) {
	switch {
	case bg.configuration.LearnUnflagged:
		return bg.session.SearchUnflagged()
	case bg.configuration.LearnFlagged:
		return bg.session.SearchFlagged()
	default:
		return bg.session.SearchAll()
	}
}

// disposeLearned applies exactly one post-learn disposition, in precedence
// order: destroy, move (ham only), flag. Failures only cost the disposition,
// never the learn.
func (bg *Begone) disposeLearned(baseLogger *logrus.Entry, id domain.MessageID, moveTo string) {
	cfg := bg.configuration

	var err error
	switch {
	case cfg.LearnThenDestroy:
		if cfg.Gmail {
			err = bg.session.Copy(id, GmailTrashFolder)
		} else {
			err = bg.session.SetFlags(id, []string{imap.DeletedFlag})
		}
	case len(moveTo) > 0:
		err = bg.session.Copy(id, moveTo)
	case cfg.LearnThenFlag:
		err = bg.session.SetFlags(id, []string{imap.FlaggedFlag})
	default:
		return
	}

	if err != nil {
		baseLogger.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not dispose learned mail, ignoring")
	}
}
