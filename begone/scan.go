// SPDX-License-Identifier: GPL-3.0-or-later
package begone

import (
	"errors"
	"fmt"

	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/mail"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

// Dry runs never touch the classifier. The first candidate gets a
// synthesized spam verdict, the rest count as ham, and processing stops
// after a handful of mails.
const (
	dryRunProcessMax = 5
	dryRunSpamMax    = 1
)

// Scan classifies every unseen mail in the scan folder and applies the
// configured action to the matches. A mail is considered seen once its body
// was retrieved, whatever the verdict turns out to be.
func (bg *Begone) Scan() (*domain.ScanResult, error) {
	cfg := bg.configuration

	// fail fast when the spam folder does not exist, before anything has
	// been classified or marked seen
	_, err := bg.session.SelectFolder(cfg.SpamFolder, true)
	if err != nil {
		return nil, fmt.Errorf("could not select spam folder %s: %w", cfg.SpamFolder, err)
	}

	validity, err := bg.session.SelectFolder(cfg.Inbox, true)
	if err != nil {
		return nil, fmt.Errorf("could not select folder %s: %w", cfg.Inbox, err)
	}

	// mails above MaxSize are unlikely to be spam and expensive to fetch
	candidates, err := bg.session.SearchSizeUnder(cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("could not search folder %s: %w", cfg.Inbox, err)
	}

	seen := bg.seen.Load(domain.SeenInbox, validity)
	unseen := seen.Unseen(candidates)
	if cfg.PartialRun > 0 && len(unseen) > cfg.PartialRun {
		bg.l.WithFields(logrus.Fields{"unseen": len(unseen), "limit": cfg.PartialRun}).Info("Truncating candidates for partial run")
		unseen = unseen[:cfg.PartialRun]
	}

	bg.l.WithFields(logrus.Fields{"folder": cfg.Inbox, "candidates": len(candidates), "new": len(unseen)}).Info("Found mails to check")

	newlySeen := []domain.MessageID{}
	spamList := []domain.MessageID{}
	deleteList := []domain.MessageID{}
	dryRunProcessed := 0

	for _, id := range unseen {
		if cfg.DryRun && dryRunProcessed >= dryRunProcessMax {
			break
		}

		body, err := bg.session.FetchBody(id)
		if err != nil {
			if errors.Is(err, domain.ErrMessageGone) {
				// mark it seen anyway so the next run does not chase
				// a mail the server will never show us
				newlySeen = append(newlySeen, id)
				continue
			}
			return nil, fmt.Errorf("could not fetch mail %d: %w", id, err)
		}

		// once the body was retrieved the mail is never reconsidered
		newlySeen = append(newlySeen, id)

		body = bg.unwrap(id, body)

		var verdict domain.Verdict
		if cfg.DryRun {
			verdict = synthesizeVerdict(dryRunProcessed < dryRunSpamMax)
			dryRunProcessed++
		} else {
			verdict, err = bg.classifier.Score(body)
			if err != nil {
				var transport *domain.ClassifierTransportError
				if errors.As(err, &transport) {
					// backend outage, nothing further can be classified;
					// keep what this run already saw
					saveErr := bg.seen.Save(domain.SeenInbox, seen, newlySeen)
					if saveErr != nil {
						bg.l.WithField("error", saveErr).Warn("Could not persist seen-state while aborting")
					}
					return nil, err
				}

				bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not classify mail, skipping")
				continue
			}
		}

		bg.logVerdict(id, body, verdict)

		if !verdict.IsSpam {
			continue
		}

		// strictly higher: a tie at the threshold is still reported, not
		// silently destroyed
		if cfg.DeleteHigherThan != nil && verdict.Score.Points > *cfg.DeleteHigherThan {
			deleteList = append(deleteList, id)
			continue
		}

		if !bg.fileSpam(id, body) {
			continue
		}

		spamList = append(spamList, id)
	}

	err = bg.seen.Save(domain.SeenInbox, seen, newlySeen)
	if err != nil {
		bg.l.WithField("error", err).Warn("Could not persist seen-state, mails may be reprocessed next run")
	}

	result := &domain.ScanResult{
		Examined: len(unseen),
		Spam:     len(spamList) + len(deleteList),
		Deleted:  len(deleteList),
	}

	if result.Spam == 0 {
		bg.l.WithField("examined", result.Examined).Info("No spam found")
		return result, nil
	}

	if cfg.DryRun {
		bg.l.WithFields(logrus.Fields{"spam": result.Spam, "deleted": result.Deleted}).Info("Not flagging or expunging spam due to dry-run")
		return result, nil
	}

	err = bg.applySpamActions(spamList, deleteList)
	if err != nil {
		return nil, err
	}

	bg.l.WithFields(logrus.Fields{"examined": result.Examined, "spam": result.Spam, "deleted": result.Deleted}).Info("Scan finished")
	return result, nil
}

// applySpamActions re-selects the scan folder writable and marks, trashes or
// deletes the hits found during the scan loop. Per-message failures are
// logged and skipped; only folder-level operations abort.
func (bg *Begone) applySpamActions(spamList, deleteList []domain.MessageID) error {
	cfg := bg.configuration

	_, err := bg.session.SelectFolder(cfg.Inbox, false)
	if err != nil {
		return fmt.Errorf("could not re-select folder %s: %w", cfg.Inbox, err)
	}

	flags := cfg.spamFlags()
	if len(flags) > 0 {
		for _, id := range spamList {
			err := bg.session.SetFlags(id, flags)
			if err != nil {
				bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not flag spam mail, ignoring")
			}
		}
	}

	// gmail ignores \Deleted, deletion happens by copying to trash
	if cfg.DeleteSpam && cfg.Gmail {
		for _, id := range spamList {
			err := bg.session.Copy(id, GmailTrashFolder)
			if err != nil {
				bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not trash spam mail, ignoring")
			}
		}
	}

	for _, id := range deleteList {
		if cfg.Gmail {
			err = bg.session.Copy(id, GmailTrashFolder)
		} else {
			err = bg.session.SetFlags(id, []string{imap.DeletedFlag})
		}
		if err != nil {
			bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not delete high-scoring spam mail, ignoring")
		}
	}

	if cfg.Expunge {
		err := bg.session.Expunge()
		if err != nil {
			return fmt.Errorf("could not expunge folder %s: %w", cfg.Inbox, err)
		}
	}

	return nil
}

// fileSpam reports one spam mail to the spam folder, either annotated with
// the classifier's report or as a verbatim copy. Returns whether the mail
// ended up filed; failures never abort the run.
func (bg *Begone) fileSpam(id domain.MessageID, body []byte) bool {
	cfg := bg.configuration

	if cfg.DryRun {
		bg.l.WithField("uid", id).Info("Not filing spam mail due to dry-run")
		return true
	}

	if cfg.NoReport {
		err := bg.session.Copy(id, cfg.SpamFolder)
		if err != nil {
			bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not copy spam mail, ignoring")
			return false
		}
		return true
	}

	annotated, err := bg.classifier.Annotate(body)
	if err != nil {
		bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not annotate spam mail, ignoring")
		return false
	}

	err = bg.session.Append(cfg.SpamFolder, nil, annotated)
	if err != nil {
		bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not append spam report, ignoring")
		return false
	}

	return true
}

// unwrap substitutes the original mail when the fetched body is itself a
// report wrapping one. Unparseable mails are classified as-is.
func (bg *Begone) unwrap(id domain.MessageID, body []byte) []byte {
	unwrapped, err := mail.Unwrap(body)
	if err != nil {
		bg.l.WithFields(logrus.Fields{"uid": id, "error": err}).Warn("Could not unwrap mail, classifying as-is")
		return body
	}
	return unwrapped
}

func (bg *Begone) logVerdict(id domain.MessageID, body []byte, verdict domain.Verdict) {
	subject, err := mail.Subject(body)
	if err != nil {
		subject = ""
	}
	bg.l.WithFields(logrus.Fields{
		"uid":     id,
		"subject": mail.ShortSubject(subject),
		"isSpam":  verdict.IsSpam,
		"score":   fmt.Sprintf("%v/%v", verdict.Score.Points, verdict.Score.Required),
	}).Debug("Checked mail")
}

func synthesizeVerdict(spam bool) domain.Verdict {
	if spam {
		return domain.Verdict{IsSpam: true, Score: domain.Score{Points: 10, Required: 10}}
	}
	return domain.Verdict{IsSpam: false, Score: domain.Score{Points: 0, Required: 10}}
}
