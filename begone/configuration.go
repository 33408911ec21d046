// SPDX-License-Identifier: GPL-3.0-or-later
package begone

import (
	"fmt"

	"github.com/emersion/go-imap"
)

const GmailTrashFolder = "[Gmail]/Trash"

type ConfigFunc func(c *configuration) error

func DryRun() ConfigFunc {
	return func(c *configuration) error {
		c.DryRun = true

		return nil
	}
}

func ScanFolder(folder string) ConfigFunc {
	return func(c *configuration) error {
		if len(folder) == 0 {
			return fmt.Errorf("ScanFolder cannot be empty")
		}

		c.Inbox = folder
		return nil
	}
}

func SpamFolder(folder string) ConfigFunc {
	return func(c *configuration) error {
		if len(folder) == 0 {
			return fmt.Errorf("SpamFolder cannot be empty")
		}

		c.SpamFolder = folder
		return nil
	}
}

func MaxSize(maxBytes uint32) ConfigFunc {
	return func(c *configuration) error {
		if maxBytes < 1 {
			return fmt.Errorf("MaxSize must be 1 or higher")
		}

		c.MaxSize = maxBytes
		return nil
	}
}

// PartialRun caps one scan at limit candidates. Whatever is left over stays
// unseen and becomes the next run's work.
func PartialRun(limit int) ConfigFunc {
	return func(c *configuration) error {
		if limit < 1 {
			return fmt.Errorf("PartialRun limit must be 1 or higher")
		}

		c.PartialRun = limit
		return nil
	}
}

// DeleteHigherThan auto-deletes spam scoring strictly above score instead of
// reporting it to the spam folder.
func DeleteHigherThan(score float64) ConfigFunc {
	return func(c *configuration) error {
		if score < 1 {
			return fmt.Errorf("DeleteHigherThan score %v is too small", score)
		}

		c.DeleteHigherThan = &score
		return nil
	}
}

func FlagSpam() ConfigFunc {
	return func(c *configuration) error {
		c.FlagSpam = true
		return nil
	}
}

func DeleteSpam() ConfigFunc {
	return func(c *configuration) error {
		c.DeleteSpam = true
		return nil
	}
}

// GmailTrash deletes by copying to the Gmail trash folder instead of
// flagging \Deleted, which Gmail ignores.
func GmailTrash() ConfigFunc {
	return func(c *configuration) error {
		c.Gmail = true
		return nil
	}
}

// ExpungeAfterRun permanently removes \Deleted messages once the scan's
// flagging phase is done.
func ExpungeAfterRun() ConfigFunc {
	return func(c *configuration) error {
		c.Expunge = true
		return nil
	}
}

// NoReport copies matched spam verbatim instead of appending a version with
// the classifier's report embedded.
func NoReport() ConfigFunc {
	return func(c *configuration) error {
		c.NoReport = true
		return nil
	}
}

func LearnSpamFolder(folder string) ConfigFunc {
	return func(c *configuration) error {
		if len(folder) == 0 {
			return fmt.Errorf("LearnSpamFolder cannot be empty")
		}

		c.LearnSpamFolder = folder
		return nil
	}
}

func LearnHamFolder(folder string) ConfigFunc {
	return func(c *configuration) error {
		if len(folder) == 0 {
			return fmt.Errorf("LearnHamFolder cannot be empty")
		}

		c.LearnHamFolder = folder
		return nil
	}
}

func LearnFlaggedOnly() ConfigFunc {
	return func(c *configuration) error {
		if c.LearnUnflagged {
			return fmt.Errorf("LearnFlaggedOnly and LearnUnflaggedOnly cannot be used at the same time")
		}

		c.LearnFlagged = true
		return nil
	}
}

func LearnUnflaggedOnly() ConfigFunc {
	return func(c *configuration) error {
		if c.LearnFlagged {
			return fmt.Errorf("LearnFlaggedOnly and LearnUnflaggedOnly cannot be used at the same time")
		}

		c.LearnUnflagged = true
		return nil
	}
}

func LearnThenDestroy() ConfigFunc {
	return func(c *configuration) error {
		c.LearnThenDestroy = true
		return nil
	}
}

func LearnThenFlag() ConfigFunc {
	return func(c *configuration) error {
		c.LearnThenFlag = true
		return nil
	}
}

func MoveHamTo(folder string) ConfigFunc {
	return func(c *configuration) error {
		if len(folder) == 0 {
			return fmt.Errorf("MoveHamTo folder cannot be empty")
		}

		c.MoveHamTo = folder
		return nil
	}
}

type configuration struct {
	DryRun bool

	Inbox      string
	SpamFolder string

	MaxSize          uint32
	PartialRun       int
	DeleteHigherThan *float64

	FlagSpam   bool
	DeleteSpam bool
	Gmail      bool
	Expunge    bool
	NoReport   bool

	LearnSpamFolder  string
	LearnHamFolder   string
	LearnFlagged     bool
	LearnUnflagged   bool
	LearnThenDestroy bool
	LearnThenFlag    bool
	MoveHamTo        string
}

func defaultConfiguration() *configuration {
	return &configuration{
		Inbox:      "INBOX",
		SpamFolder: "INBOX.spam",
		MaxSize:    120000,
	}
}

// spamFlags is the flag set applied to reported spam left in the scan
// folder. Under gmail semantics deletion happens via the trash folder, so
// \Deleted is only set when the server honors it.
func (c *configuration) spamFlags() []string {
	flags := []string{}
	if c.FlagSpam {
		flags = append(flags, imap.FlaggedFlag)
	}
	if c.DeleteSpam && !c.Gmail {
		flags = append(flags, imap.DeletedFlag)
	}
	return flags
}
