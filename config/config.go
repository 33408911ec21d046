// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	ClassifierSpamassassin = "spamassassin"
	ClassifierSpamc        = "spamc"
	ClassifierSpamd        = "spamd"
)

type Config struct {
	ImapHost string
	User     string
	Password string
	NoSSL    bool

	Inbox      string
	SpamFolder string

	Classifier string
	SpamdHost  string

	MaxSize          uint32
	PartialRun       int
	DeleteHigherThan *float64

	Flag     bool
	Delete   bool
	Expunge  bool
	Gmail    bool
	NoReport bool

	LearnSpamFolder  string
	LearnHamFolder   string
	LearnFlagged     bool
	LearnUnflagged   bool
	LearnThenDestroy bool
	LearnThenFlag    bool
	MoveHamTo        string

	TeachOnly bool
	DryRun    bool

	TrackFile string

	Loglevel *string
}

func ReadConfig(filename string) (*Config, error) {
	config := &Config{
		Inbox:      "INBOX",
		SpamFolder: "INBOX.spam",
		Classifier: ClassifierSpamassassin,
		MaxSize:    120000,
		TrackFile:  "seenstate",
		DryRun:     true,
	}

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if err := validateNonEmptyStringField(c.ImapHost, "ImapHost must not be empty, set to host:port of the imap server"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.User, "User must not be empty, set to username on the imap server"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.Password, "Password must not be empty, set to password of User on the imap server"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.TrackFile, "TrackFile must not be empty, set to the path prefix for the seen-state files"); err != nil {
		return err
	}

	switch c.Classifier {
	case ClassifierSpamassassin, ClassifierSpamc:
	case ClassifierSpamd:
		if err := validateNonEmptyStringField(c.SpamdHost, "SpamdHost must be set if Classifier is spamd"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown Classifier %q, must be one of spamassassin, spamc or spamd", c.Classifier)
	}

	if c.MaxSize < 1 {
		return fmt.Errorf("MaxSize %d is too small", c.MaxSize)
	}

	if c.PartialRun < 0 {
		return fmt.Errorf("PartialRun must be 1 or higher, or 0 to process everything")
	}

	if c.DeleteHigherThan != nil && *c.DeleteHigherThan < 1 {
		return fmt.Errorf("DeleteHigherThan score %v is too small", *c.DeleteHigherThan)
	}

	if c.LearnFlagged && c.LearnUnflagged {
		return fmt.Errorf("LearnFlagged and LearnUnflagged cannot be set at the same time")
	}

	if c.TeachOnly && len(strings.TrimSpace(c.LearnSpamFolder)) == 0 && len(strings.TrimSpace(c.LearnHamFolder)) == 0 {
		return fmt.Errorf("TeachOnly requires LearnSpamFolder or LearnHamFolder to be set")
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
