// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"errors"
	"os"

	"github.com/nvall/go-imap-begone/begone"
	"github.com/nvall/go-imap-begone/classifier/spamassassin"
	"github.com/nvall/go-imap-begone/classifier/spamd"
	"github.com/nvall/go-imap-begone/config"
	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/imapsession"
	"github.com/nvall/go-imap-begone/log"
	"github.com/nvall/go-imap-begone/persistence"

	"github.com/sirupsen/logrus"
)

// Exit codes let cron wrappers tell apart what a run found and why it died.
const (
	exitOk         = 0  // all went well, or teach-only
	exitNewMsgs    = 1  // there were new messages, none of them spam
	exitNewSpam    = 2  // every new message was spam
	exitNewMsgSpam = 3  // new messages, some of them spam
	exitConfig     = 10 // configuration errors
	exitImap       = 11 // an IMAP level error
	exitClassifier = 12 // communication with the classifier backend failed
)

func main() {
	os.Exit(run())
}

func run() int {
	log.InitLogging("info")
	logger := log.Logger(log.LOG_MAIN)

	conf, err := config.ReadConfig("config.toml")
	if err != nil {
		logger.WithField("error", err).Error("Could not load config")
		return exitConfig
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	seenStore, err := persistence.NewFileStore(conf.TrackFile)
	if err != nil {
		logger.WithField("error", err).Error("Could not set up seen-state store")
		return exitConfig
	}

	classifier, err := newClassifier(conf)
	if err != nil {
		logger.WithField("error", err).Error("Could not start classifier connector")
		return exitClassifier
	}

	session, err := imapsession.NewSession(conf.ImapHost, conf.User, conf.Password, !conf.NoSSL)
	if err != nil {
		logger.WithField("error", err).Error("Could not connect to imap server")
		return exitImap
	}
	defer session.Logout()

	bg, err := begone.New(session, classifier, seenStore, pipelineOptions(conf)...)
	if err != nil {
		logger.WithField("error", err).Error("Could not start spamchecker")
		return exitConfig
	}

	if len(conf.LearnSpamFolder) > 0 || len(conf.LearnHamFolder) > 0 {
		logger.WithFields(logrus.Fields{"spamfolder": conf.LearnSpamFolder, "hamfolder": conf.LearnHamFolder, "dryrun": conf.DryRun}).Info("Learning mails")

		totals, err := bg.Learn()
		if err != nil {
			logger.WithField("error", err).Error("Learning failed")
			return exitCodeFor(err)
		}
		logger.WithFields(logrus.Fields{
			"spamlearnt": totals.Spam.Learned, "spamfound": totals.Spam.Candidates,
			"hamlearnt": totals.Ham.Learned, "hamfound": totals.Ham.Candidates,
		}).Info("Learned mails")
	}

	if conf.TeachOnly {
		return exitOk
	}

	logger.WithFields(logrus.Fields{"folder": conf.Inbox, "spamfolder": conf.SpamFolder, "dryrun": conf.DryRun}).Info("Checking mails for spam")
	result, err := bg.Scan()
	if err != nil {
		logger.WithField("error", err).Error("Checking spam failed")
		return exitCodeFor(err)
	}

	logger.WithFields(logrus.Fields{"examined": result.Examined, "spam": result.Spam, "deleted": result.Deleted}).Info("Finished")

	switch {
	case result.Spam == 0:
		return exitNewMsgs
	case result.Spam == result.Examined:
		return exitNewSpam
	default:
		return exitNewMsgSpam
	}
}

func newClassifier(conf *config.Config) (domain.SpamClassifier, error) {
	switch conf.Classifier {
	case config.ClassifierSpamc:
		return spamassassin.NewSpamc(), nil
	case config.ClassifierSpamd:
		return spamd.New(conf.SpamdHost)
	default:
		return spamassassin.NewStandalone(), nil
	}
}

func pipelineOptions(conf *config.Config) []begone.ConfigFunc {
	configs := []begone.ConfigFunc{
		begone.ScanFolder(conf.Inbox),
		begone.SpamFolder(conf.SpamFolder),
		begone.MaxSize(conf.MaxSize),
	}

	if conf.DryRun {
		configs = append(configs, begone.DryRun())
	}
	if conf.PartialRun > 0 {
		configs = append(configs, begone.PartialRun(conf.PartialRun))
	}
	if conf.DeleteHigherThan != nil {
		configs = append(configs, begone.DeleteHigherThan(*conf.DeleteHigherThan))
	}
	if conf.Flag {
		configs = append(configs, begone.FlagSpam())
	}
	if conf.Delete {
		configs = append(configs, begone.DeleteSpam())
	}
	if conf.Gmail {
		configs = append(configs, begone.GmailTrash())
	}
	if conf.Expunge {
		configs = append(configs, begone.ExpungeAfterRun())
	}
	if conf.NoReport {
		configs = append(configs, begone.NoReport())
	}

	if len(conf.LearnSpamFolder) > 0 {
		configs = append(configs, begone.LearnSpamFolder(conf.LearnSpamFolder))
	}
	if len(conf.LearnHamFolder) > 0 {
		configs = append(configs, begone.LearnHamFolder(conf.LearnHamFolder))
	}
	if conf.LearnFlagged {
		configs = append(configs, begone.LearnFlaggedOnly())
	}
	if conf.LearnUnflagged {
		configs = append(configs, begone.LearnUnflaggedOnly())
	}
	if conf.LearnThenDestroy {
		configs = append(configs, begone.LearnThenDestroy())
	}
	if conf.LearnThenFlag {
		configs = append(configs, begone.LearnThenFlag())
	}
	if len(conf.MoveHamTo) > 0 {
		configs = append(configs, begone.MoveHamTo(conf.MoveHamTo))
	}

	return configs
}

func exitCodeFor(err error) int {
	var protocol *domain.ProtocolError
	if errors.As(err, &protocol) {
		return exitImap
	}

	var transport *domain.ClassifierTransportError
	if errors.As(err, &transport) {
		return exitClassifier
	}

	var misconfigured *domain.ClassifierMisconfiguredError
	if errors.As(err, &misconfigured) {
		return exitConfig
	}

	return exitImap
}
