// SPDX-License-Identifier: GPL-3.0-or-later

// Package begone holds the scan and learn pipelines: enumerate unseen mails
// in a folder, classify or teach each one, act on the verdicts and remember
// what was processed. Everything runs strictly sequentially on one mail
// session; exclusivity across whole-tool invocations is the caller's job.
package begone

import (
	"fmt"

	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/log"

	"github.com/sirupsen/logrus"
)

type Begone struct {
	session    domain.MailSession
	classifier domain.SpamClassifier
	seen       domain.SeenStore

	configuration *configuration

	l *logrus.Logger
}

func New(session domain.MailSession, classifier domain.SpamClassifier, seen domain.SeenStore, configFunc ...ConfigFunc) (*Begone, error) {
	config := defaultConfiguration()
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Begone{
		session:       session,
		classifier:    classifier,
		seen:          seen,
		configuration: config,
		l:             log.Logger(log.LOG_BEGONE),
	}, nil
}
