// SPDX-License-Identifier: GPL-3.0-or-later

// Package spamd talks to a spamd instance directly over its network
// protocol instead of spawning the spamc binary per message.
package spamd

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"time"

	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/log"
	"github.com/nvall/go-imap-begone/mail"

	"github.com/sirupsen/logrus"
	"github.com/teamwork/spamc"
)

const SpamdTimeout = 20 * time.Second

type Classifier struct {
	client *spamc.Client
	l      *logrus.Logger
}

func New(host string) (*Classifier, error) {
	client := spamc.New(host, &net.Dialer{
		Timeout: SpamdTimeout,
	})
	err := client.Ping(context.TODO())
	if err != nil {
		return nil, &domain.ClassifierTransportError{Output: fmt.Sprintf("could not ping spamd: %v", err)}
	}

	return &Classifier{
		client: client,
		l:      log.Logger(log.LOG_CLASSIFIER),
	}, nil
}

func (c *Classifier) Score(body []byte) (domain.Verdict, error) {
	check, err := c.client.Check(context.TODO(), bytes.NewReader(body), nil)
	if err != nil {
		// CHECK either answers or the daemon is gone, there is no
		// borderline verdict hiding in a failed roundtrip
		return domain.Verdict{}, &domain.ClassifierTransportError{Output: err.Error()}
	}

	return domain.Verdict{
		IsSpam: check.IsSpam,
		Score: domain.Score{
			Points:   check.Score,
			Required: check.BaseScore,
		},
	}, nil
}

func (c *Classifier) Annotate(body []byte) ([]byte, error) {
	out, err := c.client.Process(context.TODO(), bytes.NewReader(body), nil)
	if err != nil {
		return nil, fmt.Errorf("could not process mail via spamd: %w", err)
	}

	annotated, err := ioutil.ReadAll(out.Message)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	err = out.Message.Close()
	if err != nil {
		return nil, fmt.Errorf("could not close response: %w", err)
	}

	return mail.ToCRLF(annotated), nil
}

func (c *Classifier) Teach(learnType domain.LearnType, body []byte) (domain.TeachOutcome, error) {
	header := spamc.Header{}.Set("Set", "local")
	switch learnType {
	case domain.LearnSpam:
		header = header.Set("Message-class", "spam")
	case domain.LearnHam:
		header = header.Set("Message-class", "ham")
	default:
		return 0, fmt.Errorf("unsupported learn type %v", learnType)
	}

	_, err := c.client.Tell(context.TODO(), bytes.NewReader(body), header)
	if err != nil {
		return 0, fmt.Errorf("could not teach spamd: %w", err)
	}

	c.l.WithFields(logrus.Fields{"learntype": learnType}).Debug("Taught classifier")

	// TELL does not report whether the message was new to the bayes db,
	// so every successful roundtrip counts as learned
	return domain.Learned, nil
}
