// SPDX-License-Identifier: GPL-3.0-or-later

// Package spamassassin classifies mails by spawning the SpamAssassin
// binaries, either the standalone perl script or the lightweight spamc
// client. The message body is piped to stdin, the verdict comes back as the
// exit code plus a score on stdout.
package spamassassin

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/log"
	"github.com/nvall/go-imap-begone/mail"

	"github.com/sirupsen/logrus"
)

// spamd prints this when a message was fed to it a second time.
const alreadyLearnedMarker = "Message was already un/learned"

// spamd exit codes for "teaching is disabled server-side".
const (
	exitUnavailable = 69
	exitIOErr       = 74
)

type Classifier struct {
	testCmd []string
	saveCmd []string

	// spamc prints a bare N/M score line, the standalone binary embeds
	// score=N required=M in its report text
	spamcOutput bool

	l *logrus.Logger
}

// NewStandalone invokes the full spamassassin binary for scoring and
// report generation.
func NewStandalone() *Classifier {
	return &Classifier{
		testCmd:     []string{"spamassassin", "--exit-code"},
		saveCmd:     []string{"spamassassin"},
		spamcOutput: false,
		l:           log.Logger(log.LOG_CLASSIFIER),
	}
}

// NewSpamc invokes the lightweight spamc client, which needs a running
// spamd but is much cheaper per message.
func NewSpamc() *Classifier {
	return &Classifier{
		testCmd:     []string{"spamc", "-c"},
		saveCmd:     []string{"spamc"},
		spamcOutput: true,
		l:           log.Logger(log.LOG_CLASSIFIER),
	}
}

func (c *Classifier) Score(body []byte) (domain.Verdict, error) {
	out, code, err := runWithInput(c.testCmd, body)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("could not run %v: %w", c.testCmd, err)
	}

	var score domain.Score
	if c.spamcOutput {
		score, err = ParseSpamcScore(string(out))
	} else {
		score, err = ParseReportScore(string(out))
	}
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("could not parse score from %v output: %w", c.testCmd, err)
	}

	// A 0/0 answer on a nonzero exit is spamc telling us it could not
	// reach spamd, not a verdict on the message.
	if code != 0 && score.Points == 0 && score.Required == 0 {
		return domain.Verdict{}, &domain.ClassifierTransportError{Output: strings.TrimSpace(string(out))}
	}

	return domain.Verdict{
		IsSpam: code != 0,
		Score:  score,
	}, nil
}

func (c *Classifier) Annotate(body []byte) ([]byte, error) {
	// the report generators exit nonzero for spam as well, only the
	// output matters here
	out, _, err := runWithInput(c.saveCmd, body)
	if err != nil {
		return nil, fmt.Errorf("could not run %v: %w", c.saveCmd, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%v produced no report output", c.saveCmd)
	}

	return mail.ToCRLF(out), nil
}

// Teach always goes through spamc regardless of scoring mode, matching how
// spamd expects TELL-style learning to arrive.
func (c *Classifier) Teach(learnType domain.LearnType, body []byte) (domain.TeachOutcome, error) {
	switch learnType {
	case domain.LearnSpam, domain.LearnHam:
	default:
		return 0, fmt.Errorf("unsupported learn type %v", learnType)
	}

	learnCmd := []string{"spamc", "--learntype=" + string(learnType)}
	out, code, err := runWithInput(learnCmd, body)
	if err != nil {
		return 0, fmt.Errorf("could not run %v: %w", learnCmd, err)
	}

	if code == exitUnavailable || code == exitIOErr {
		return 0, &domain.ClassifierMisconfiguredError{ExitCode: code}
	}

	c.l.WithFields(logrus.Fields{"learntype": learnType, "output": strings.TrimSpace(string(out))}).Debug("Taught classifier")

	if strings.TrimSpace(string(out)) == alreadyLearnedMarker {
		return domain.AlreadyLearned, nil
	}
	return domain.Learned, nil
}

func runWithInput(cmdline []string, input []byte) ([]byte, int, error) {
	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Stdin = bytes.NewReader(input)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), nil
		}
		return nil, 0, err
	}

	return out, 0, nil
}

var (
	spamcScore  = regexp.MustCompile(`(-?\d+(?:\.\d+)?)/(\d+(?:\.\d+)?)`)
	reportScore = regexp.MustCompile(`score=(-?\d+(?:\.\d+)?) required=(\d+(?:\.\d+)?)`)
)

// ParseSpamcScore reads the bare "points/required" line spamc -c prints.
func ParseSpamcScore(out string) (domain.Score, error) {
	return parseScore(spamcScore, out)
}

// ParseReportScore extracts "score=<num> required=<num>" from the free-form
// report the standalone binary emits.
func ParseReportScore(out string) (domain.Score, error) {
	return parseScore(reportScore, out)
}

func parseScore(re *regexp.Regexp, out string) (domain.Score, error) {
	m := re.FindStringSubmatch(out)
	if m == nil {
		excerpt := strings.TrimSpace(out)
		if len(excerpt) > 60 {
			excerpt = excerpt[:60] + "..."
		}
		return domain.Score{}, fmt.Errorf("no score found in %q", excerpt)
	}

	points, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.Score{}, fmt.Errorf("could not parse points %q: %w", m[1], err)
	}
	required, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return domain.Score{}, fmt.Errorf("could not parse required %q: %w", m[2], err)
	}

	return domain.Score{Points: points, Required: required}, nil
}
