// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	stdmail "net/mail"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
)

// Subject returns the decoded subject header of a raw message. Used for log
// lines only, so a missing subject is not an error.
func Subject(rawMail []byte) (string, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(rawMail))
	if err != nil {
		return "", fmt.Errorf("could not parse mail: %w", err)
	}

	dec := &mime.WordDecoder{
		CharsetReader: charset.Reader,
	}
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		return "", fmt.Errorf("could not decode subject header: %w", err)
	}

	return subject, nil
}

// Unwrap checks whether rawMail is itself a report wrapping an original
// message (a classifier report or a delivery-status report) and if so returns
// the first wrapped sub-message. Anything else is returned unchanged.
func Unwrap(rawMail []byte) ([]byte, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(rawMail))
	if err != nil {
		return nil, fmt.Errorf("could not parse mail: %w", err)
	}

	contentType := msg.Header.Get("Content-Type")
	if len(contentType) == 0 {
		return rawMail, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return rawMail, nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return rawMail, nil
	}

	if !isReportWrapper(mediaType, msg.Header) {
		return rawMail, nil
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return rawMail, nil
		}
		if err != nil {
			return nil, fmt.Errorf("unexpected error while unwrapping: %w", err)
		}

		partType := p.Header.Get("Content-Type")
		if strings.Contains(partType, "message/rfc822") || strings.Contains(partType, "x-spam-type=original") {
			unwrapped, err := ioutil.ReadAll(p)
			if err != nil {
				return nil, fmt.Errorf("unexpected error while reading wrapped body: %w", err)
			}

			return unwrapped, nil
		}
	}
}

func isReportWrapper(mediaType string, header stdmail.Header) bool {
	if mediaType == "multipart/report" {
		return true
	}

	saHeaders := 0
	for key := range header {
		if strings.Contains(key, "X-Spam-") {
			saHeaders++
		}
	}

	return saHeaders >= 2
}

// The classifier strips the <CR> of <CR><LF> line endings when it rewrites a
// message, which IMAP APPEND rejects.
var bareLf = regexp.MustCompile(`([^\r])\n`)

// ToCRLF makes sure every line ends in <CR><LF>. The substitution runs twice
// because the pattern consumes the character preceding each bare \n, so two
// adjacent bare line endings need a second pass.
func ToCRLF(text []byte) []byte {
	return bareLf.ReplaceAll(bareLf.ReplaceAll(text, []byte("$1\r\n")), []byte("$1\r\n"))
}

func ShortSubject(subject string) string {
	if (len(subject)) > 30 {
		subject = subject[:30] + "..."
	}
	return subject
}
