// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		name     string
		rawMail  string
		expected string
		err      string
	}{
		{"plain", "Subject: Saying Hello\r\n\r\nbody\r\n", "Saying Hello", ""},
		{"encodedword", "Subject: =?utf-8?q?M=C2=A5_spam?=\r\n\r\nbody\r\n", "M¥ spam", ""},
		{"nosubject", "From: someone@example.org\r\n\r\nbody\r\n", "", ""},
		{"unparseable", "not a mail at all", "", "could not parse mail"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			subject, err := Subject([]byte(tc.rawMail))
			if len(tc.err) == 0 {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, subject)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
			}
		})
	}
}

const wrappedOriginal = "Subject: original\r\n\r\nhello"

const deliveryReport = "From: mailer-daemon@example.org\r\n" +
	"Subject: Delivery Status Notification\r\n" +
	"Content-Type: multipart/report; report-type=delivery-status; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"delivery failed\r\n" +
	"--b1\r\n" +
	"Content-Type: message/rfc822\r\n" +
	"\r\n" +
	wrappedOriginal + "\r\n" +
	"--b1--\r\n"

const classifierReport = "Subject: spam report\r\n" +
	"X-Spam-Flag: YES\r\n" +
	"X-Spam-Status: Yes, score=7.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b2\"\r\n" +
	"\r\n" +
	"--b2\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"report text\r\n" +
	"--b2\r\n" +
	"Content-Type: message/rfc822; x-spam-type=original\r\n" +
	"\r\n" +
	wrappedOriginal + "\r\n" +
	"--b2--\r\n"

const ordinaryMultipart = "Subject: photos\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b3\"\r\n" +
	"\r\n" +
	"--b3\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"see attachment\r\n" +
	"--b3--\r\n"

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name     string
		rawMail  string
		expected string
	}{
		{"plainmail", "Subject: hi\r\n\r\nhello\r\n", "Subject: hi\r\n\r\nhello\r\n"},
		{"nocontenttype", "Subject: hi\r\n\r\nhello\r\n", "Subject: hi\r\n\r\nhello\r\n"},
		{"deliveryreport", deliveryReport, wrappedOriginal},
		{"classifierreport", classifierReport, wrappedOriginal},
		{"ordinarymultipart", ordinaryMultipart, ordinaryMultipart},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Unwrap([]byte(tc.rawMail))
			assert.NoError(t, err)
			assert.Equal(t, []byte(tc.expected), result)
		})
	}
}

func TestUnwrapReportWithoutOriginalIsUnchanged(t *testing.T) {
	noOriginal := "Subject: report\r\n" +
		"Content-Type: multipart/report; boundary=\"b4\"\r\n" +
		"\r\n" +
		"--b4\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"nothing wrapped here\r\n" +
		"--b4--\r\n"

	result, err := Unwrap([]byte(noOriginal))
	assert.NoError(t, err)
	assert.Equal(t, []byte(noOriginal), result)
}

func TestToCRLF(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"barelf", "a\nb\n", "a\r\nb\r\n"},
		{"alreadycrlf", "a\r\nb\r\n", "a\r\nb\r\n"},
		{"mixed", "a\r\nb\nc\r\n", "a\r\nb\r\nc\r\n"},
		// adjacent bare line endings need the second pass
		{"emptyline", "a\n\nb\n", "a\r\n\r\nb\r\n"},
		{"lonecr", "a\rb\n", "a\rb\r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, []byte(tc.expected), ToCRLF([]byte(tc.input)))
		})
	}
}

func TestShortSubject(t *testing.T) {
	assert.Equal(t, "short", ShortSubject("short"))
	assert.Equal(t, "123456789012345678901234567890...", ShortSubject("1234567890123456789012345678901"))
}
