// SPDX-License-Identifier: GPL-3.0-or-later
package imapsession

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

// Session implements domain.MailSession on top of one authenticated IMAP
// connection. The constructor dials and logs in, so every method can assume
// an established session. There is no reconnect: a batch run that loses its
// connection aborts and the next scheduled run starts over.
type Session struct {
	connection *client.Client

	server, user string

	selectedFolder string
	loggedOut      bool

	l *logrus.Logger
}

func NewSession(server, user, password string, ssl bool) (*Session, error) {
	var imapClient *client.Client
	var err error
	if ssl {
		imapClient, err = client.DialTLS(server, nil)
	} else {
		imapClient, err = client.Dial(server)
	}
	if err != nil {
		return nil, protocolErr("dial", err)
	}

	err = imapClient.Login(user, password)
	if err != nil {
		return nil, protocolErr("login", err)
	}

	session := &Session{
		connection: imapClient,
		server:     server,
		user:       user,
		l:          log.Logger(log.LOG_IMAP),
	}

	session.l.WithFields(logrus.Fields{"server": server, "user": user, "ssl": ssl}).Debug("Logged in to server")
	return session, nil
}

// SelectFolder selects the folder and returns its current identity. The
// identity is read via a dedicated STATUS query because SELECT responses do
// not reliably carry UIDVALIDITY on all servers.
func (s *Session) SelectFolder(folder string, readonly bool) (domain.FolderIdentity, error) {
	_, err := s.connection.Select(folder, readonly)
	if err != nil {
		return 0, protocolErr(fmt.Sprintf("select %q", folder), err)
	}
	s.selectedFolder = folder

	status, err := s.connection.Status(folder, []imap.StatusItem{imap.StatusUidValidity})
	if err != nil {
		return 0, protocolErr(fmt.Sprintf("status %q", folder), err)
	}

	s.l.WithFields(logrus.Fields{"folder": folder, "readonly": readonly, "uidvalidity": status.UidValidity}).Debug("Selected folder")
	return domain.FolderIdentity(status.UidValidity), nil
}

func (s *Session) SearchSizeUnder(maxBytes uint32) ([]domain.MessageID, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Smaller = maxBytes
	return s.search("search smaller", criteria)
}

func (s *Session) SearchAll() ([]domain.MessageID, error) {
	return s.search("search all", imap.NewSearchCriteria())
}

func (s *Session) SearchFlagged() ([]domain.MessageID, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.FlaggedFlag}
	return s.search("search flagged", criteria)
}

func (s *Session) SearchUnflagged() ([]domain.MessageID, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.FlaggedFlag}
	return s.search("search unflagged", criteria)
}

func (s *Session) search(op string, criteria *imap.SearchCriteria) ([]domain.MessageID, error) {
	uids, err := s.connection.UidSearch(criteria)
	if err != nil {
		return nil, protocolErr(op, err)
	}

	ids := make([]domain.MessageID, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, domain.MessageID(uid))
	}

	s.l.WithFields(logrus.Fields{"folder": s.selectedFolder, "op": op, "hits": len(ids)}).Debug("Searched folder")
	return ids, nil
}

// FetchBody retrieves the full raw message without touching its flags. A
// message that vanished between search and fetch surfaces as ErrMessageGone
// so callers can skip it instead of aborting the run.
func (s *Session) FetchBody(id domain.MessageID) ([]byte, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uint32(id))

	section := &imap.BodySectionName{
		Peek: true,
	}
	fetchItems := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.connection.UidFetch(seqset, fetchItems, messages)
	}()

	var body []byte
	found := false
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}

		raw, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, protocolErr(fmt.Sprintf("fetch uid %d", id), err)
		}
		body = raw
		found = true
	}

	err := <-done
	if err != nil {
		return nil, protocolErr(fmt.Sprintf("fetch uid %d", id), err)
	}

	if !found {
		s.l.WithFields(logrus.Fields{"folder": s.selectedFolder, "uid": id}).Warn("Message vanished while run was in progress")
		return nil, fmt.Errorf("uid %d: %w", id, domain.ErrMessageGone)
	}

	return body, nil
}

func (s *Session) Append(folder string, flags []string, body []byte) error {
	err := s.connection.Append(folder, flags, time.Now(), bytes.NewReader(body))
	if err != nil {
		return protocolErr(fmt.Sprintf("append to %q", folder), err)
	}

	return nil
}

func (s *Session) Copy(id domain.MessageID, folder string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uint32(id))
	err := s.connection.UidCopy(seqset, folder)
	if err != nil {
		return protocolErr(fmt.Sprintf("copy uid %d to %q", id, folder), err)
	}

	return nil
}

// SetFlags adds flags to a message with +FLAGS.SILENT, so no untagged
// responses are expected back.
func (s *Session) SetFlags(id domain.MessageID, flags []string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uint32(id))

	values := make([]interface{}, 0, len(flags))
	for _, f := range flags {
		values = append(values, f)
	}

	err := s.connection.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), values, nil)
	if err != nil {
		return protocolErr(fmt.Sprintf("store uid %d", id), err)
	}

	return nil
}

// Expunge permanently removes all messages flagged \Deleted from the
// currently selected folder.
func (s *Session) Expunge() error {
	err := s.connection.Expunge(nil)
	if err != nil {
		return protocolErr(fmt.Sprintf("expunge %q", s.selectedFolder), err)
	}

	return nil
}

// Logout is idempotent, repeated calls after the first are no-ops.
func (s *Session) Logout() error {
	if s.loggedOut {
		return nil
	}
	s.loggedOut = true

	err := s.connection.Logout()
	if err != nil {
		return protocolErr("logout", err)
	}

	return nil
}

func protocolErr(op string, err error) *domain.ProtocolError {
	return &domain.ProtocolError{
		Op:       op,
		Response: err.Error(),
		Err:      err,
	}
}
