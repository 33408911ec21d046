// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/nvall/go-imap-begone/domain"
	"github.com/nvall/go-imap-begone/log"

	"github.com/sirupsen/logrus"
)

// FileStore keeps one seen-state file per folder role next to each other,
// named <trackpath>-<role>. The file holds a single JSON object
// {"uidvalidity": <int>, "uids": [...]}. Earlier versions of the format wrote
// uids as strings, so both integers and decimal strings are accepted on read.
type FileStore struct {
	trackPath string
	l         *logrus.Logger
}

func NewFileStore(trackPath string) (*FileStore, error) {
	if len(trackPath) == 0 {
		return nil, fmt.Errorf("track path cannot be empty")
	}

	return &FileStore{
		trackPath: trackPath,
		l:         log.Logger(log.LOG_SEENSTATE),
	}, nil
}

type seenFile struct {
	UidValidity uint32        `json:"uidvalidity"`
	Uids        []interface{} `json:"uids"`
}

// Load never fails: a missing, corrupt or stale file degrades to an empty set
// tagged with the folder's current identity.
func (fs *FileStore) Load(role domain.SeenRole, current domain.FolderIdentity) *domain.SeenSet {
	seen := domain.NewSeenSet(current)

	raw, err := ioutil.ReadFile(fs.fileFor(role))
	if err != nil {
		if !os.IsNotExist(err) {
			fs.l.WithFields(logrus.Fields{"role": role, "error": err}).Warn("Could not read seen-state file, starting empty")
		}
		return seen
	}

	parsed := &seenFile{}
	err = json.Unmarshal(raw, parsed)
	if err != nil {
		fs.l.WithFields(logrus.Fields{"role": role, "error": err}).Warn("Could not parse seen-state file, starting empty")
		return seen
	}

	if domain.FolderIdentity(parsed.UidValidity) != current {
		fs.l.WithFields(logrus.Fields{"role": role, "stored": parsed.UidValidity, "current": current}).Info("Folder identity changed, discarding previous seen-state")
		return seen
	}

	for _, u := range parsed.Uids {
		id, ok := parseUid(u)
		if !ok {
			fs.l.WithFields(logrus.Fields{"role": role, "uid": u}).Warn("Skipping unparseable uid in seen-state file")
			continue
		}
		seen.IDs[id] = true
	}

	fs.l.WithFields(logrus.Fields{"role": role, "uids": len(seen.IDs)}).Debug("Loaded seen-state")
	return seen
}

// Save writes the union of original and newlySeen in one piece: marshal to a
// temp file in the target directory, then rename over the old state.
func (fs *FileStore) Save(role domain.SeenRole, original *domain.SeenSet, newlySeen []domain.MessageID) error {
	union := map[domain.MessageID]bool{}
	for id := range original.IDs {
		union[id] = true
	}
	for _, id := range newlySeen {
		union[id] = true
	}

	uids := make([]interface{}, 0, len(union))
	sorted := make([]domain.MessageID, 0, len(union))
	for id := range union {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		uids = append(uids, uint32(id))
	}

	raw, err := json.Marshal(&seenFile{
		UidValidity: uint32(original.Validity),
		Uids:        uids,
	})
	if err != nil {
		return fmt.Errorf("could not serialize seen-state: %w", err)
	}

	target := fs.fileFor(role)
	tmp, err := ioutil.TempFile(filepath.Dir(target), filepath.Base(target)+".tmp")
	if err != nil {
		return fmt.Errorf("could not create temp seen-state file: %w", err)
	}

	err = tmp.Chmod(0600)
	if err != nil {
		// seen-state holds no secrets, tightening is best effort
		fs.l.WithFields(logrus.Fields{"role": role, "error": err}).Warn("Could not restrict seen-state file permissions")
	}

	_, err = tmp.Write(raw)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("could not write seen-state: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("could not close seen-state file: %w", err)
	}

	err = os.Rename(tmp.Name(), target)
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("could not replace seen-state file: %w", err)
	}

	fs.l.WithFields(logrus.Fields{"role": role, "previous": len(original.IDs), "new": len(newlySeen)}).Debug("Persisted seen-state")
	return nil
}

func (fs *FileStore) fileFor(role domain.SeenRole) string {
	return fs.trackPath + "-" + string(role)
}

func parseUid(raw interface{}) (domain.MessageID, bool) {
	switch v := raw.(type) {
	case float64:
		return domain.MessageID(v), true
	case string:
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, false
		}
		return domain.MessageID(parsed), true
	default:
		return 0, false
	}
}
