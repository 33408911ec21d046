// SPDX-License-Identifier: GPL-3.0-or-later
package domain

// MessageID is the server-assigned UID of a message within one folder.
// It is only comparable to other ids obtained under the same FolderIdentity.
type MessageID uint32

// FolderIdentity is the UIDVALIDITY of a folder. Whenever it changes, all
// previously remembered MessageIDs for that folder are void.
type FolderIdentity uint32

type MailSession interface {
	SelectFolder(folder string, readonly bool) (FolderIdentity, error)
	SearchSizeUnder(maxBytes uint32) ([]MessageID, error)
	SearchAll() ([]MessageID, error)
	SearchFlagged() ([]MessageID, error)
	SearchUnflagged() ([]MessageID, error)
	FetchBody(id MessageID) ([]byte, error)
	Append(folder string, flags []string, body []byte) error
	Copy(id MessageID, folder string) error
	SetFlags(id MessageID, flags []string) error
	Expunge() error

	Logout() error
}
