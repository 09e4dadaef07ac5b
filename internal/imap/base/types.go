package base

import (
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
)

type State struct {
	Client *giimapclient.Client
}

// Folders names the mailboxes the gateway moves messages between.
type Folders struct {
	Inbox string `yaml:"inbox"`
	Trash string `yaml:"trash"`
	Junk  string `yaml:"junk"`
}

func DefaultFolders() Folders {
	return Folders{Inbox: "INBOX", Trash: "Trash", Junk: "Junk"}
}

// WithDefaults fills empty names from DefaultFolders.
func (f Folders) WithDefaults() Folders {
	d := DefaultFolders()
	if f.Inbox == "" {
		f.Inbox = d.Inbox
	}
	if f.Trash == "" {
		f.Trash = d.Trash
	}
	if f.Junk == "" {
		f.Junk = d.Junk
	}
	return f
}
