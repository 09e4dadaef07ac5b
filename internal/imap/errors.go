package imap

import (
	"context"
	"errors"
	"io"
	"net"

	"aaronromeo.com/inboxsweep/pkg/base"
	"github.com/emersion/go-imap/v2"
)

// classify maps IMAP and transport errors onto the base taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		switch {
		case imapErr.Code == imap.ResponseCode("LIMIT"):
			return base.Classify(base.ErrRateLimited, err)
		case imapErr.Code == imap.ResponseCode("UNAVAILABLE"):
			return base.Classify(base.ErrProviderHardFailure, err)
		case imapErr.Type == imap.StatusResponseTypeBad,
			imapErr.Code == imap.ResponseCode("NONEXISTENT"),
			imapErr.Code == imap.ResponseCode("TRYCREATE"):
			return base.Classify(base.ErrValidation, err)
		}
		return base.Classify(base.ErrProviderHardFailure, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return base.Classify(base.ErrNetworkUnavailable, err)
	}
	return base.Classify(base.ErrProviderHardFailure, err)
}
