package model

import (
	"errors"
	"fmt"
)

var (
	ErrNoMetadata      = errors.New("artist/title metadata missing")
	ErrSearchTransport = errors.New("search transport failure")
	ErrNoCandidates    = errors.New("no usable candidates")
	ErrDownloadFailed  = errors.New("download failed")
	ErrUserSkip        = errors.New("skipped by user")
	ErrUserCancel      = errors.New("cancelled by user")
	ErrGlobalStop      = errors.New("stop requested")

	// Both wrap ErrSearchTransport: control flow treats them as transport
	// failures, reporting keeps them apart.
	ErrSearchRateLimited = fmt.Errorf("search rate limited: %w", ErrSearchTransport)
	ErrSearchTimeout     = fmt.Errorf("search timed out: %w", ErrSearchTransport)

	ErrDownloadTimeout = fmt.Errorf("download timed out: %w", ErrDownloadFailed)
)
