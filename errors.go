package tiercache

import (
	"errors"
	"fmt"
	"strings"

	pr "github.com/unkn0wn-root/tiercache/provider"
)

var (
	// ErrFetchFailed matches every *FetchError.
	ErrFetchFailed = errors.New("tiercache: fetch failed")
	// ErrFetchPanicked is the cause of a FetchError whose FetchFunc panicked.
	ErrFetchPanicked = errors.New("tiercache: fetch panicked")
	// ErrCanceled is returned by a Future whose caller gave up before it resolved.
	ErrCanceled = errors.New("tiercache: load canceled")
	// ErrClosed is returned by Load after Loader.Close.
	ErrClosed = errors.New("tiercache: loader closed")

	ErrUnknownClass      = errors.New("tiercache: unknown key class")
	ErrStoreRequired     = errors.New("tiercache: write-through class requires Options.Store")
	ErrNamespaceRequired = errors.New("tiercache: namespace is required")
	ErrCodecRequired     = errors.New("tiercache: codec is required")

	// ErrTierUnavailable is what a tier returns when it refuses calls
	// without trying them (see provider/breaker).
	ErrTierUnavailable = pr.ErrUnavailable
)

// FetchError is shared by every Future of a batch whose fetch failed.
type FetchError struct {
	Keys []string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("tiercache: fetch of %d keys failed: %v", len(e.Keys), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// StoreError is returned by Set when the backing store rejected the write.
// The cache is left untouched.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("tiercache: store write %q: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RemoveError is returned only when the generation bump failed and at least
// one tier delete failed too, i.e. a stale entry may still be readable.
type RemoveError struct {
	Key      string
	BumpErr  error
	TierErrs []error
}

func (e *RemoveError) Error() string {
	msgs := make([]string, 0, len(e.TierErrs))
	for _, err := range e.TierErrs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("remove %q failed: gen bump and delete failed: bump=%v; delete=%s",
		e.Key, e.BumpErr, strings.Join(msgs, "; "))
}

func (e *RemoveError) Unwrap() []error {
	errs := make([]error, 0, 1+len(e.TierErrs))
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	return append(errs, e.TierErrs...)
}
