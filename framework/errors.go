package framework

import "errors"

var (
	// ErrUnknownToolbox is reported when a toolbox name does not resolve in
	// the registry. Callers fall back to DefaultToolbox.
	ErrUnknownToolbox = errors.New("unknown toolbox")
	// ErrUnknownKernel is reported when a kernel name is missing from the
	// session's kernelspec catalog.
	ErrUnknownKernel = errors.New("unknown kernel")
	// ErrUnsupportedFormat aborts a document load.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrNoSession is returned by operations that need a session provider.
	ErrNoSession = errors.New("no session provider")
	// ErrManagerClosed is returned once a manager has been disposed.
	ErrManagerClosed = errors.New("manager closed")
)
