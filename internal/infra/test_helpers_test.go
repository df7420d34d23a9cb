package infra

import (
	"errors"
	"time"
)

// fakeLister is a test double for processLister.
type fakeLister struct {
	procs []processInfo
	err   error
}

func (f *fakeLister) Processes() ([]processInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.procs, nil
}

var errListFailed = errors.New("process list unavailable")

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local)
