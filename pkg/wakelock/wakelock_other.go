//go:build !linux

package wakelock

type noopLocker struct{}

func newPlatformLocker() Locker {
	return noopLocker{}
}

func (noopLocker) Acquire(string) error { return ErrUnsupported }
func (noopLocker) Release() error       { return nil }
