//go:build linux

package wakelock

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	screenSaverDest = "org.freedesktop.ScreenSaver"
	screenSaverPath = "/org/freedesktop/ScreenSaver"
)

// dbusLocker inhibits the desktop screensaver over the session bus.
type dbusLocker struct {
	conn   *dbus.Conn
	cookie uint32
	active bool
}

func newPlatformLocker() Locker {
	return &dbusLocker{}
}

func (l *dbusLocker) Acquire(reason string) error {
	if l.active {
		return nil
	}
	if l.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return fmt.Errorf("session bus: %w", err)
		}
		l.conn = conn
	}
	obj := l.conn.Object(screenSaverDest, dbus.ObjectPath(screenSaverPath))
	var cookie uint32
	call := obj.Call(screenSaverDest+".Inhibit", 0, "audioguia", reason)
	if call.Err != nil {
		return fmt.Errorf("inhibit: %w", call.Err)
	}
	if err := call.Store(&cookie); err != nil {
		return fmt.Errorf("inhibit cookie: %w", err)
	}
	l.cookie = cookie
	l.active = true
	return nil
}

func (l *dbusLocker) Release() error {
	if !l.active || l.conn == nil {
		return nil
	}
	obj := l.conn.Object(screenSaverDest, dbus.ObjectPath(screenSaverPath))
	if call := obj.Call(screenSaverDest+".UnInhibit", 0, l.cookie); call.Err != nil {
		return fmt.Errorf("uninhibit: %w", call.Err)
	}
	l.active = false
	l.cookie = 0
	return nil
}
