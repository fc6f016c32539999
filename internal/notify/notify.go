// Package notify raises a desktop notification over the D-Bus session bus.
// The launcher wraps a graphical program, so when every backend fails there
// may be no terminal anyone is watching.
package notify

import (
	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.freedesktop.Notifications"
	objectPath    = "/org/freedesktop/Notifications"
	notifyMethod  = "org.freedesktop.Notifications.Notify"
	expireDefault = int32(-1)
)

// Desktop sends a transient notification. Errors are advisory: a missing
// session bus or notification daemon must not change the launcher's outcome.
func Desktop(summary, body string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}

	obj := conn.Object(busName, dbus.ObjectPath(objectPath))
	call := obj.Call(notifyMethod, 0,
		"glaunch",                 // app_name
		uint32(0),                 // replaces_id
		"dialog-error",            // app_icon
		summary,                   // summary
		body,                      // body
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		expireDefault,             // expire_timeout
	)
	return call.Err
}
