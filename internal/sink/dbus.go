package sink

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/godbus/dbus/v5"
	"notifyrelay/internal/notify"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = "org.freedesktop.Notifications.Notify"
)

// notifyCaller is the part of dbus.BusObject the sink needs.
type notifyCaller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus talks to the freedesktop notification daemon on the session bus.
// The bus connection is opened on first use so a relay without a desktop
// session still starts.
type DBus struct {
	appName string

	mu      sync.Mutex
	connect func() (notifyCaller, error)
	obj     notifyCaller
}

func NewDBus(appName string) *DBus {
	if appName == "" {
		appName = "notifyrelay"
	}
	return &DBus{
		appName: appName,
		connect: func() (notifyCaller, error) {
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return nil, err
			}
			return conn.Object(notificationsDest, notificationsPath), nil
		},
	}
}

func (d *DBus) Name() string { return "dbus" }

func (d *DBus) object() (notifyCaller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.obj != nil {
		return d.obj, nil
	}
	obj, err := d.connect()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	d.obj = obj
	return obj, nil
}

func (d *DBus) Deliver(ctx context.Context, n notify.Notification) error {
	obj, err := d.object()
	if err != nil {
		return err
	}
	call := obj.CallWithContext(ctx, notificationsNotify, 0, notifyArgs(d.appName, n)...)
	if call.Err != nil {
		// Drop the cached object; the daemon may have restarted.
		d.mu.Lock()
		d.obj = nil
		d.mu.Unlock()
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// notifyArgs builds the Notify(app_name, replaces_id, app_icon, summary,
// body, actions, hints, expire_timeout) argument list.
func notifyArgs(appName string, n notify.Notification) []interface{} {
	body := n.Message
	if n.Subtitle != "" {
		body = n.Subtitle + "\n" + n.Message
	}

	actions := make([]string, 0, 2*len(n.Actions))
	for i, a := range n.Actions {
		actions = append(actions, "action-"+strconv.Itoa(i), a)
	}
	if n.Open != "" {
		actions = append(actions, "default", "Open")
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(urgencyFor(n.Category))),
	}
	if n.Sound != "" && n.Sound != "none" && n.Sound != "default" {
		hints["sound-name"] = dbus.MakeVariant(n.Sound)
	}
	if n.ContentImage != "" {
		hints["image-path"] = dbus.MakeVariant(n.ContentImage)
	}
	if n.Wait {
		hints["resident"] = dbus.MakeVariant(true)
	}

	timeout := expireMillis(n.Timeout)
	return []interface{}{
		appName,
		uint32(0),
		localPath(n.Icon),
		n.Title,
		body,
		actions,
		hints,
		timeout,
	}
}

// expireMillis converts a timeout in seconds to the int32 milliseconds
// notification servers expect, saturating instead of wrapping.
func expireMillis(seconds int) int32 {
	if seconds <= 0 {
		return 0
	}
	if seconds > math.MaxInt32/1000 {
		return math.MaxInt32
	}
	return int32(seconds * 1000)
}
