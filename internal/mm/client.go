package mm

import (
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	ModemManagerService = "org.freedesktop.ModemManager1"
	ModemManagerPath    = "/org/freedesktop/ModemManager1"

	ModemInterface         = "org.freedesktop.ModemManager1.Modem"
	ModemLocationInterface = "org.freedesktop.ModemManager1.Modem.Location"

	DBusPropertiesInterface = "org.freedesktop.DBus.Properties"
	DBusObjectManager       = "org.freedesktop.DBus.ObjectManager"
)

// Client is a D-Bus client for ModemManager
type Client struct {
	conn   *dbus.Conn
	debug  bool
	logger func(string, ...interface{})
}

// NewClient creates a new ModemManager D-Bus client
func NewClient(debug bool, logger func(string, ...interface{})) (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to system bus")
	}

	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	return &Client{
		conn:   conn,
		debug:  debug,
		logger: logger,
	}, nil
}

// Close closes the D-Bus connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// FindModem finds the first available modem
func (c *Client) FindModem() (dbus.ObjectPath, error) {
	obj := c.conn.Object(ModemManagerService, ModemManagerPath)

	var managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := obj.Call(DBusObjectManager+".GetManagedObjects", 0).Store(&managedObjects)
	if err != nil {
		return "", errors.Wrap(err, "failed to get managed objects")
	}

	for path, interfaces := range managedObjects {
		if _, hasModem := interfaces[ModemInterface]; hasModem {
			return path, nil
		}
	}

	return "", errors.New("no modem found")
}

// GetProperty gets a property from the modem
func (c *Client) GetProperty(modemPath dbus.ObjectPath, iface, property string) (dbus.Variant, error) {
	obj := c.conn.Object(ModemManagerService, modemPath)

	var value dbus.Variant
	err := obj.Call(DBusPropertiesInterface+".Get", 0, iface, property).Store(&value)
	if err != nil {
		return value, errors.Wrapf(err, "failed to get property %s.%s", iface, property)
	}

	c.log("Get %s.%s = %v", iface, property, value.Value())
	return value, nil
}

// State returns the MMModemState of the modem
func (c *Client) State(modemPath dbus.ObjectPath) (int32, error) {
	variant, err := c.GetProperty(modemPath, ModemInterface, "State")
	if err != nil {
		return MMModemStateUnknown, err
	}
	state, ok := variant.Value().(int32)
	if !ok {
		return MMModemStateUnknown, errors.New("invalid state type")
	}
	return state, nil
}

// SendCommand sends an AT command to the modem
func (c *Client) SendCommand(modemPath dbus.ObjectPath, command string, timeout time.Duration) (string, error) {
	obj := c.conn.Object(ModemManagerService, modemPath)

	timeoutSec := uint32(timeout.Seconds())
	if timeoutSec == 0 {
		timeoutSec = 120
	}

	c.log(">> %s (timeout: %ds)", command, timeoutSec)

	var response string
	err := obj.Call(ModemInterface+".Command", 0, command, timeoutSec).Store(&response)
	if err != nil {
		return "", errors.Wrapf(err, "AT command failed: %s", command)
	}

	c.log("<< %s", strings.TrimSpace(response))
	return response, nil
}

// CallMethod calls a method on the modem
func (c *Client) CallMethod(modemPath dbus.ObjectPath, iface, method string, args ...interface{}) *dbus.Call {
	obj := c.conn.Object(ModemManagerService, modemPath)
	fullMethod := iface + "." + method
	c.log("Call %s(%v)", fullMethod, args)
	return obj.Call(fullMethod, 0, args...)
}

// SetupLocation configures location services
func (c *Client) SetupLocation(modemPath dbus.ObjectPath, sources uint32, signalLocation bool) error {
	call := c.CallMethod(modemPath, ModemLocationInterface, "Setup", sources, signalLocation)
	return call.Err
}

// EnableUnmanagedGPS hands the GNSS NMEA port to gpsd.
func (c *Client) EnableUnmanagedGPS(modemPath dbus.ObjectPath) error {
	sources := MMModemLocationSource3gppLacCi | MMModemLocationSourceGpsUnmanaged
	if err := c.SetupLocation(modemPath, sources, false); err != nil {
		return errors.Wrap(err, "failed to setup location sources")
	}
	return nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		c.logger("[MM] "+format, args...)
	}
}
