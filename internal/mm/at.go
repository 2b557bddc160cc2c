package mm

import (
	"context"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"tracker-service/internal/at"
)

// commandSender is the part of Client used by ATCommander.
type commandSender interface {
	SendCommand(modemPath dbus.ObjectPath, command string, timeout time.Duration) (string, error)
}

// ATCommander runs AT commands through ModemManager's debug Command method.
// ModemManager must run with --debug for the call to be accepted.
type ATCommander struct {
	sender commandSender
	path   dbus.ObjectPath
}

func NewATCommander(c *Client, modemPath dbus.ObjectPath) *ATCommander {
	return &ATCommander{sender: c, path: modemPath}
}

func (a *ATCommander) Command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := a.sender.SendCommand(a.path, cmd, timeout)
	if err != nil {
		return nil, err
	}
	return SplitResponse(cmd, resp)
}

// SplitResponse turns a ModemManager command response into information
// lines, dropping echo and OK.
func SplitResponse(cmd, resp string) ([]string, error) {
	var lines []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || line == "OK" || line == cmd:
		case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"):
			return lines, errors.Wrapf(at.ErrCommandFailed, "%s: %s", cmd, line)
		default:
			lines = append(lines, line)
		}
	}
	return lines, nil
}
