package command

import (
	"strings"
)

// Marker prefixes an inbound MQTT message notification from the modem.
const Marker = "+SMSUB:"

// Message is a recognised inbound command.
type Message int

const (
	Unknown Message = iota
	Connect
	Poll
)

func (m Message) String() string {
	switch m {
	case Connect:
		return "connect"
	case Poll:
		return "poll"
	default:
		return "unknown"
	}
}

// Command is a decoded inbound message.
type Command struct {
	Topic   string
	Message Message
	// Raw is the message text as received.
	Raw string
}

// ParseMessage maps a message body to a Message using an exact match.
func ParseMessage(s string) Message {
	switch s {
	case "connect":
		return Connect
	case "poll":
		return Poll
	default:
		return Unknown
	}
}

// FromMessage builds a command from a topic and payload delivered natively
// by an MQTT client.
func FromMessage(topic string, payload []byte) Command {
	raw := string(payload)
	return Command{Topic: topic, Message: ParseMessage(raw), Raw: raw}
}

// IsNotification reports whether line carries an inbound message notification.
func IsNotification(line string) bool {
	return strings.Contains(line, Marker)
}

// Parse decodes a line such as `+SMSUB: "command","poll"`. It returns false
// when the marker is missing or the quoting is incomplete.
func Parse(line string) (Command, bool) {
	idx := strings.Index(line, Marker)
	if idx < 0 {
		return Command{}, false
	}
	rest := line[idx+len(Marker):]

	topic, rest, ok := quoted(rest)
	if !ok {
		return Command{}, false
	}
	msg, _, ok := quoted(rest)
	if !ok {
		return Command{}, false
	}

	return Command{Topic: topic, Message: ParseMessage(msg), Raw: msg}, true
}

// quoted returns the first double-quoted string in s and the remainder after
// its closing quote.
func quoted(s string) (string, string, bool) {
	open := strings.IndexByte(s, '"')
	if open < 0 {
		return "", "", false
	}
	s = s[open+1:]
	end := strings.IndexByte(s, '"')
	if end < 0 {
		return "", "", false
	}
	return s[:end], s[end+1:], true
}
