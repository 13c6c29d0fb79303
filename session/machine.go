// Package session implements the logger's IRC protocol state machine:
// connection setup, NICK-collision recovery, NOTICE handling, channel
// join, message capture into the spool, and the ping-liveness
// detector.
package session

import (
	"context"
	"strconv"
	"strings"

	"github.com/onnwee/irc-relay/ircmsg"
	"github.com/onnwee/irc-relay/spool"
	"github.com/onnwee/irc-relay/telemetry"
)

// Stage is the closed two-state protocol lifecycle.
type Stage int

const (
	StageSetup Stage = iota
	StageJoined
)

// PingStateKind tags the ping-liveness union.
type PingStateKind int

const (
	// PingNormal means the connection is believed alive; Deadline is the
	// silence deadline past which a PING must be sent.
	PingNormal PingStateKind = iota
	// PingSent means a PING was sent and we're waiting for the server's
	// PONG; Deadline is the give-up deadline.
	PingSent
)

// PingState is the tagged union of the two liveness states:
// Normal{silence_deadline} | Sent{giveup_deadline}.
type PingState struct {
	Kind     PingStateKind
	Deadline uint64
}

// Liveness timing constants.
const (
	MaxSilenceSeconds   = 60
	PongResponseTimeout = 20
)

// Sender is the minimal write side the machine needs to emit outbound
// IRC lines; ircnet.Stream and any io.Writer satisfy it.
type Sender interface {
	Write(p []byte) (int, error)
}

// Machine drives the logger's protocol stages from parsed messages.
// It is not safe for concurrent use.
type Machine struct {
	out    Sender
	spool  *spool.Writer

	Stage         Stage
	UserBase      string
	NickSuffix    uint16
	Channel       string // bare channel name, without the leading '#'
	LoginPassword string

	Ping PingState
}

// NewMachine builds a Machine in StageSetup with a fresh Normal ping
// state anchored at startTime.
func NewMachine(out Sender, writer *spool.Writer, userBase, channel, loginPassword string, startTime uint64) *Machine {
	return &Machine{
		out:           out,
		spool:         writer,
		Stage:         StageSetup,
		UserBase:      userBase,
		Channel:       channel,
		LoginPassword: loginPassword,
		Ping:          PingState{Kind: PingNormal, Deadline: startTime + MaxSilenceSeconds},
	}
}

func (m *Machine) send(line string) error {
	_, err := m.out.Write([]byte(line))
	return err
}

// isToMe reports whether param is the logger's own identity: "*",
// "$$*", or the current user base name.
func (m *Machine) isToMe(param string) bool {
	return param == "*" || param == "$$*" || param == m.UserBase
}

func (m *Machine) joinTarget() string { return "#" + m.Channel }

// OnRead resets the silence deadline on every successful socket read,
// regardless of what the message turned out to be.
func (m *Machine) OnRead(now uint64) {
	m.Ping = PingState{Kind: PingNormal, Deadline: now + MaxSilenceSeconds}
}

// OnTimeout is called when the scheduling helper (fdwait) reports that
// the current ping deadline has elapsed without a read. It sends a
// liveness PING the first time, then gives up with ErrNoPingResponse
// if the server never answers.
func (m *Machine) OnTimeout(now uint64, server string) error {
	switch m.Ping.Kind {
	case PingNormal:
		if err := m.send(ircmsg.FormatPing(server)); err != nil {
			return err
		}
		if telemetry.PingsSent != nil {
			telemetry.PingsSent.Inc()
		}
		m.Ping = PingState{Kind: PingSent, Deadline: now + PongResponseTimeout}
		return nil
	case PingSent:
		return ErrNoPingResponse
	default:
		return nil
	}
}

// Step feeds one parsed message into the state machine, performing
// whatever protocol reaction the message calls for. now is the read
// timestamp, used both to reset the silence deadline and to stamp any
// spool entry this message produces.
func (m *Machine) Step(ctx context.Context, msg ircmsg.Message, now uint64) error {
	m.OnRead(now)

	if msg.Cmd.Kind == ircmsg.CommandNumeric {
		return m.stepNumeric(msg)
	}

	switch msg.Cmd.Name(msg.Raw()) {
	case "NOTICE":
		return m.stepNotice(msg)
	case "PING":
		return m.stepPing(msg)
	case "PONG":
		return nil
	case "JOIN":
		return m.stepJoin(msg)
	case "PRIVMSG":
		return m.stepPrivmsg(msg, now)
	default:
		return nil
	}
}

func (m *Machine) stepNotice(msg ircmsg.Message) error {
	params := msg.Params()
	target, ok := params.Next()
	if !ok || !m.isToMe(target) {
		return nil
	}
	text, ok := params.Next()
	if !ok {
		return nil
	}

	switch {
	case text == "*** No Ident response":
		if err := m.send(ircmsg.FormatNick(m.UserBase)); err != nil {
			return err
		}
		return m.send(ircmsg.FormatUser(m.UserBase, m.UserBase))
	case strings.HasPrefix(text, "You are now identified for "):
		return m.send(ircmsg.FormatJoin(m.joinTarget()))
	case strings.HasPrefix(text, "Invalid password for "):
		return ErrInvalidPassword
	default:
		return nil
	}
}

func (m *Machine) stepPing(msg ircmsg.Message) error {
	p := msg.Params()
	tok, _ := p.Next()
	return m.send(ircmsg.FormatPong(tok))
}

func (m *Machine) stepJoin(msg ircmsg.Message) error {
	p := msg.Params()
	target, ok := p.Next()
	if !ok || target != m.joinTarget() {
		return ErrJoinedWrongChannel
	}
	m.Stage = StageJoined
	if telemetry.SessionStage != nil {
		telemetry.SetSessionStage(true)
	}
	return nil
}

func (m *Machine) stepPrivmsg(msg ircmsg.Message, now uint64) error {
	p := msg.Params()
	target, ok := p.Next()
	if !ok || target != m.joinTarget() {
		return nil
	}
	text, _ := p.Next()

	sender := "???"
	if pfx := msg.Prefix(); pfx != "" {
		sender = pfx
	}

	if _, err := m.spool.Write(spool.Entry{Timestamp: now, Sender: sender, Body: []byte(text)}); err != nil {
		return err
	}
	if telemetry.MessagesSpooled != nil {
		telemetry.MessagesSpooled.Inc()
	}
	return nil
}

func (m *Machine) stepNumeric(msg ircmsg.Message) error {
	switch msg.Cmd.Code {
	case 376: // end of MOTD
		if m.LoginPassword != "" {
			return m.send(ircmsg.FormatPrivmsg("NickServ", "identify "+m.LoginPassword))
		}
		return m.send(ircmsg.FormatJoin(m.joinTarget()))
	case 433: // nick in use
		m.NickSuffix++ // wraps mod 2^16 via uint16 overflow
		if telemetry.NickCollisions != nil {
			telemetry.NickCollisions.Inc()
		}
		nick := m.UserBase + strconv.Itoa(int(m.NickSuffix))
		if err := m.send(ircmsg.FormatNick(nick)); err != nil {
			return err
		}
		return m.send(ircmsg.FormatUser(nick, nick))
	case 477: // cannot join channel
		return ErrCannotJoinChannel
	default:
		return nil
	}
}
