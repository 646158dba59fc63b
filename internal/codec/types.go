package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calebreyn/pulsegate/internal/snowflake"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
)

// UnknownEventError is returned by strict-mode decoding when a
// Dispatch frame carries an unrecognized event name.
type UnknownEventError struct {
	Name string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unsupported event %q", e.Name)
}

// Opcode discriminates protocol envelopes. The set is closed; any
// other value on the wire is a malformed frame.
type Opcode int

const (
	OpDispatch       Opcode = 0
	OpHeartbeat      Opcode = 1
	OpIdentify       Opcode = 2
	OpResume         Opcode = 6
	OpReconnect      Opcode = 7
	OpInvalidSession Opcode = 9
	OpHello          Opcode = 10
	OpHeartbeatAck   Opcode = 11
)

var opcodeNames = map[Opcode]string{
	OpDispatch:       "dispatch",
	OpHeartbeat:      "heartbeat",
	OpIdentify:       "identify",
	OpResume:         "resume",
	OpReconnect:      "reconnect",
	OpInvalidSession: "invalid_session",
	OpHello:          "hello",
	OpHeartbeatAck:   "heartbeat_ack",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", int(op))
}

// Valid reports whether the opcode is part of the closed set.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// Event is a decoded protocol frame. Immutable once constructed; it
// flows one way from the codec to the dispatcher.
type Event struct {
	Op      Opcode
	Name    string // Event name tag (Dispatch only)
	Seq     int64  // Sequence number (valid only when HasSeq)
	HasSeq  bool
	Payload json.RawMessage
	Unknown bool // Dispatch with an unrecognized name (lenient mode)
}

// envelope is the wire format: {"op": .., "d": .., "s": .., "t": ..}.
type envelope struct {
	Op   *int            `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

// Dispatch event names recognized by this client. Names outside this
// set decode as unknown events.
const (
	EventReady             = "READY"
	EventResumed           = "RESUMED"
	EventMessageCreate     = "MESSAGE_CREATE"
	EventMessageUpdate     = "MESSAGE_UPDATE"
	EventMessageDelete     = "MESSAGE_DELETE"
	EventGuildCreate       = "GUILD_CREATE"
	EventGuildUpdate       = "GUILD_UPDATE"
	EventGuildDelete       = "GUILD_DELETE"
	EventGuildMemberAdd    = "GUILD_MEMBER_ADD"
	EventGuildMemberRemove = "GUILD_MEMBER_REMOVE"
	EventChannelCreate     = "CHANNEL_CREATE"
	EventChannelUpdate     = "CHANNEL_UPDATE"
	EventChannelDelete     = "CHANNEL_DELETE"
	EventPresenceUpdate    = "PRESENCE_UPDATE"
	EventTypingStart       = "TYPING_START"
)

var knownEvents = map[string]struct{}{
	EventReady:             {},
	EventResumed:           {},
	EventMessageCreate:     {},
	EventMessageUpdate:     {},
	EventMessageDelete:     {},
	EventGuildCreate:       {},
	EventGuildUpdate:       {},
	EventGuildDelete:       {},
	EventGuildMemberAdd:    {},
	EventGuildMemberRemove: {},
	EventChannelCreate:     {},
	EventChannelUpdate:     {},
	EventChannelDelete:     {},
	EventPresenceUpdate:    {},
	EventTypingStart:       {},
}

// KnownEvent reports whether the event name is part of the
// recognized set.
func KnownEvent(name string) bool {
	_, ok := knownEvents[name]
	return ok
}

// Hello is the payload of the first frame the server sends after the
// transport is established.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// Ready is the payload of the READY dispatch that completes a fresh
// handshake. The session identifier it carries is required for
// resuming later.
type Ready struct {
	Version   int         `json:"v"`
	SessionID string      `json:"session_id"`
	User      User        `json:"user"`
	Shard     [2]int      `json:"shard,omitempty"`
	Guilds    []GuildStub `json:"guilds,omitempty"`
}

// User is the connected account, as reported by READY.
type User struct {
	ID       snowflake.ID `json:"id"`
	Username string       `json:"username"`
	Bot      bool         `json:"bot,omitempty"`
}

// GuildStub is the unavailable-guild form sent in READY.
type GuildStub struct {
	ID          snowflake.ID `json:"id"`
	Unavailable bool         `json:"unavailable,omitempty"`
}

// InvalidSession's payload is a bare boolean: whether the session is
// still resumable.
type InvalidSession bool

// Identify starts a brand-new session.
type Identify struct {
	Token      string            `json:"token"`
	Properties map[string]string `json:"properties"`
	Compress   bool              `json:"compress"`
	Shard      [2]int            `json:"shard"`
	Intents    int               `json:"intents,omitempty"`
}

// Resume reattaches to a prior session at the last-seen sequence.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Message is the payload of MESSAGE_* dispatches, reduced to the
// fields handlers commonly need.
type Message struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
	GuildID   snowflake.ID `json:"guild_id,omitempty"`
	Author    User         `json:"author"`
	Content   string       `json:"content"`
}
