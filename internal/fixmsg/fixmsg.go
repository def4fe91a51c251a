// Package fixmsg defines the handful of FIX tags and message types the
// initiator reads or writes on the admin channel, plus small helpers over
// QuickFIX/Go messages.
package fixmsg

import (
	"github.com/quickfixgo/quickfix"
)

// Tags read or written by the initiator.
const (
	TagSenderCompID  quickfix.Tag = 49
	TagTargetCompID  quickfix.Tag = 56
	TagMsgType       quickfix.Tag = 35
	TagText          quickfix.Tag = 58
	TagUsername      quickfix.Tag = 553
	TagPassword      quickfix.Tag = 554
	TagNewPassword   quickfix.Tag = 925
	TagSessionStatus quickfix.Tag = 1409
)

// Message types (tag 35) of the admin messages the initiator inspects.
const (
	MsgTypeHeartbeat = "0"
	MsgTypeLogout    = "5"
	MsgTypeLogon     = "A"
)

// SessionStatusPasswordChanged is the SessionStatus(1409) value a counterparty
// sends on Logon once the NewPassword(925) request has been applied.
const SessionStatusPasswordChanged = 1

// InvalidCredentialsText is the Logout(5) Text(58) the engine emits when a
// logon is rejected for bad credentials.
const InvalidCredentialsText = "Rejected Logon Attempt: Invalid Username/Password"

// MsgType returns the message type of msg, or "" when it is missing.
func MsgType(msg *quickfix.Message) string {
	if msg == nil {
		return ""
	}
	t, err := msg.MsgType()
	if err != nil {
		return ""
	}
	return t
}

// IsOfType reports whether msg carries the given message type.
func IsOfType(msg *quickfix.Message, msgType string) bool {
	return msg != nil && msg.IsMsgTypeOf(msgType)
}

// IsOfTypeAs reports whether msg carries msgType and, if so, returns its typed
// view produced by decode.
func IsOfTypeAs[T any](msg *quickfix.Message, msgType string, decode func(*quickfix.Message) T) (T, bool) {
	var zero T
	if !IsOfType(msg, msgType) {
		return zero, false
	}
	return decode(msg), true
}

// IsPasswordChangedLogon reports whether a Logon reply confirms that the
// requested password change took effect.
func IsPasswordChangedLogon(logon *quickfix.Message) bool {
	if logon == nil || !logon.Body.Has(TagSessionStatus) {
		return false
	}
	status, err := logon.Body.GetInt(TagSessionStatus)
	if err != nil {
		return false
	}
	return status == SessionStatusPasswordChanged
}

// IsInvalidPasswordLogout reports whether a Logout carries the engine's
// canonical invalid-credentials rejection text. The comparison is exact.
func IsInvalidPasswordLogout(logout *quickfix.Message) bool {
	if logout == nil || !logout.Body.Has(TagText) {
		return false
	}
	text, err := logout.Body.GetString(TagText)
	if err != nil {
		return false
	}
	return text == InvalidCredentialsText
}

// Text returns the Text(58) field of msg, or "" when absent.
func Text(msg *quickfix.Message) string {
	if msg == nil || !msg.Body.Has(TagText) {
		return ""
	}
	text, err := msg.Body.GetString(TagText)
	if err != nil {
		return ""
	}
	return text
}

// SessionKey returns a "SENDER->TARGET" label built from the header comp IDs.
func SessionKey(msg *quickfix.Message) string {
	if msg == nil {
		return ""
	}
	sender, _ := msg.Header.GetString(TagSenderCompID)
	target, _ := msg.Header.GetString(TagTargetCompID)
	if sender == "" && target == "" {
		return ""
	}
	return sender + "->" + target
}

// New returns an empty message with only its type set.
func New(msgType string) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.SetString(TagMsgType, msgType)
	return msg
}

// NewLogout builds a Logout(5) admin message with an optional reason.
func NewLogout(text string) *quickfix.Message {
	msg := New(MsgTypeLogout)
	if text != "" {
		msg.Body.SetString(TagText, text)
	}
	return msg
}
