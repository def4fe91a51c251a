package initiator

import (
	"sync"

	"github.com/quickfixgo/quickfix"

	"github.com/koltyakov/fixinit/internal/fixmsg"
)

// RotationState names the stage of an in-band password rotation.
type RotationState int

const (
	RotationIdle RotationState = iota
	RotationRequested
	RotationConfirmed
	RotationRejectedInvalidOld
	RotationOutcomeUnknown
)

func (s RotationState) String() string {
	switch s {
	case RotationIdle:
		return "idle"
	case RotationRequested:
		return "requested"
	case RotationConfirmed:
		return "confirmed"
	case RotationRejectedInvalidOld:
		return "rejected_invalid_old"
	case RotationOutcomeUnknown:
		return "outcome_unknown"
	default:
		return "unknown"
	}
}

// CredentialState is a snapshot of the rotation flags of one client.
type CredentialState struct {
	RotationAttempted   bool
	UseRotatedAsPrimary bool
}

// logonDecoration describes what prepareLogon wrote into an outbound logon.
type logonDecoration struct {
	usedRotated       bool
	requestedRotation bool
}

// credentialTracker owns the rotation flags. It is driven from the engine's
// callback goroutine; the mutex only makes snapshots safe to read elsewhere.
type credentialTracker struct {
	mu         sync.Mutex
	attempted  bool
	useRotated bool
}

func (t *credentialTracker) snapshot() CredentialState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return CredentialState{RotationAttempted: t.attempted, UseRotatedAsPrimary: t.useRotated}
}

// prepareLogon writes credentials into an outbound Logon(A).
//
// Once the rotated password is sticky it replaces the primary password and no
// rotation is requested again. Otherwise a configured NewPassword is sent
// alongside the old password unless a previous request is still unanswered,
// in which case this logon goes out without it and the next one retries.
func (t *credentialTracker) prepareLogon(logon *quickfix.Message, creds Credentials) logonDecoration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var d logonDecoration
	if creds.Username != "" {
		logon.Body.SetString(fixmsg.TagUsername, creds.Username)
	}
	if creds.Password != "" && !t.useRotated {
		logon.Body.SetString(fixmsg.TagPassword, creds.Password)
	}

	attempted := false
	if creds.NewPassword != "" {
		switch {
		case t.useRotated:
			logon.Body.SetString(fixmsg.TagPassword, creds.NewPassword)
			d.usedRotated = true
		case !t.attempted:
			logon.Body.SetString(fixmsg.TagNewPassword, creds.NewPassword)
			attempted = true
			d.requestedRotation = true
		}
	}
	t.attempted = attempted
	return d
}

// observeReply advances the rotation on an inbound admin message and returns
// the resulting stage. Unrecognised replies leave the state unchanged.
func (t *credentialTracker) observeReply(msg *quickfix.Message) RotationState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.attempted {
		return RotationIdle
	}
	switch {
	case fixmsg.IsOfType(msg, fixmsg.MsgTypeLogon):
		if fixmsg.IsPasswordChangedLogon(msg) {
			t.attempted = false
			t.useRotated = true
			return RotationConfirmed
		}
	case fixmsg.IsOfType(msg, fixmsg.MsgTypeLogout):
		if fixmsg.IsInvalidPasswordLogout(msg) {
			// The old password is rejected: assume the rotation already
			// happened and the configuration was not updated yet.
			t.attempted = false
			t.useRotated = true
			return RotationRejectedInvalidOld
		}
		t.attempted = false
		return RotationOutcomeUnknown
	}
	return RotationRequested
}
