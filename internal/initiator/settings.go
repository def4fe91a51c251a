package initiator

import (
	"strings"

	"github.com/quickfixgo/quickfix"
)

// Per-session setting keys read when decorating outbound logons.
const (
	SettingUsername    = "Username"
	SettingPassword    = "Password"
	SettingNewPassword = "NewPassword"
)

// Credentials are the logon credentials configured for one session. Empty
// fields are treated as not configured; a non-empty NewPassword triggers
// password rotation attempts.
type Credentials struct {
	Username    string
	Password    string
	NewPassword string
}

// Credentials makes a static value usable as a [SettingsSource] that answers
// the same credentials for every session.
func (c Credentials) Credentials(quickfix.SessionID) Credentials {
	return c
}

// SettingsSource looks up the credentials configured for a session.
type SettingsSource interface {
	Credentials(id quickfix.SessionID) Credentials
}

// EngineSettings reads credentials from QuickFIX/Go session settings. The
// engine has already overlaid the DEFAULT section onto each session.
type EngineSettings struct {
	settings *quickfix.Settings
}

// FromEngineSettings wraps parsed QuickFIX/Go settings.
func FromEngineSettings(settings *quickfix.Settings) EngineSettings {
	return EngineSettings{settings: settings}
}

func (s EngineSettings) Credentials(id quickfix.SessionID) Credentials {
	if s.settings == nil {
		return Credentials{}
	}
	ss, ok := s.settings.SessionSettings()[id]
	if !ok || ss == nil {
		return Credentials{}
	}
	read := func(key string) string {
		if !ss.HasSetting(key) {
			return ""
		}
		v, err := ss.Setting(key)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
	return Credentials{
		Username:    read(SettingUsername),
		Password:    read(SettingPassword),
		NewPassword: read(SettingNewPassword),
	}
}

type overlaySettings struct {
	base     SettingsSource
	override Credentials
}

// WithOverrides returns a source that answers base's credentials with every
// non-empty field of override taking precedence.
func WithOverrides(base SettingsSource, override Credentials) SettingsSource {
	if override == (Credentials{}) {
		return base
	}
	return overlaySettings{base: base, override: override}
}

func (s overlaySettings) Credentials(id quickfix.SessionID) Credentials {
	var c Credentials
	if s.base != nil {
		c = s.base.Credentials(id)
	}
	if s.override.Username != "" {
		c.Username = s.override.Username
	}
	if s.override.Password != "" {
		c.Password = s.override.Password
	}
	if s.override.NewPassword != "" {
		c.NewPassword = s.override.NewPassword
	}
	return c
}
