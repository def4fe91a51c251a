package initiator

import (
	"strings"
	"testing"

	"github.com/quickfixgo/quickfix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineSettingsINI = `
[DEFAULT]
SocketConnectHost=127.0.0.1
SocketConnectPort=9876
HeartBtInt=30
Username=desk

[SESSION]
BeginString=FIX.4.4
SenderCompID=CLIENT
TargetCompID=BROKER
Password=old-secret
NewPassword=new-secret
`

func TestEngineSettingsCredentials(t *testing.T) {
	t.Parallel()

	settings, err := quickfix.ParseSettings(strings.NewReader(engineSettingsINI))
	require.NoError(t, err)

	src := FromEngineSettings(settings)
	got := src.Credentials(testSessionID)
	assert.Equal(t, Credentials{Username: "desk", Password: "old-secret", NewPassword: "new-secret"}, got)

	other := quickfix.SessionID{BeginString: "FIX.4.4", SenderCompID: "X", TargetCompID: "Y"}
	assert.Equal(t, Credentials{}, src.Credentials(other))
	assert.Equal(t, Credentials{}, FromEngineSettings(nil).Credentials(testSessionID))
}

func TestWithOverrides(t *testing.T) {
	t.Parallel()

	base := Credentials{Username: "desk", Password: "from-file"}
	src := WithOverrides(base, Credentials{Password: "from-env", NewPassword: "rotated"})
	assert.Equal(t, Credentials{Username: "desk", Password: "from-env", NewPassword: "rotated"}, src.Credentials(testSessionID))

	assert.Equal(t, base, WithOverrides(base, Credentials{}))
	assert.Equal(t, Credentials{Password: "p"}, WithOverrides(nil, Credentials{Password: "p"}).Credentials(testSessionID))
}
