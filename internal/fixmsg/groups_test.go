package fixmsg

import (
	"bytes"
	"testing"

	"github.com/quickfixgo/quickfix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tagNoPartyIDs    quickfix.Tag = 453
	tagPartyID       quickfix.Tag = 448
	tagPartyIDSource quickfix.Tag = 447
	tagPartyRole     quickfix.Tag = 452
)

var partyTemplate = quickfix.GroupTemplate{
	quickfix.GroupElement(tagPartyID),
	quickfix.GroupElement(tagPartyIDSource),
	quickfix.GroupElement(tagPartyRole),
}

// partiesReport returns a parsed TradeCaptureReport(AE) with two parties.
func partiesReport(t *testing.T) *quickfix.Message {
	t.Helper()
	msg := New("AE")
	msg.Header.SetString(quickfix.Tag(8), quickfix.BeginStringFIX44)
	parties := quickfix.NewRepeatingGroup(tagNoPartyIDs, partyTemplate)
	for _, p := range []struct {
		id   string
		role int
	}{{"BANK", 1}, {"DESK", 12}} {
		g := parties.Add()
		g.SetString(tagPartyID, p.id)
		g.SetString(tagPartyIDSource, "D")
		g.SetInt(tagPartyRole, p.role)
	}
	msg.Body.SetGroup(parties)

	parsed := quickfix.NewMessage()
	require.NoError(t, quickfix.ParseMessage(parsed, bytes.NewBuffer(msg.Bytes())))
	return parsed
}

func partyID(t *testing.T, g *quickfix.Group) string {
	t.Helper()
	id, err := g.GetString(tagPartyID)
	require.Nil(t, err)
	return id
}

func hasRole(role int) func(*quickfix.Group) bool {
	return func(g *quickfix.Group) bool {
		v, err := g.GetInt(tagPartyRole)
		return err == nil && v == role
	}
}

func TestGroups(t *testing.T) {
	t.Parallel()

	msg := partiesReport(t)
	groups, err := Groups(&msg.Body, tagNoPartyIDs, partyTemplate)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "BANK", partyID(t, groups[0]))
	assert.Equal(t, "DESK", partyID(t, groups[1]))

	groups, err = Groups(&New("AE").Body, tagNoPartyIDs, partyTemplate)
	assert.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroup(t *testing.T) {
	t.Parallel()

	msg := partiesReport(t)
	g, ok := Group(&msg.Body, tagNoPartyIDs, partyTemplate, 1)
	require.True(t, ok)
	assert.Equal(t, "DESK", partyID(t, g))

	_, ok = Group(&msg.Body, tagNoPartyIDs, partyTemplate, 2)
	assert.False(t, ok)
	_, ok = Group(&msg.Body, tagNoPartyIDs, partyTemplate, -1)
	assert.False(t, ok)
}

func TestHasGroup(t *testing.T) {
	t.Parallel()

	msg := partiesReport(t)
	assert.True(t, HasGroup(&msg.Body, tagNoPartyIDs, partyTemplate, 0, hasRole(1)))
	assert.False(t, HasGroup(&msg.Body, tagNoPartyIDs, partyTemplate, 1, hasRole(1)))
	assert.False(t, HasGroup(&msg.Body, tagNoPartyIDs, partyTemplate, 5, hasRole(1)))
}

func TestHasAnyGroup(t *testing.T) {
	t.Parallel()

	msg := partiesReport(t)
	assert.True(t, HasAnyGroup(&msg.Body, tagNoPartyIDs, partyTemplate, hasRole(12)))
	assert.False(t, HasAnyGroup(&msg.Body, tagNoPartyIDs, partyTemplate, hasRole(99)))
	assert.False(t, HasAnyGroup(&New("AE").Body, tagNoPartyIDs, partyTemplate, hasRole(1)))
}
