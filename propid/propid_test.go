package propid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldRoundTrip(t *testing.T) {
	prop := P1Sys | P2Storage | P3Info | P4Count
	assert.Equal(t, uint8(2), Field(prop, P1))
	assert.Equal(t, uint8(4), Field(prop, P2))
	assert.Equal(t, uint8(1), Field(prop, P3))
	assert.Equal(t, uint8(4), Field(prop, P4))
}

func TestIDRoundTrip(t *testing.T) {
	prop := P1Sys | P2Storage | P3Info | P4Count
	id := ID(prop)
	parsed, err := ParseID(id)
	require.NoError(t, err)
	assert.Equal(t, prop, parsed)
}

func TestParseIDRejectsMalformed(t *testing.T) {
	_, err := ParseID("P0102")
	assert.Error(t, err)
	_, err = ParseID("X01020304")
	assert.Error(t, err)
}

func TestGetNameAndParseName(t *testing.T) {
	reg := NewRegistry()
	prop := P1Sys | P2Storage | P3Info | P4Count

	name := reg.GetName(prop)
	assert.Equal(t, "SYS.STORAGE.INFO.COUNT", name)

	parsed, err := reg.ParseName(name)
	require.NoError(t, err)
	assert.Equal(t, prop, parsed)
}

func TestGetNameArrayField(t *testing.T) {
	reg := NewRegistry()
	prop := P1Hw | P1Arr(3) | P3Info | P4Value

	name := reg.GetName(prop)
	assert.Equal(t, "HW[3].INFO.VALUE", name)

	parsed, err := reg.ParseName(name)
	require.NoError(t, err)
	assert.Equal(t, prop, parsed)
}

func TestGetNameUnknownField(t *testing.T) {
	reg := NewRegistry()
	prop := P1Sys | uint32(99)<<ShiftP2 | P3Info | P4Count

	name := reg.GetName(prop)
	assert.Equal(t, "SYS.<99>.INFO.COUNT", name)
}

func TestMatchWithWildcard(t *testing.T) {
	base := P1Sys | P2Storage | P3Info
	masked := base | 0xFF // P4 is a wildcard
	assert.True(t, Match(base|P4Count, masked))
	assert.True(t, Match(base|P4Max, masked))
	assert.False(t, Match(P1Sys|P2Hw|P3Info|P4Count, masked))
}

func TestIsValidRejectsReservedValues(t *testing.T) {
	assert.False(t, IsValid(0, false))
	assert.True(t, IsValid(P1Sys|P2Storage|P3Info|P4Count, false))
	assert.False(t, IsValid(P1Sys|P2Storage|P3Info|0xFF, false))
	assert.True(t, IsValid(P1Sys|P2Storage|P3Info|0xFF, true))
}

func TestNewGlobalIDIsMonotonicAndStamped(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewGlobalID()
	b := reg.NewGlobalID()

	assert.Equal(t, P1Aux24, a&P1Aux24)
	assert.NotEqual(t, a, b)
	assert.Less(t, Aux24Value(a), Aux24Value(b))
}

func TestCustomNamespaceShadowsGlobal(t *testing.T) {
	reg := NewRegistry()
	reg.AddNamespace(&Namespace{
		Prefix: P1App,
		Mask:   FieldMask(P1),
		Defs: []FieldDef{
			{P2, 1, "GUI"},
		},
	})

	prop := P1App | uint32(1)<<ShiftP2 | P3Info | P4Count
	name := reg.GetName(prop)
	assert.Equal(t, "APP.GUI.INFO.COUNT", name)
}
