package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JesseDarr/odrive-can-tools/protocol"
)

const registryDoc = `{
  "endpoints": {
    "vbus_voltage":                 {"id": 1,   "type": "float"},
    "axis0.current_state":          {"id": 140, "type": "uint32"},
    "axis0.config.can.node_id":     {"id": 250, "type": "uint32"},
    "config.brake_resistor0.enable":{"id": 21,  "type": "bool"},
    "serial_number":                {"id": 4,   "type": "uint64"},
    "save_configuration":           {"id": 500, "type": "uint32"}
  }
}`

func TestParseRegistry(t *testing.T) {
	reg, err := Parse([]byte(registryDoc))
	require.NoError(t, err)
	assert.Equal(t, 6, reg.Len())

	ep, err := reg.Lookup("axis0.current_state")
	require.NoError(t, err)
	assert.Equal(t, uint16(140), ep.ID)
	assert.Equal(t, protocol.TypeUint32, ep.Type)

	assert.True(t, reg.Has(SavePath))
}

func TestParseRegistryUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"endpoints": {"x": {"id": 1, "type": "complex128"}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestParseRegistryEmpty(t *testing.T) {
	_, err := Parse([]byte(`{"endpoints": {}}`))
	assert.Error(t, err)
}

func TestLookupUnknownPath(t *testing.T) {
	reg, err := Parse([]byte(registryDoc))
	require.NoError(t, err)

	_, err = reg.Lookup("axis0.does_not_exist")
	assert.ErrorIs(t, err, ErrUnknownPath)
}

const profilesDoc = `
"8308":
  settings:
    - {path: axis0.current_state, value: 1}
    - {path: axis0.config.motor.torque_constant, value: 0.92}
    - {path: config.brake_resistor0.enable, value: true}
"GB36":
  settings:
    - {path: axis0.config.motor.pole_pairs, value: 7}
`

func TestParseProfiles(t *testing.T) {
	profiles, err := ParseProfiles([]byte(profilesDoc))
	require.NoError(t, err)

	profile, err := profiles.Get("8308")
	require.NoError(t, err)
	require.Len(t, profile.Settings, 3)

	// Order is application order.
	assert.Equal(t, "axis0.current_state", profile.Settings[0].Path)
	assert.Equal(t, 1, profile.Settings[0].Value)
	assert.Equal(t, 0.92, profile.Settings[1].Value)
	assert.Equal(t, true, profile.Settings[2].Value)

	_, err = profiles.Get("9999")
	assert.Error(t, err)
}

func TestParseProfilesValidation(t *testing.T) {
	_, err := ParseProfiles([]byte(`"8308": {settings: []}`))
	assert.Error(t, err)

	_, err = ParseProfiles([]byte(`"8308": {settings: [{value: 1}]}`))
	assert.Error(t, err)

	_, err = ParseProfiles([]byte(`"8308": {settings: [{path: a.b}]}`))
	assert.Error(t, err)
}
