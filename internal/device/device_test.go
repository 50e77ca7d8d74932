package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"devactivate/internal/fields"
)

func writeDeviceFile(t *testing.T, props map[string]any) string {
	t.Helper()
	data, err := plist.MarshalIndent(props, plist.XMLFormat, "\t")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "device.plist")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.plist"))
	assert.Error(t, err)
}

func TestValue(t *testing.T) {
	path := writeDeviceFile(t, map[string]any{
		"SerialNumber":         "C8PJ4NKTDTWD",
		"TelephonyCapability":  true,
		"com.apple.mobile/Foo": "bar",
	})
	dev, err := Open(path)
	require.NoError(t, err)

	v, err := dev.Value("", "SerialNumber")
	require.NoError(t, err)
	assert.Equal(t, "C8PJ4NKTDTWD", v)

	v, err = dev.Value("com.apple.mobile", "Foo")
	require.NoError(t, err)
	assert.Equal(t, "bar", v)

	_, err = dev.Value("", "Missing")
	assert.Error(t, err)
}

func TestActivateDeactivateLifecycle(t *testing.T) {
	path := writeDeviceFile(t, map[string]any{"SerialNumber": "X"})
	dev, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, StateUnactivated, dev.ActivationState())

	record := map[string]any{"AccountToken": "token"}
	require.NoError(t, dev.Activate(record))

	// state survives a reopen
	dev, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, StateActivated, dev.ActivationState())
	stored, err := dev.Value("", "ActivationRecord")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"AccountToken": "token"}, stored)
	ack, err := dev.Value("", "ActivationStateAcknowledged")
	require.NoError(t, err)
	assert.Equal(t, true, ack)

	require.NoError(t, dev.Deactivate())
	dev, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, StateUnactivated, dev.ActivationState())
	_, err = dev.Value("", "ActivationRecord")
	assert.Error(t, err)
}

func TestActivate_NilRecord(t *testing.T) {
	path := writeDeviceFile(t, map[string]any{})
	dev, err := Open(path)
	require.NoError(t, err)
	assert.Error(t, dev.Activate(nil))
}

func TestHandshakeBlob(t *testing.T) {
	path := writeDeviceFile(t, map[string]any{
		"DRMHandshakeRequest": map[string]any{"Collection": "blob"},
	})
	dev, err := Open(path)
	require.NoError(t, err)

	blob, ok := dev.HandshakeBlob()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"Collection": "blob"}, blob)

	fs := fields.New()
	fs.Set("HandshakeResponseMessage", map[string]any{"SessionData": "opaque"})
	require.NoError(t, dev.ApplyHandshakeFields(fs))

	dev, err = Open(path)
	require.NoError(t, err)
	v, err := dev.Value("", "DRMSessionInfo")
	require.NoError(t, err)
	session, ok := v.(map[string]any)
	require.True(t, ok)
	_, ok = session["HandshakeResponseMessage"]
	assert.True(t, ok)
}

func TestHandshakeBlob_Absent(t *testing.T) {
	path := writeDeviceFile(t, map[string]any{})
	dev, err := Open(path)
	require.NoError(t, err)
	_, ok := dev.HandshakeBlob()
	assert.False(t, ok)
}
