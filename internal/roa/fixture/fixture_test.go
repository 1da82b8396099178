package fixture_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpfix/rtrd/internal/pdu"
	"github.com/bgpfix/rtrd/internal/roa"
	"github.com/bgpfix/rtrd/internal/roa/fixture"
)

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.roa")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"asn": 64512,
		"roas": [
			{"prefix": "192.0.2.0/24", "maxLength": 24},
			{"prefix": "2001:db8::/32"}
		]
	}`), 0o644))

	var dec fixture.Decoder
	payload, err := dec.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(64512), payload.ASN)
	require.Len(t, payload.AFIs, 2)

	assertions, errs := roa.Assertions(payload)
	require.Empty(t, errs)
	require.Len(t, assertions, 2)

	v4, ok := assertions[0].(*pdu.IPv4Prefix)
	require.True(t, ok)
	assert.Equal(t, uint32(0xC0000200), v4.Prefix)
	assert.Equal(t, uint8(24), v4.MaxLen)
}
