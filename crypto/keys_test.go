package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	raw[19] = 0x42
	addr := NewAddress(AssetPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.True(t, addr.Equal(decoded))
	require.Equal(t, AssetPrefix, decoded.Prefix())
}

func TestAddressTextEncoding(t *testing.T) {
	addr := DeriveAddress(AccountPrefix, "alice")
	encoded, err := json.Marshal(struct {
		Owner Address `json:"owner"`
	}{Owner: addr})
	require.NoError(t, err)

	var out struct {
		Owner Address `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(encoded, &out))
	require.True(t, addr.Equal(out.Owner))
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	a := DeriveAddress(AccountPrefix, "stablecoin/custody")
	b := DeriveAddress(AccountPrefix, " stablecoin/custody ")
	require.True(t, a.Equal(b))
	require.False(t, a.IsZero())
	require.False(t, a.Equal(DeriveAddress(AccountPrefix, "other")))
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.Error(t, err)
}

func TestGeneratedKeyAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address()
	require.Equal(t, AccountPrefix, addr.Prefix())
	require.Len(t, addr.Bytes(), AddressLength)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "operator.keystore")

	require.NoError(t, SaveToKeystoreWithKDF(path, key, "pass", LightKDF))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "pass")
	require.NoError(t, err)
	require.True(t, key.PubKey().Address().Equal(loaded.PubKey().Address()))

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
	require.Error(t, SaveToKeystoreWithKDF(path, nil, "pass", LightKDF))
}
