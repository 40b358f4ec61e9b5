package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dscengine/crypto"
	"dscengine/storage"
)

func setupLedger(t *testing.T) (*Ledger, crypto.Address, crypto.Address) {
	t.Helper()
	ledger := NewLedger(storage.NewMemDB())
	asset := crypto.DeriveAddress(crypto.AssetPrefix, "weth")
	minter := crypto.DeriveAddress(crypto.AccountPrefix, "minter")
	require.NoError(t, ledger.RegisterToken(asset, "weth", "Wrapped Ether", 18))
	require.NoError(t, ledger.SetMintAuthority(asset, minter))
	return ledger, asset, minter
}

func TestRegisterToken(t *testing.T) {
	ledger, asset, _ := setupLedger(t)

	meta, err := ledger.Token(asset)
	require.NoError(t, err)
	require.Equal(t, "WETH", meta.Symbol)
	require.Equal(t, uint8(18), meta.Decimals)

	require.ErrorIs(t, ledger.RegisterToken(asset, "WETH", "dup", 18), ErrTokenExists)
	require.Error(t, ledger.RegisterToken(crypto.DeriveAddress(crypto.AssetPrefix, "x"), " ", "x", 18))

	list, err := ledger.TokenList()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Equal(asset))

	_, err = ledger.Token(crypto.DeriveAddress(crypto.AssetPrefix, "missing"))
	require.ErrorIs(t, err, ErrTokenNotRegistered)
}

func TestMintAndBurnRequireAuthority(t *testing.T) {
	ledger, asset, minter := setupLedger(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")

	require.ErrorIs(t, ledger.Mint(asset, alice, alice, big.NewInt(5)), ErrUnauthorizedMinter)
	require.NoError(t, ledger.Mint(asset, minter, alice, big.NewInt(5)))

	balance, err := ledger.Balance(asset, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), balance)
	supply, err := ledger.TotalSupply(asset)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), supply)

	require.ErrorIs(t, ledger.Burn(asset, alice, alice, big.NewInt(1)), ErrUnauthorizedMinter)
	require.ErrorIs(t, ledger.Burn(asset, minter, alice, big.NewInt(6)), ErrInsufficientBalance)
	require.NoError(t, ledger.Burn(asset, minter, alice, big.NewInt(5)))
	supply, err = ledger.TotalSupply(asset)
	require.NoError(t, err)
	require.Zero(t, supply.Sign())

	require.NoError(t, ledger.SetMintPaused(asset, true))
	require.ErrorIs(t, ledger.Mint(asset, minter, alice, big.NewInt(1)), ErrMintPaused)
	require.ErrorIs(t, ledger.Mint(asset, minter, alice, big.NewInt(0)), ErrInvalidAmount)
}

func TestTransferAndAllowance(t *testing.T) {
	ledger, asset, minter := setupLedger(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	require.NoError(t, ledger.Mint(asset, minter, alice, big.NewInt(100)))

	require.NoError(t, ledger.Transfer(asset, alice, bob, big.NewInt(30)))
	require.ErrorIs(t, ledger.Transfer(asset, alice, bob, big.NewInt(71)), ErrInsufficientBalance)

	require.ErrorIs(t, ledger.TransferFrom(asset, bob, alice, bob, big.NewInt(10)), ErrInsufficientAllowance)
	require.NoError(t, ledger.Approve(asset, alice, bob, big.NewInt(20)))
	require.NoError(t, ledger.TransferFrom(asset, bob, alice, bob, big.NewInt(15)))

	allowance, err := ledger.Allowance(asset, alice, bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), allowance)

	aliceBal, err := ledger.Balance(asset, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(55), aliceBal)
	bobBal, err := ledger.Balance(asset, bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(45), bobBal)
}
