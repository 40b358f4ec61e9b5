package audit

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dscengine/core/events"
	"dscengine/crypto"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestJournalRecordsAndFilters(t *testing.T) {
	db := setupTestDB(t)
	journal := NewJournal(db, nil)
	journal.SetClock(steppingClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	weth := crypto.DeriveAddress(crypto.AssetPrefix, "weth")

	journal.Emit(events.CollateralDeposited{Account: alice, Asset: weth, Amount: big.NewInt(10)})
	journal.Emit(events.DscMinted{Account: alice, Amount: big.NewInt(100)})
	journal.Emit(events.DscBurned{OnBehalfOf: bob, Payer: alice, Amount: big.NewInt(5)})

	ctx := context.Background()
	all, err := journal.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, events.TypeDscBurned, all[0].Type)
	require.Equal(t, bob.String(), all[0].Account)

	forAlice, err := journal.List(ctx, Filter{Account: alice.String()})
	require.NoError(t, err)
	require.Len(t, forAlice, 2)
	require.Equal(t, events.TypeDscMinted, forAlice[0].Type)
	require.Equal(t, events.TypeCollateralDeposited, forAlice[1].Type)
	require.Equal(t, weth.String(), forAlice[1].Asset)

	attrs, err := forAlice[1].AttributeMap()
	require.NoError(t, err)
	require.Equal(t, "10", attrs["amount"])

	minted, err := journal.List(ctx, Filter{Type: events.TypeDscMinted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, minted, 1)
}

func TestJournalNilEventIgnored(t *testing.T) {
	journal := NewJournal(setupTestDB(t), nil)
	journal.Emit(nil)
	records, err := journal.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
	_, err = Open("postgres", "")
	require.Error(t, err)
}

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.True(t, db.Migrator().HasTable(&Record{}))
}
