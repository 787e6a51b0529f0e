package staking_protocol

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	ledger      *fakeLedger
	signer      *fakeSigner
	notifier    *fakeNotifier
	fetcher     *fakeFetcher
	poolAddress solana.PublicKey
	pool        *PoolConfig
	now         time.Time
	session     *Session
}

func newSessionFixture(t *testing.T) *sessionFixture {
	f := &sessionFixture{
		ledger:      newFakeLedger(),
		signer:      newFakeSigner(t),
		notifier:    &fakeNotifier{},
		fetcher:     &fakeFetcher{docs: make(map[string]*MetadataDocument)},
		poolAddress: newKey(t),
		pool:        testPoolConfig(t),
		now:         time.Unix(1_700_000_000, 0),
	}
	f.ledger.setAccount(f.poolAddress, ProgramID, poolData(t, f.pool))

	session, err := NewSession(&SessionConfig{
		Ledger:     f.ledger,
		Signer:     f.signer,
		Pool:     f.poolAddress,
		Fetcher:  f.fetcher,
		Notifier: f.notifier,
		Clock:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	session.Submitter().PollInterval = time.Millisecond
	session.Submitter().ConfirmTimeout = 200 * time.Millisecond
	f.session = session
	return f
}

// addOwnedNft registers a held NFT of the session owner.
func (f *sessionFixture) addOwnedNft(t *testing.T, name, symbol string, withDocument bool) solana.PublicKey {
	owner := f.signer.PublicKey()
	mint := newKey(t)
	ata, err := DeriveAssociatedAccount(owner, mint)
	require.NoError(t, err)
	metadata, err := DeriveMetadataAddress(mint)
	require.NoError(t, err)

	uri := "https://example.com/" + mint.String() + ".json"
	f.ledger.tokenAccounts[owner] = append(f.ledger.tokenAccounts[owner], KeyedAccount{
		Address: ata,
		Account: &AccountInfo{Owner: solana.TokenProgramID, Data: tokenAccountData(mint, owner, 1)},
	})
	f.ledger.setAccount(ata, solana.TokenProgramID, tokenAccountData(mint, owner, 1))
	f.ledger.setAccount(mint, solana.TokenProgramID, mintData(0))
	f.ledger.setAccount(metadata, TokenMetadataProgramID, metadataData(t, mint, name, symbol, uri))
	if withDocument {
		f.fetcher.docs[uri] = &MetadataDocument{Name: name, Symbol: symbol, Image: "https://img/" + name}
	}
	return mint
}

// addStakedNft registers an active stake of the session owner.
func (f *sessionFixture) addStakedNft(t *testing.T, name string, stakeTime int64, withdrawn uint8) solana.PublicKey {
	mint := newKey(t)
	custody, err := DeriveAssociatedAccount(f.poolAddress, mint)
	require.NoError(t, err)
	metadata, err := DeriveMetadataAddress(mint)
	require.NoError(t, err)

	uri := "https://example.com/" + mint.String() + ".json"
	f.ledger.setAccount(custody, solana.TokenProgramID, tokenAccountData(mint, f.poolAddress, 1))
	f.ledger.setAccount(metadata, TokenMetadataProgramID, metadataData(t, mint, name, "Zoku", uri))
	f.fetcher.docs[uri] = &MetadataDocument{Name: name, Symbol: "Zoku", Image: "https://img/" + name}

	address := newKey(t)
	f.ledger.addProgramAccount(address, (&StakeRecord{
		Owner:           f.signer.PublicKey(),
		Pool:            f.poolAddress,
		Account:         custody,
		StakeTime:       stakeTime,
		WithdrawnNumber: withdrawn,
	}).Marshal())
	return address
}

func TestSession_Initialize(t *testing.T) {
	f := newSessionFixture(t)
	f.addOwnedNft(t, "Zoku #20", "Zoku", true)
	f.addOwnedNft(t, "Zoku #3", "Zoku", true)
	f.addOwnedNft(t, "Zoku #9", "Zoku", false) // metadata unreachable
	f.addOwnedNft(t, "Other #1", "OTHR", true) // outside the collection
	staked := f.addStakedNft(t, "Zoku #77", f.now.Unix()-100, 0)

	assert.Nil(t, f.session.PoolConfig())
	assert.Nil(t, f.session.Snapshot())

	snapshot, err := f.session.Initialize(context.Background())
	require.NoError(t, err)

	require.NotNil(t, f.session.PoolConfig())
	assert.Equal(t, f.pool, f.session.PoolConfig())

	require.Len(t, snapshot.Owned, 2)
	assert.Equal(t, "Zoku #20", snapshot.Owned[0].Name)
	assert.Equal(t, "Zoku #3", snapshot.Owned[1].Name)
	assert.Equal(t, 20, snapshot.Owned[0].Ordinal)

	require.Len(t, snapshot.Staked, 1)
	assert.Equal(t, staked, snapshot.Staked[0].Address)
	assert.Equal(t, "Zoku #77", snapshot.Staked[0].Nft.Name)
	assert.Equal(t, time.Unix(f.now.Unix()-100+420, 0).UTC(), snapshot.Staked[0].UnlocksAt)

	assert.Same(t, snapshot, f.session.Snapshot())
}

func TestSession_RefreshPoolConfigMissing(t *testing.T) {
	f := newSessionFixture(t)
	delete(f.ledger.accounts, f.poolAddress)

	_, err := f.session.RefreshPoolConfig(context.Background())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSession_ClaimWithoutRecordsIsNoOp(t *testing.T) {
	f := newSessionFixture(t)

	result, err := f.session.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, result.Outcome)
	assert.Zero(t, f.ledger.sentCount())
	assert.Zero(t, f.signer.calls)
	assert.Empty(t, f.notifier.succeeded)
	assert.Empty(t, f.notifier.failed)
}

func TestSession_ClaimNothingAccruedIsNoOp(t *testing.T) {
	f := newSessionFixture(t)
	f.addStakedNft(t, "Zoku #1", f.now.Unix()-30, 0)

	result, err := f.session.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, result.Outcome)
	assert.Zero(t, f.ledger.sentCount())
}

func TestSession_Claim(t *testing.T) {
	f := newSessionFixture(t)
	record := f.addStakedNft(t, "Zoku #1", f.now.Unix()-185, 0)

	claimable, err := f.session.ComputeClaimable(context.Background(), f.signer.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 30, claimable)

	result, err := f.session.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, []solana.PublicKey{record}, result.Records)
	assert.EqualValues(t, 30, result.Amount)
	assert.Equal(t, 1, f.ledger.sentCount())
	assert.Equal(t, []solana.Signature{result.Signature}, f.notifier.succeeded)
	assert.NotNil(t, f.session.Snapshot())
}

func TestSession_ComputeClaimableSaturates(t *testing.T) {
	f := newSessionFixture(t)
	f.addStakedNft(t, "Zoku #1", f.now.Unix()-1000, 0)

	claimable, err := f.session.ComputeClaimable(context.Background(), f.signer.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 70, claimable)
}

func TestSession_UnstakeBeforeUnlockIsRejected(t *testing.T) {
	f := newSessionFixture(t)
	record := f.addStakedNft(t, "Zoku #1", f.now.Unix()-100, 0)

	_, err := f.session.Unstake(context.Background(), record)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, f.ledger.sentCount())
	assert.Zero(t, f.signer.calls)

	f.now = f.now.Add(320 * time.Second)
	_, err = f.session.Unstake(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.sentCount())
}

func TestSession_Stake(t *testing.T) {
	f := newSessionFixture(t)
	mint := f.addOwnedNft(t, "Zoku #4", "Zoku", true)

	record, sig, err := f.session.Stake(context.Background(), mint)
	require.NoError(t, err)
	assert.False(t, record.IsZero())
	assert.Equal(t, []solana.Signature{sig}, f.notifier.succeeded)
	require.Equal(t, 1, f.ledger.sentCount())
	assert.Len(t, f.ledger.sent[0].Signatures, 2)
}

func TestSession_InitializePool(t *testing.T) {
	f := newSessionFixture(t)

	_, _, err := f.session.InitializePool(context.Background(), newKey(t), 0, 60, 7, "Zoku")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, f.ledger.sentCount())

	pool, _, err := f.session.InitializePool(context.Background(), newKey(t), 10, 60, 7, "Zoku")
	require.NoError(t, err)
	assert.False(t, pool.IsZero())
	assert.Equal(t, f.poolAddress, f.session.Pool())
	assert.Equal(t, 1, f.ledger.sentCount())
}

func TestSession_History(t *testing.T) {
	f := newSessionFixture(t)
	owner := f.signer.PublicKey()

	claimTx, err := solana.NewTransaction(
		[]solana.Instruction{NewClaimInstruction(&ClaimInstructionAccounts{
			Owner:     owner,
			Pool:      f.poolAddress,
			StakeData: newKey(t),
		})},
		solana.Hash{9},
		solana.TransactionPayer(owner),
	)
	require.NoError(t, err)
	stakeData := newKey(t)
	stakeTx, err := solana.NewTransaction(
		[]solana.Instruction{
			NewCreateAssociatedAccountInstruction(owner, f.poolAddress, newKey(t)),
			NewStakeInstruction(&StakeInstructionAccounts{Owner: owner, Pool: f.poolAddress, StakeData: stakeData}),
		},
		solana.Hash{8},
		solana.TransactionPayer(owner),
	)
	require.NoError(t, err)

	f.ledger.history = []TransactionRecord{
		{Signature: solana.Signature{1}, BlockTime: f.now.Add(-time.Hour), Transaction: stakeTx},
		{Signature: solana.Signature{2}, BlockTime: f.now, Transaction: claimTx, Failed: true},
	}

	events, err := f.session.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Claim", events[0].Type)
	assert.True(t, events[0].Failed)
	assert.Equal(t, owner, events[0].Owner)

	assert.Equal(t, "Stake", events[1].Type)
	assert.Equal(t, f.poolAddress, events[1].Pool)
	assert.Equal(t, stakeData, events[1].StakeRecord)
}

func TestSession_CollectionFollowsPool(t *testing.T) {
	f := newSessionFixture(t)
	f.pool.StakeCollection = "Foo"
	f.ledger.setAccount(f.poolAddress, ProgramID, poolData(t, f.pool))

	foo := f.addOwnedNft(t, "Foo #1", "Foo", true)
	f.addOwnedNft(t, "Zoku #2", "Zoku", true)
	staked := f.addStakedNft(t, "Zoku #3", f.now.Unix()-100, 0)

	snapshot, err := f.session.Initialize(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Owned, 1)
	assert.Equal(t, foo, snapshot.Owned[0].Mint)

	// staked records are listed whatever their symbol
	require.Len(t, snapshot.Staked, 1)
	assert.Equal(t, staked, snapshot.Staked[0].Address)

	override, err := NewSession(&SessionConfig{
		Ledger:     f.ledger,
		Signer:     f.signer,
		Pool:       f.poolAddress,
		Collection: "Zoku",
		Fetcher:    f.fetcher,
	})
	require.NoError(t, err)
	owned, err := override.DiscoverOwnedNfts(context.Background(), f.signer.PublicKey())
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "Zoku #2", owned[0].Name)
}

func TestSession_ClaimRereadsPool(t *testing.T) {
	f := newSessionFixture(t)
	f.addStakedNft(t, "Zoku #1", f.now.Unix()-185, 0)

	_, err := f.session.Initialize(context.Background())
	require.NoError(t, err)

	f.pool.RewardAmount = 20
	f.ledger.setAccount(f.poolAddress, ProgramID, poolData(t, f.pool))

	result, err := f.session.Claim(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 60, result.Amount)
	assert.EqualValues(t, 20, f.session.PoolConfig().RewardAmount)
}

func TestSession_OverlappingWritesAreRejected(t *testing.T) {
	f := newSessionFixture(t)
	f.addStakedNft(t, "Zoku #1", f.now.Unix()-185, 0)
	f.ledger.sendGate = make(chan struct{})
	f.ledger.sendEntered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Claim(context.Background())
		done <- err
	}()
	<-f.ledger.sendEntered

	_, err := f.session.Claim(context.Background())
	assert.ErrorIs(t, err, ErrOperationInProgress)
	_, err = f.session.Unstake(context.Background(), newKey(t))
	assert.ErrorIs(t, err, ErrOperationInProgress)

	close(f.ledger.sendGate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.ledger.sentCount())

	f.ledger.sendGate = nil
	_, err = f.session.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.sentCount())
}
