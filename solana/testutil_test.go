package staking_protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	mu sync.Mutex

	accounts        map[solana.PublicKey]*AccountInfo
	programAccounts []KeyedAccount
	tokenAccounts   map[solana.PublicKey][]KeyedAccount
	history         []TransactionRecord

	blockhash solana.Hash
	sendErr   error
	sigSeq    byte

	// statuses are returned in order; the last one repeats.
	statuses []*SignatureStatus
	polls    int

	// When sendGate is set, SendTransaction signals sendEntered and then
	// blocks until sendGate is closed.
	sendGate    chan struct{}
	sendEntered chan struct{}

	sent []*solana.Transaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts:      make(map[solana.PublicKey]*AccountInfo),
		tokenAccounts: make(map[solana.PublicKey][]KeyedAccount),
		blockhash:     solana.Hash{1, 2, 3},
		statuses: []*SignatureStatus{
			{Confirmation: rpc.ConfirmationStatusFinalized},
		},
	}
}

func (l *fakeLedger) setAccount(address, owner solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[address] = &AccountInfo{Owner: owner, Lamports: 1, Data: data}
}

func (l *fakeLedger) addProgramAccount(address solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programAccounts = append(l.programAccounts, KeyedAccount{
		Address: address,
		Account: &AccountInfo{Owner: ProgramID, Data: data},
	})
	l.accounts[address] = &AccountInfo{Owner: ProgramID, Data: data}
}

func (l *fakeLedger) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

func (l *fakeLedger) GetAccount(_ context.Context, address solana.PublicKey) (*AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[address], nil
}

func (l *fakeLedger) GetAccounts(_ context.Context, addresses ...solana.PublicKey) ([]*AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*AccountInfo, len(addresses))
	for i, a := range addresses {
		out[i] = l.accounts[a]
	}
	return out, nil
}

// GetProgramAccounts ignores filters so callers' local checks are exercised.
func (l *fakeLedger) GetProgramAccounts(_ context.Context, _ solana.PublicKey, _ ...Filter) ([]KeyedAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]KeyedAccount(nil), l.programAccounts...), nil
}

func (l *fakeLedger) GetTokenAccountsByOwner(_ context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokenAccounts[owner], nil
}

func (l *fakeLedger) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return l.blockhash, nil
}

func (l *fakeLedger) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if l.sendGate != nil {
		l.sendEntered <- struct{}{}
		<-l.sendGate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return solana.Signature{}, l.sendErr
	}
	l.sent = append(l.sent, tx)
	l.sigSeq++
	return solana.Signature{l.sigSeq}, nil
}

func (l *fakeLedger) GetSignatureStatus(context.Context, solana.Signature) (*SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.polls
	if idx >= len(l.statuses) {
		idx = len(l.statuses) - 1
	}
	l.polls++
	if idx < 0 {
		return nil, nil
	}
	return l.statuses[idx], nil
}

func (l *fakeLedger) GetTransactionsForAddress(context.Context, solana.PublicKey, int) ([]TransactionRecord, error) {
	return l.history, nil
}

type fakeSigner struct {
	key    solana.PrivateKey
	reject bool
	calls  int
}

func newFakeSigner(t *testing.T) *fakeSigner {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &fakeSigner{key: key}
}

func (s *fakeSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *fakeSigner) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	s.calls++
	if s.reject {
		return nil, errors.New("user declined")
	}
	return NewKeypairSigner(s.key).SignTransaction(context.Background(), tx)
}

type fakeNotifier struct {
	succeeded []solana.Signature
	failed    []error
}

func (n *fakeNotifier) TransactionSucceeded(sig solana.Signature) {
	n.succeeded = append(n.succeeded, sig)
}

func (n *fakeNotifier) TransactionFailed(err error) {
	n.failed = append(n.failed, err)
}

type fakeFetcher struct {
	docs map[string]*MetadataDocument
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) (*MetadataDocument, error) {
	doc, ok := f.docs[uri]
	if !ok {
		return nil, errors.Wrapf(ErrMetadataFetchFailed, "%s", uri)
	}
	return doc, nil
}

func newKey(t *testing.T) solana.PublicKey {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey()
}

func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

func mintData(decimals uint8) []byte {
	data := make([]byte, MintSize)
	data[mintDecimalsOffset] = decimals
	return data
}

func metadataData(t *testing.T, mint solana.PublicKey, name, symbol, uri string) []byte {
	// Metaplex pads strings to fixed widths with NULs.
	pad := func(s string, n int) string {
		for len(s) < n {
			s += "\x00"
		}
		return s
	}
	m := &TokenMetadata{
		Key:    4,
		Mint:   mint,
		Name:   pad(name, 32),
		Symbol: pad(symbol, 10),
		URI:    pad(uri, 200),
	}
	buf := new(bytes.Buffer)
	require.NoError(t, m.MarshalWithEncoder(bin.NewBorshEncoder(buf)))
	return buf.Bytes()
}

func poolData(t *testing.T, p *PoolConfig) []byte {
	buf := new(bytes.Buffer)
	require.NoError(t, p.MarshalWithEncoder(bin.NewBorshEncoder(buf)))
	return buf.Bytes()
}

func testPoolConfig(t *testing.T) *PoolConfig {
	return &PoolConfig{
		Owner:           newKey(t),
		Rand:            newKey(t),
		RewardMint:      newKey(t),
		RewardAccount:   newKey(t),
		RewardAmount:    10,
		Period:          60,
		Withdrawable:    7,
		StakeCollection: "Zoku",
		Bump:            254,
	}
}
