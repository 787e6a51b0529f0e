package staking_protocol

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Outcome distinguishes a submitted transaction from a request that needed
// no transaction at all.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeNoOp
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeNoOp:
		return "no-op"
	default:
		return "unknown"
	}
}

// ClaimResult reports a claim attempt.
type ClaimResult struct {
	Outcome   Outcome
	Signature solana.Signature
	Records   []solana.PublicKey
	Amount    uint64
}

// Snapshot is the result of one discovery pass. It is replaced whole.
type Snapshot struct {
	Owned   []NftDescriptor `json:"owned"`
	Staked  []StakedNft     `json:"staked"`
	TakenAt time.Time       `json:"takenAt"`
}

type SessionConfig struct {
	Ledger Ledger
	Signer Signer
	Pool   solana.PublicKey
	// Collection overrides the pool's collection tag when filtering owned
	// NFTs. Empty uses the tag from the pool account.
	Collection string
	Fetcher    MetadataFetcher
	Notifier   Notifier

	ConfirmTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Session is the caller-facing entry point. All cached state is replaced
// whole under mu, never patched. At most one state-changing operation is in
// flight at a time; a second one fails with ErrOperationInProgress.
type Session struct {
	log        *logrus.Entry
	ledger     Ledger
	signer     Signer
	pool       solana.PublicKey
	collection string
	builder    *Builder
	submitter  *Submitter
	discovery  *Discovery
	scanner    *Scanner
	now        func() time.Time

	writeMu sync.Mutex

	mu         sync.Mutex
	poolConfig *PoolConfig
	snapshot   *Snapshot
}

func NewSession(cfg *SessionConfig) (*Session, error) {
	if cfg.Ledger == nil {
		return nil, invalidInput("ledger is required")
	}
	if cfg.Signer == nil {
		return nil, invalidInput("signer is required")
	}
	if cfg.Pool.IsZero() {
		return nil, invalidInput("pool address is required")
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPMetadataFetcher(nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	submitter := NewSubmitter(cfg.Ledger, cfg.Notifier)
	if cfg.ConfirmTimeout > 0 {
		submitter.ConfirmTimeout = cfg.ConfirmTimeout
	}

	return &Session{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "staking/session",
			"pool": cfg.Pool.String(),
		}),
		ledger:     cfg.Ledger,
		signer:     cfg.Signer,
		pool:       cfg.Pool,
		collection: cfg.Collection,
		builder:    NewBuilder(cfg.Ledger),
		submitter:  submitter,
		discovery:  NewDiscovery(cfg.Ledger, fetcher),
		scanner:    NewScanner(cfg.Ledger, ProgramID),
		now:        clock,
	}, nil
}

func (s *Session) Owner() solana.PublicKey {
	return s.signer.PublicKey()
}

func (s *Session) Pool() solana.PublicKey {
	return s.pool
}

func (s *Session) Builder() *Builder {
	return s.builder
}

func (s *Session) Submitter() *Submitter {
	return s.submitter
}

// PoolConfig returns the last fetched pool configuration, or nil.
func (s *Session) PoolConfig() *PoolConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolConfig
}

// Snapshot returns the last discovery snapshot, or nil.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Initialize loads the pool configuration and the first discovery snapshot.
// Callers invoke it once before any other operation.
func (s *Session) Initialize(ctx context.Context) (*Snapshot, error) {
	if _, err := s.RefreshPoolConfig(ctx); err != nil {
		return nil, err
	}
	return s.Refresh(ctx)
}

func (s *Session) RefreshPoolConfig(ctx context.Context) (*PoolConfig, error) {
	info, err := s.ledger.GetAccount(ctx, s.pool)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pool account")
	}
	if info == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "pool %s", s.pool)
	}
	if !info.Owner.IsZero() && !info.Owner.Equals(ProgramID) {
		return nil, malformed("pool", "account %s is owned by %s", s.pool, info.Owner)
	}
	config, err := ParseAccount_Pool(info.Data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.poolConfig = config
	s.mu.Unlock()
	return config, nil
}

// Refresh re-runs discovery for the session owner.
func (s *Session) Refresh(ctx context.Context) (*Snapshot, error) {
	pool, err := s.requirePoolConfig(ctx)
	if err != nil {
		return nil, err
	}

	owner := s.Owner()
	owned, err := s.discovery.OwnedNfts(ctx, owner, s.collectionFor(pool))
	if err != nil {
		return nil, err
	}
	staked, err := s.discovery.StakedNfts(ctx, owner, s.pool, pool)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Owned:   owned,
		Staked:  staked,
		TakenAt: s.now(),
	}
	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()
	return snapshot, nil
}

// DiscoverOwnedNfts lists the NFTs of owner the pool accepts for staking.
func (s *Session) DiscoverOwnedNfts(ctx context.Context, owner solana.PublicKey) ([]NftDescriptor, error) {
	pool, err := s.requirePoolConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.discovery.OwnedNfts(ctx, owner, s.collectionFor(pool))
}

func (s *Session) DiscoverStakedNfts(ctx context.Context, owner solana.PublicKey) ([]StakedNft, error) {
	pool, err := s.requirePoolConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.discovery.StakedNfts(ctx, owner, s.pool, pool)
}

// ComputeClaimable sums what owner could claim right now.
func (s *Session) ComputeClaimable(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	pool, err := s.requirePoolConfig(ctx)
	if err != nil {
		return 0, err
	}
	records, err := s.scanner.ScanStakeRecords(ctx, owner, s.pool)
	if err != nil {
		return 0, err
	}

	now := s.now().Unix()
	var total uint64
	for _, r := range records {
		total = addAmounts(total, RecordClaimable(now, r.Record, pool))
	}
	return total, nil
}

// InitializePool creates a new pool owned by the session signer. The
// session keeps serving its configured pool.
func (s *Session) InitializePool(ctx context.Context, rewardMint solana.PublicKey, rewardAmount uint64, period int64, withdrawable uint8, collection string) (solana.PublicKey, solana.Signature, error) {
	unlock, err := s.beginWrite("InitializePool")
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}
	defer unlock()

	plan, err := s.builder.BuildInitializePool(ctx, &InitializePoolParams{
		Owner:           s.Owner(),
		RewardMint:      rewardMint,
		RewardAmount:    rewardAmount,
		Period:          period,
		Withdrawable:    withdrawable,
		StakeCollection: collection,
	})
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}

	sig, err := s.submitter.Submit(ctx, s.signer, &plan.Plan)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}

	s.log.WithFields(logrus.Fields{
		"method":  "InitializePool",
		"newPool": plan.Pool.String(),
	}).Info("pool created")
	return plan.Pool, sig, nil
}

func (s *Session) Stake(ctx context.Context, nftMint solana.PublicKey) (solana.PublicKey, solana.Signature, error) {
	unlock, err := s.beginWrite("Stake")
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}
	defer unlock()

	plan, err := s.builder.BuildStake(ctx, s.Owner(), s.pool, nftMint)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}

	sig, err := s.submitter.Submit(ctx, s.signer, &plan.Plan)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}

	s.afterTransition(ctx, "Stake")
	return plan.StakeRecord, sig, nil
}

func (s *Session) Unstake(ctx context.Context, stakeRecord solana.PublicKey) (solana.Signature, error) {
	unlock, err := s.beginWrite("Unstake")
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	pool, err := s.RefreshPoolConfig(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	plan, err := s.builder.BuildUnstake(ctx, s.Owner(), pool, stakeRecord, s.now())
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := s.submitter.Submit(ctx, s.signer, plan)
	if err != nil {
		return solana.Signature{}, err
	}

	s.afterTransition(ctx, "Unstake")
	return sig, nil
}

// Claim submits one transaction claiming every record with accrued rewards.
// When nothing has accrued it returns OutcomeNoOp without touching the
// ledger's write path.
func (s *Session) Claim(ctx context.Context) (*ClaimResult, error) {
	unlock, err := s.beginWrite("Claim")
	if err != nil {
		return nil, err
	}
	defer unlock()

	pool, err := s.RefreshPoolConfig(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := s.builder.BuildClaim(ctx, s.Owner(), s.pool, pool, s.now())
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		return &ClaimResult{Outcome: OutcomeNoOp}, nil
	}

	sig, err := s.submitter.Submit(ctx, s.signer, &plan.Plan)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, "Claim")
	return &ClaimResult{
		Outcome:   OutcomeConfirmed,
		Signature: sig,
		Records:   plan.Records,
		Amount:    plan.Claimed,
	}, nil
}

// beginWrite claims the write slot for one state-changing operation. The
// returned func releases it.
func (s *Session) beginWrite(method string) (func(), error) {
	if !s.writeMu.TryLock() {
		s.log.WithField("method", method).Debug("rejecting overlapping write")
		return nil, errors.Wrapf(ErrOperationInProgress, "%s", method)
	}
	return s.writeMu.Unlock, nil
}

// collectionFor is the symbol owned NFTs must carry to be stakeable in pool.
func (s *Session) collectionFor(pool *PoolConfig) string {
	if s.collection != "" {
		return s.collection
	}
	return pool.StakeCollection
}

func (s *Session) requirePoolConfig(ctx context.Context) (*PoolConfig, error) {
	if config := s.PoolConfig(); config != nil {
		return config, nil
	}
	return s.RefreshPoolConfig(ctx)
}

// afterTransition re-runs discovery. The transaction already finalized, so
// a failed refresh is only logged.
func (s *Session) afterTransition(ctx context.Context, method string) {
	if _, err := s.Refresh(ctx); err != nil {
		s.log.WithError(err).WithField("method", method).Warn("failed to refresh snapshot after transaction")
	}
}
