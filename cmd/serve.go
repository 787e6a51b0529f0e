package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	staking_protocol "nft-staking-cli/solana"
	"nft-staking-cli/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	listen      string
	corsOrigins []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a local JSON API for a browser front end",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runServe),
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", "127.0.0.1:8787", "address to listen on")
	serveCmd.Flags().StringSliceVar(&serveFlags.corsOrigins, "cors-origin", []string{"http://localhost:3000"}, "allowed CORS origins")
	rootCmd.AddCommand(serveCmd)
}

// stakingService is the part of the session the API exposes.
type stakingService interface {
	Owner() solana.PublicKey
	Pool() solana.PublicKey
	PoolConfig() *staking_protocol.PoolConfig
	Snapshot() *staking_protocol.Snapshot
	Refresh(ctx context.Context) (*staking_protocol.Snapshot, error)
	ComputeClaimable(ctx context.Context, owner solana.PublicKey) (uint64, error)
	Stake(ctx context.Context, nftMint solana.PublicKey) (solana.PublicKey, solana.Signature, error)
	Unstake(ctx context.Context, stakeRecord solana.PublicKey) (solana.Signature, error)
	Claim(ctx context.Context) (*staking_protocol.ClaimResult, error)
	History(ctx context.Context, limit int) ([]staking_protocol.ActivityEvent, error)
}

type apiServer struct {
	log     *logrus.Entry
	service stakingService
	db      *storage.DB
	profile string
}

func runServe(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	log := logrus.StandardLogger().WithField("type", "api")
	session, profile, err := a.openSession(ctx, &logNotifier{log: log})
	if err != nil {
		return err
	}

	api := &apiServer{log: log, service: session, db: a.db, profile: profile}
	c := cors.New(cors.Options{
		AllowedOrigins: serveFlags.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	server := &http.Server{
		Addr:              serveFlags.listen,
		Handler:           c.Handler(api.router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("listen", serveFlags.listen).Info("API server started")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("shutting down API server")
		return server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallet", s.handleWallet).Methods(http.MethodGet)
	api.HandleFunc("/profiles", s.handleProfiles).Methods(http.MethodGet)
	api.HandleFunc("/pool", s.handlePool).Methods(http.MethodGet)
	api.HandleFunc("/nfts", s.handleNfts).Methods(http.MethodGet)
	api.HandleFunc("/staked", s.handleStaked).Methods(http.MethodGet)
	api.HandleFunc("/claimable", s.handleClaimable).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/stake", s.handleStake).Methods(http.MethodPost)
	api.HandleFunc("/unstake", s.handleUnstake).Methods(http.MethodPost)
	api.HandleFunc("/claim", s.handleClaim).Methods(http.MethodPost)
	return handlers.CompressHandler(r)
}

type poolView struct {
	Address       string `json:"address"`
	Owner         string `json:"owner"`
	RewardMint    string `json:"rewardMint"`
	RewardAccount string `json:"rewardAccount"`
	RewardAmount  uint64 `json:"rewardAmount"`
	Period        int64  `json:"period"`
	Withdrawable  uint8  `json:"withdrawable"`
	Collection    string `json:"collection"`
}

type nftView struct {
	Mint    string `json:"mint"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Symbol  string `json:"symbol"`
	Ordinal *int   `json:"ordinal,omitempty"`
}

type stakedView struct {
	nftView
	StakeRecord string `json:"stakeRecord"`
	StakeTime   int64  `json:"stakeTime"`
	Withdrawn   uint8  `json:"withdrawn"`
	UnlocksAt   int64  `json:"unlocksAt"`
	Claimable   uint64 `json:"claimable"`
}

type activityView struct {
	Signature   string `json:"signature"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
	StakeRecord string `json:"stakeRecord,omitempty"`
	Failed      bool   `json:"failed"`
}

func newNftView(nft staking_protocol.NftDescriptor) nftView {
	v := nftView{
		Mint:   nft.Mint.String(),
		Name:   nft.Name,
		Image:  nft.Image,
		Symbol: nft.Symbol,
	}
	if nft.HasOrdinal {
		ordinal := nft.Ordinal
		v.Ordinal = &ordinal
	}
	return v
}

func (s *apiServer) handleWallet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"profile": s.profile,
		"owner":   s.service.Owner().String(),
		"pool":    s.service.Pool().String(),
	})
}

func (s *apiServer) handleProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.db.ListProfiles()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []*storage.Profile{}
	}
	s.writeJSON(w, http.StatusOK, profiles)
}

func (s *apiServer) handlePool(w http.ResponseWriter, r *http.Request) {
	pool := s.service.PoolConfig()
	if pool == nil {
		s.writeError(w, r, errors.Wrap(staking_protocol.ErrRecordNotFound, "pool not loaded"))
		return
	}
	s.writeJSON(w, http.StatusOK, poolView{
		Address:       s.service.Pool().String(),
		Owner:         pool.Owner.String(),
		RewardMint:    pool.RewardMint.String(),
		RewardAccount: pool.RewardAccount.String(),
		RewardAmount:  pool.RewardAmount,
		Period:        pool.Period,
		Withdrawable:  pool.Withdrawable,
		Collection:    pool.StakeCollection,
	})
}

// snapshot returns the cached discovery result, running discovery once if
// there is none yet.
func (s *apiServer) snapshot(ctx context.Context) (*staking_protocol.Snapshot, error) {
	if snap := s.service.Snapshot(); snap != nil {
		return snap, nil
	}
	return s.service.Refresh(ctx)
}

func (s *apiServer) handleNfts(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]nftView, 0, len(snap.Owned))
	for _, nft := range snap.Owned {
		out = append(out, newNftView(nft))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleStaked(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool := s.service.PoolConfig()
	now := time.Now().Unix()

	out := make([]stakedView, 0, len(snap.Staked))
	for _, staked := range snap.Staked {
		var claimable uint64
		if pool != nil {
			claimable = staking_protocol.RecordClaimable(now, staked.Record, pool)
		}
		out = append(out, stakedView{
			nftView:     newNftView(staked.Nft),
			StakeRecord: staked.Address.String(),
			StakeTime:   staked.Record.StakeTime,
			Withdrawn:   staked.Record.WithdrawnNumber,
			UnlocksAt:   staked.UnlocksAt.Unix(),
			Claimable:   claimable,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleClaimable(w http.ResponseWriter, r *http.Request) {
	amount, err := s.service.ComputeClaimable(r.Context(), s.service.Owner())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"claimable": amount})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := staking_protocol.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, errors.Wrapf(staking_protocol.ErrInvalidInput, "limit %q", raw))
			return
		}
		limit = n
	}

	events, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]activityView, 0, len(events))
	for _, e := range events {
		v := activityView{
			Signature: e.Signature.String(),
			Timestamp: e.Timestamp.Unix(),
			Type:      e.Type,
			Failed:    e.Failed,
		}
		if !e.StakeRecord.IsZero() {
			v.StakeRecord = e.StakeRecord.String()
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Refresh(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"owned":   len(snap.Owned),
		"staked":  len(snap.Staked),
		"takenAt": snap.TakenAt.Unix(),
	})
}

type stakeRequest struct {
	Mint string `json:"mint"`
}

func (s *apiServer) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	mint, err := decodeKey(r, &req, func() string { return req.Mint })
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	record, sig, err := s.service.Stake(r.Context(), mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"stakeRecord": record.String(),
		"signature":   sig.String(),
	})
}

type unstakeRequest struct {
	StakeRecord string `json:"stakeRecord"`
}

func (s *apiServer) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	record, err := decodeKey(r, &req, func() string { return req.StakeRecord })
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := s.service.Unstake(r.Context(), record)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"signature": sig.String()})
}

func (s *apiServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Claim(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"outcome": result.Outcome.String(),
		"amount":  result.Amount,
		"records": len(result.Records),
	}
	if result.Outcome == staking_protocol.OutcomeConfirmed {
		resp["signature"] = result.Signature.String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decodeKey reads a JSON body into req and parses the address field returns.
func decodeKey(r *http.Request, req interface{}, field func() string) (solana.PublicKey, error) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return solana.PublicKey{}, errors.Wrapf(staking_protocol.ErrInvalidInput, "invalid request body: %v", err)
	}
	key, err := solana.PublicKeyFromBase58(field())
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(staking_protocol.ErrInvalidInput, "invalid address %q", field())
	}
	return key, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, staking_protocol.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, staking_protocol.ErrRecordNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, staking_protocol.ErrSignerRejected):
		return http.StatusForbidden
	case errors.Is(err, staking_protocol.ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, staking_protocol.ErrTransactionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := s.log.WithError(err).WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).WithField("status", status).Error("failed to encode response")
	}
}
