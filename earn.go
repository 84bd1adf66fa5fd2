// Package earn routes a user's supply or withdraw of a yield asset between
// two venues on one EVM chain: the native savings vault and an external
// liquidity pool. It picks the venue with a machine-readable reason,
// coordinates ERC-20 approvals (optionally bundled with the action into one
// atomic wallet submission), and drives the resulting steps through an
// approval-then-action lifecycle.
package earn

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/earn/chain"
	"github.com/vultisig/earn/config"
	"github.com/vultisig/earn/internal/util"
	"github.com/vultisig/earn/metrics"
	"github.com/vultisig/earn/orchestrator"
	"github.com/vultisig/earn/session"
)

// Service bundles the wired pipeline for a front-end shell.
type Service struct {
	Controller *session.Controller
	History    *orchestrator.History
}

// New wires the chain adapters, orchestrator and session for one account.
// submit is the wallet prompt; sink receives user-facing events;
// batchSupported is the wallet's capability report.
func New(
	ctx context.Context,
	logger *logrus.Logger,
	cfg config.Config,
	account common.Address,
	submit chain.SubmitFunc,
	sink orchestrator.NotificationSink,
	batchSupported bool,
) (*Service, error) {
	metrics.Register(logger)

	rpc, err := ethclient.Dial(cfg.Rpc.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	vaultAddr := common.HexToAddress(cfg.Contracts.Vault)
	routerAddr := common.HexToAddress(cfg.Contracts.PoolRouter)
	pairAddr := common.HexToAddress(cfg.Contracts.PoolPair)
	assetAddr := common.HexToAddress(cfg.Contracts.AssetToken)
	shareAddr := common.HexToAddress(cfg.Contracts.ShareToken)

	vault := chain.NewVault(rpc, vaultAddr, account)
	pool := chain.NewPool(rpc, routerAddr, pairAddr, assetAddr, shareAddr, vault)
	accounts := chain.NewAccounts(rpc, account, assetAddr, shareAddr, vaultAddr, routerAddr)
	builder := chain.NewBuilder(accounts)
	wallet := chain.NewWallet(rpc, account, submit, batchSupported)
	waiter := chain.NewWaiter(rpc)

	history, err := orchestrator.NewHistory(cfg.Session.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	orch := orchestrator.New(logger, wallet, waiter, sink, nil, history)

	reference, err := util.ToBaseUnits(cfg.Session.ReferenceAmount, cfg.Asset.Decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reference amount: %w", err)
	}

	ctrl := session.New(
		ctx,
		logger,
		session.Params{
			ChainID:         cfg.ChainID,
			Debounce:        time.Duration(cfg.Session.DebounceMs) * time.Millisecond,
			RefreshTimeout:  time.Duration(cfg.Session.RefreshTimeoutMs) * time.Millisecond,
			ReferenceAmount: reference,
			AssetSymbol:     cfg.Asset.Symbol,
			AssetDecimals:   cfg.Asset.Decimals,
			BatchOptIn:      cfg.Session.BatchOptIn,
		},
		vault,
		pool,
		accounts,
		accounts,
		builder,
		orch,
		wallet,
		sink,
	)
	orch.SetHooks(ctrl)

	// Surface reference-amount routing before any input arrives.
	if err := ctrl.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("initial refresh failed")
	}

	return &Service{
		Controller: ctrl,
		History:    history,
	}, nil
}
