package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"

	"github.com/delegacy/core/pkg/authority"
	"github.com/delegacy/core/pkg/clock"
	"github.com/delegacy/core/pkg/config"
	"github.com/delegacy/core/pkg/events"
	"github.com/delegacy/core/pkg/ledger"
	"github.com/delegacy/core/pkg/observability"
	"github.com/delegacy/core/pkg/policy"
	"github.com/delegacy/core/pkg/policymanifest"
	"github.com/delegacy/core/pkg/types"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: an args-in/writers-out dispatch
// shape that keeps main() itself a one-liner.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runDemoCmd(stdout, stderr)
	}

	switch args[1] {
	case "demo":
		return runDemoCmd(stdout, stderr)
	case "load-policy":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "usage: delegacyctl load-policy <manifest.yaml>")
			return 2
		}
		return runLoadPolicyCmd(args[2], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "delegacyctl <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  demo                    Run an end-to-end create/heartbeat/bind/spend/log/verify walkthrough")
	fmt.Fprintln(w, "  load-policy <file.yaml> Load a policy manifest and register it with the PolicyEngine")
	fmt.Fprintln(w, "  help                    Show this help")
}

// subsystems bundles the three engines behind their shared
// observability and event wiring, the way core/cmd/helm/main.go bundles
// its ledger/registry/metering subsystems before wiring the server.
type subsystems struct {
	authority *authority.Engine
	policy    *policy.Engine
	ledger    *ledger.Ledger
	bus       *events.Bus
	obs       *observability.Provider
}

func buildSubsystems(ctx context.Context, cfg *config.Config) (*subsystems, error) {
	obsCfg := observability.DefaultConfig()
	if cfg.OTELEnabled {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	obs, err := observability.NewProvider(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("delegacyctl: build observability provider: %w", err)
	}

	bus := events.NewBus()
	sysClock := clock.System{}

	authStore, err := buildAuthorityStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("delegacyctl: build authority store: %w", err)
	}
	cooldownStore := buildCooldownStore(cfg)
	ledgerStore, err := buildLedgerStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("delegacyctl: build ledger store: %w", err)
	}

	authEngine := authority.New(authStore, cooldownStore, sysClock, bus, obs)
	policyEngine := policy.New(policy.NewMemoryStore(), authEngine, sysClock, bus, obs)
	ledgerEngine := ledger.New(ledgerStore, authEngine, sysClock, bus, obs)

	return &subsystems{authority: authEngine, policy: policyEngine, ledger: ledgerEngine, bus: bus, obs: obs}, nil
}

// buildAuthorityStore constructs a Postgres-backed store when
// cfg.AuthorityStoreDSN is set, and an in-memory store otherwise.
func buildAuthorityStore(cfg *config.Config) (authority.Store, error) {
	if cfg.AuthorityStoreDSN == "" {
		return authority.NewMemoryStore(), nil
	}
	db, err := sql.Open("postgres", cfg.AuthorityStoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return authority.NewPostgresStore(db), nil
}

// buildCooldownStore constructs a Redis-backed cooldown store when
// cfg.CooldownRedisAddr is set, and an in-memory store otherwise.
func buildCooldownStore(cfg *config.Config) authority.CooldownStore {
	if cfg.CooldownRedisAddr == "" {
		return authority.NewMemoryCooldownStore()
	}
	return authority.NewRedisCooldownStore(cfg.CooldownRedisAddr, "", 0)
}

// buildLedgerStore constructs a SQLite-backed store when
// cfg.LedgerStoreDSN is set, and an in-memory store otherwise.
func buildLedgerStore(cfg *config.Config) (ledger.Store, error) {
	if cfg.LedgerStoreDSN == "" {
		return ledger.NewMemoryStore(), nil
	}
	db, err := sql.Open("sqlite", cfg.LedgerStoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return ledger.NewSQLiteStore(db)
}

func runDemoCmd(stdout, stderr io.Writer) int {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	cfg := config.Load()
	sys, err := buildSubsystems(ctx, cfg)
	if err != nil {
		logger.Error("failed to build subsystems", "error", err)
		return 1
	}
	defer func() { _ = sys.obs.Shutdown(ctx) }()

	eventCh := sys.bus.Subscribe(32)
	go func() {
		for ev := range eventCh {
			logger.Debug("event", "kind", ev.Kind, "payload", ev.Payload)
		}
	}()

	principal := mustDemoAddress(1)
	agent := mustDemoAddress(2)
	target := mustDemoAddress(3)

	relID, err := sys.authority.Create(ctx, principal, agent,
		mustBigInt("50000000000000000000"),  // 50 units at 18 decimals
		mustBigInt("500000000000000000000"), // ceiling 500 units
		big.NewInt(277_777_777_777_778),     // ~1 unit/hour
	)
	if err != nil {
		fmt.Fprintf(stderr, "create failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "created relationship %s\n", relID)

	if err := sys.authority.Heartbeat(ctx, principal, relID); err != nil {
		fmt.Fprintf(stderr, "heartbeat failed: %v\n", err)
		return 1
	}

	policyID, err := sys.policy.CreatePolicy(ctx, 86400,
		[]*big.Int{mustBigInt("10000000000000000000"), mustBigInt("100000000000000000000")},
		[]*big.Int{big.NewInt(100_000_000), big.NewInt(1_000_000_000)},
		[]bool{false, true},
		[][]types.Address{{}, {}},
	)
	if err != nil {
		fmt.Fprintf(stderr, "create_policy failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "created policy %s\n", policyID)

	if err := sys.policy.BindPolicy(ctx, principal, relID, policyID); err != nil {
		fmt.Fprintf(stderr, "bind_policy failed: %v\n", err)
		return 1
	}

	allowed, tier, err := sys.policy.CheckAction(ctx, relID, target, big.NewInt(1_000_000))
	if err != nil {
		fmt.Fprintf(stderr, "check_action failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "check_action: allowed=%v tier=%d\n", allowed, tier)

	if err := sys.policy.RecordSpend(ctx, agent, relID, big.NewInt(1_000_000)); err != nil {
		fmt.Fprintf(stderr, "record_spend failed: %v\n", err)
		return 1
	}

	if err := sys.ledger.Log(ctx, agent, relID, ledger.ActionTransfer, target, big.NewInt(1_000_000)); err != nil {
		fmt.Fprintf(stderr, "log failed: %v\n", err)
		return 1
	}

	ok, err := sys.ledger.VerifyChain(ctx, relID)
	if err != nil {
		fmt.Fprintf(stderr, "verify_chain failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "verify_chain: %v\n", ok)

	summary, err := sys.ledger.Summary(ctx, relID)
	if err != nil {
		fmt.Fprintf(stderr, "summary failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "summary: total_actions=%d total_value=%s\n", summary.TotalActions, summary.TotalValue)

	return 0
}

// runLoadPolicyCmd loads a single policy manifest file and registers
// it with the PolicyEngine, printing the resulting content-addressed
// policy ID.
func runLoadPolicyCmd(path string, stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	sys, err := buildSubsystems(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "build subsystems failed: %v\n", err)
		return 1
	}
	defer func() { _ = sys.obs.Shutdown(ctx) }()

	loader := policymanifest.NewLoader(filepath.Dir(path))
	if err := loader.LoadFile(path); err != nil {
		fmt.Fprintf(stderr, "load manifest failed: %v\n", err)
		return 1
	}

	loaded := loader.All()
	if len(loaded) != 1 {
		fmt.Fprintf(stderr, "expected exactly one manifest loaded from %s, got %d\n", path, len(loaded))
		return 1
	}
	m := loaded[0]

	args, err := policymanifest.Parse(m)
	if err != nil {
		fmt.Fprintf(stderr, "parse manifest failed: %v\n", err)
		return 1
	}

	policyID, err := sys.policy.CreatePolicy(ctx, args.EpochDuration, args.MinAuthority, args.SpendCap, args.CanSubDelegate, args.Whitelist)
	if err != nil {
		fmt.Fprintf(stderr, "create_policy failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "registered policy %s from %s\n", policyID, m.Name)
	return 0
}

func mustDemoAddress(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func mustBigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big int literal: " + s)
	}
	return n
}
