package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relaytrain/pulse/internal/advisor"
	"github.com/relaytrain/pulse/internal/agentspec"
	"github.com/relaytrain/pulse/internal/config"
	"github.com/relaytrain/pulse/internal/dispatch"
	"github.com/relaytrain/pulse/internal/evaluator"
	"github.com/relaytrain/pulse/internal/ghclient"
	"github.com/relaytrain/pulse/internal/notify"
	"github.com/relaytrain/pulse/internal/prlifecycle"
	"github.com/relaytrain/pulse/internal/pulse"
	"github.com/relaytrain/pulse/internal/retry"
	"github.com/relaytrain/pulse/internal/router"
	"github.com/relaytrain/pulse/internal/runtimestate"
	"github.com/relaytrain/pulse/internal/store"
	"github.com/relaytrain/pulse/internal/supervisor"
	"github.com/relaytrain/pulse/internal/taskfile"
	"github.com/relaytrain/pulse/internal/telemetry"
	"github.com/relaytrain/pulse/internal/wispcache"
)

// app bundles every long-lived collaborator a pulse command needs.
// Built once per invocation from --config/--debug; closing it releases
// the store handle.
type app struct {
	cfg *config.Config
	log *zap.Logger

	store  *store.Store
	gh     *ghclient.Client
	driver *pulse.Driver
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func buildApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := telemetry.New(telemetry.Options{
		Path:       filepath.Join(cfg.LogDir, "pulse.log"),
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Debug:      debug,
	})

	s, err := store.Open(context.Background(), cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var gh *ghclient.Client
	if cfg.GitHubToken != "" {
		gh = ghclient.New(context.Background(), cfg.GitHubToken)
	}

	var adv advisor.Advisor
	switch {
	case cfg.DeterministicAdvisor:
		adv = advisor.Deterministic{}
	case cfg.AnthropicKey != "":
		adv = advisor.NewAnthropic(cfg.AnthropicKey)
	}

	sv := supervisor.New(runtimestate.PIDDir())

	cache, err := wispcache.Open(filepath.Join(cfg.SupervisorDir, "router-cache.json"))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening router cache: %w", err)
	}
	rt := router.New(cfg, s, cache, nil)

	tmpl := agentspec.Default()

	var sync *taskfile.Sync
	var reconciler *taskfile.Reconciler
	var queue *taskfile.QueueFile
	if cfg.TaskFile.RepoDir != "" {
		sync = taskfile.New(cfg.TaskFile.RepoDir, cfg.TaskFile.RelPath, cfg.TaskFile.Remote)
		var notifier *notify.Notifier
		if gh != nil {
			notifier = notify.New(gh)
		}
		reconciler = taskfile.NewReconciler(s, sync, notifier)
		queue = taskfile.NewQueueFile(filepath.Join(cfg.TaskFile.RepoDir, cfg.TaskFile.QueuePath))
	}

	var dispatchOpts []dispatch.Option
	if gh != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithGitHubAuthCheck(gh.CheckAuth))
	}
	if sync != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithClaimChecker(sync))
	}
	disp := dispatch.New(cfg, s, rt, sv, dispatchOpts...)

	ev := evaluator.New(sv, gh, adv)
	rc := retry.New(cfg, s, nil)

	var prEngine *prlifecycle.Engine
	if gh != nil {
		prEngine = prlifecycle.New(cfg, s, gh, adv, sv, tmpl)
	}

	driver := pulse.New(cfg, s, disp, ev, rc, prEngine, reconciler, queue, gh, log)

	return &app{cfg: cfg, log: log, store: s, gh: gh, driver: driver}, nil
}
