/*
 *  This file is part of the EGIL SCIM client.
 *
 *  Copyright (C) 2017-2024 Föreningen Sambruk
 *
 *  This program is free software: you can redistribute it and/or modify
 *  it under the terms of the GNU Affero General Public License as
 *  published by the Free Software Foundation, either version 3 of the
 *  License, or (at your option) any later version.

 *  This program is distributed in the hope that it will be useful,
 *  but WITHOUT ANY WARRANTY; without even the implied warranty of
 *  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *  GNU Affero General Public License for more details.

 *  You should have received a copy of the GNU Affero General Public License
 *  along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Command egilscim reconciles school-domain records from a configured
// source backend against a downstream SCIM service, one configuration
// file per invocation argument (§6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"github.com/Sambruk/egilscim/internal/config"
	"github.com/Sambruk/egilscim/internal/orchestrator"
)

// repeatedFlag collects every occurrence of a repeatable flag, used
// for --skip-load TYPE (may appear more than once).
type repeatedFlag []string

func (r *repeatedFlag) String() string { return fmt.Sprint([]string(*r)) }
func (r *repeatedFlag) Set(value string) error {
	*r = append(*r, value)
	return nil
}

func main() {
	var skipLoad repeatedFlag
	rebuildCache := flag.Bool("rebuild-cache", false, "treat every current object as new, ignoring the existing cache")
	test := flag.Bool("test", false, "run the full pipeline without dispatching SCIM operations or writing the cache")
	lockTimeout := flag.Int("lock-timeout", 0, "seconds to wait for the cache file lock (0 uses the configuration file's own setting)")
	auditLogPath := flag.String("audit-log", "", "override the configuration file's audit-log path")
	watch := flag.Bool("watch", false, "keep running, re-syncing every configuration file on a schedule instead of exiting after one pass")
	watchInterval := flag.Duration("watch-interval", time.Hour, "time between scheduled runs under --watch")
	flag.Var(&skipLoad, "skip-load", "exclude a type from loading and reconciliation this run (repeatable)")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: egilscim [flags] config-file [config-file ...]")
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	opts := orchestrator.Options{
		RebuildCache: *rebuildCache,
		Test:         *test,
	}
	if len(skipLoad) > 0 {
		opts.SkipLoad = make(map[string]bool, len(skipLoad))
		for _, typ := range skipLoad {
			opts.SkipLoad[typ] = true
		}
	}
	if *lockTimeout > 0 {
		opts.LockTimeout = time.Duration(*lockTimeout) * time.Second
	}

	envs := make([]*orchestrator.Environment, 0, flag.NArg())
	for _, path := range flag.Args() {
		cfg, err := config.Load(path)
		if err != nil {
			logger.Printf("%s: %s", path, err)
			os.Exit(1)
		}
		if *auditLogPath != "" {
			cfg.AuditLogPath = *auditLogPath
		}

		env, err := buildEnvironment(cfg, log.New(os.Stderr, path+": ", log.LstdFlags))
		if err != nil {
			logger.Printf("%s: %s", path, err)
			os.Exit(1)
		}
		envs = append(envs, env)
	}

	if *watch {
		runWatching(envs, opts, *watchInterval, logger)
		return
	}

	exitCode := 0
	for i, env := range envs {
		if _, err := orchestrator.Run(context.Background(), env, opts); err != nil {
			logger.Printf("%s: %s", flag.Arg(i), err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// program adapts a set of running orchestrator Watchers to
// kardianos/service's Interface, so --watch can be installed and run
// as a long-lived OS service instead of left to cron, the way
// cmd/windermere/main.go is service-wrapped.
type program struct {
	envs     []*orchestrator.Environment
	opts     orchestrator.Options
	interval time.Duration
	logger   *log.Logger

	watchers []*orchestrator.Watcher
}

func (p *program) Start(s service.Service) error {
	for _, env := range p.envs {
		wc := orchestrator.WatchConfig{Interval: p.interval, RetryWait: 30 * time.Second}
		p.watchers = append(p.watchers, orchestrator.StartWatcher(env, p.opts, wc, p.logger))
	}
	return nil
}

func (p *program) Stop(s service.Service) error {
	for _, w := range p.watchers {
		w.Stop()
	}
	return nil
}

// runWatching keeps every configuration file's orchestrator running on
// a schedule until the process receives a shutdown signal, mirroring
// cmd/windermere/main.go's waitForShutdownSignal, but wrapped in a
// kardianos/service Interface so the same binary can also be
// installed as a proper OS service for --watch deployments.
func runWatching(envs []*orchestrator.Environment, opts orchestrator.Options, interval time.Duration, logger *log.Logger) {
	prg := &program{envs: envs, opts: opts, interval: interval, logger: logger}

	svcConfig := &service.Config{
		Name:        "egilscim",
		DisplayName: "EGIL SCIM client",
		Description: "Reconciles school-domain records against a downstream SCIM service.",
	}

	svc, err := service.New(prg, svcConfig)
	if err != nil {
		// Not running under a service manager (or one isn't available
		// on this platform) — fall back to running the watch loop
		// directly until a shutdown signal arrives.
		if startErr := prg.Start(nil); startErr != nil {
			logger.Fatalf("failed to start watch loop: %s", startErr)
		}
		waitForShutdownSignal()
		prg.Stop(nil)
		return
	}

	if err := svc.Run(); err != nil {
		logger.Fatalf("service run failed: %s", err)
	}
}

func waitForShutdownSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
