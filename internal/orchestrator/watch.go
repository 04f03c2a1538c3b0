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

package orchestrator

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// WatchConfig controls a Watcher's schedule: a fixed interval between
// runs, and a shorter retry wait used only after a run returns an
// error (so a transient backend outage doesn't wait a full interval
// before trying again).
type WatchConfig struct {
	Interval  time.Duration
	RetryWait time.Duration
}

// Watcher repeats Run against one Environment on a schedule, the way
// ImportRunner drives FullImport/IncrementalImport for one tenant: a
// single goroutine, a quit channel Stop blocks on, and panic recovery
// so one bad run doesn't take the process down.
type Watcher struct {
	quit chan int

	mu      sync.Mutex
	stopped bool
}

// StartWatcher launches a Watcher that calls Run against env every
// WatchConfig.Interval, backing off to RetryWait after a failed run,
// until Stop is called.
func StartWatcher(env *Environment, opts Options, wc WatchConfig, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.Writer(), fmt.Sprintf("orchestrator(%s): ", env.Config.CachePath), log.LstdFlags)
	}
	w := &Watcher{quit: make(chan int)}
	go w.loop(env, opts, wc, logger)
	return w
}

// Stop ends the watch loop, blocking until the current tick (if any)
// finishes.
func (w *Watcher) Stop() {
	if w.isStopped() {
		return
	}
	w.quit <- 0
	<-w.quit
}

func (w *Watcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *Watcher) setStopped() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

func (w *Watcher) tick(env *Environment, opts Options, logger *log.Logger) (failed bool, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("unexpected panic during scheduled run")
			logger.Printf("recovered: %v", r)
			logger.Println("stacktrace:\n" + string(debug.Stack()))
			panicErr = fmt.Errorf("recovered from panic: %v", r)
		}
	}()

	ctx := context.Background()
	if _, err := Run(ctx, env, opts); err != nil {
		logger.Printf("scheduled run failed: %s", err)
		return true, nil
	}
	return false, nil
}

func (w *Watcher) loop(env *Environment, opts Options, wc WatchConfig, logger *log.Logger) {
	interval := wc.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			w.quit <- 0
			return
		default:
		}

		select {
		case <-w.quit:
			w.quit <- 0
			return
		case <-ticker.C:
			failed, err := w.tick(env, opts, logger)
			if err != nil {
				logger.Printf("stopping watcher: %s", err)
				w.setStopped()
				select {
				case <-w.quit:
					w.quit <- 0
				default:
				}
				return
			}
			if failed && wc.RetryWait > 0 {
				ticker.Reset(wc.RetryWait)
			} else {
				ticker.Reset(interval)
			}
		}
	}
}
