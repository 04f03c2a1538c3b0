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

// Package reconcile implements C5: diffing the freshly rendered object
// list against the previous cache, dispatching SCIM operations, and
// producing the list that gets written back to the cache, grounded on
// scim.cpp's ScimActions::perform / copy_func / create_func /
// update_func / delete_func.
package reconcile

import (
	"context"
	"time"

	"github.com/Sambruk/egilscim/internal/audit"
	"github.com/Sambruk/egilscim/internal/object"
	"github.com/Sambruk/egilscim/internal/scimclient"
	"github.com/Sambruk/egilscim/internal/threshold"
)

// Counters tracks per-type outcome counts (§4.5's "Audit counters").
// Engine.Run returns them for every type once the whole run is done;
// nothing is emitted between types.
type Counters struct {
	Copies, CopyFailures    int
	Creates, CreateFailures int
	Updates, UpdateFailures int
	Deletes, DeleteFailures int
}

// TypeConfig names the SCIM endpoint a type dispatches to.
type TypeConfig struct {
	Endpoint string
}

// Engine runs one reconciliation pass across every type in SendOrder.
type Engine struct {
	SendOrder []string
	Types     map[string]TypeConfig
	Guard     *threshold.Guard
	Dispatch  scimclient.Dispatcher
	Audit     *audit.Log
	Now       func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run reconciles current against cached, returning the object list to
// persist as the new cache and the per-type counters. It returns an
// error without touching SCIM or building a new list when the
// threshold guard rejects the run (§4.5: "runs before any SCIM
// operation is dispatched").
func (e *Engine) Run(ctx context.Context, current, cached *object.List) (*object.List, map[string]Counters, error) {
	cachedCounts := make(map[string]int, len(e.SendOrder))
	currentCounts := make(map[string]int, len(e.SendOrder))
	for _, typ := range e.SendOrder {
		cachedCounts[typ] = cached.CountByType(typ)
		currentCounts[typ] = current.CountByType(typ)
	}
	if e.Guard != nil {
		if err := e.Guard.CheckAll(e.SendOrder, cachedCounts, currentCounts); err != nil {
			return nil, nil, err
		}
	}

	newList := object.NewList()
	counters := make(map[string]Counters, len(e.SendOrder))

	for _, typ := range e.SendOrder {
		c := e.reconcileType(ctx, typ, current, cached, newList)
		counters[typ] = c
	}

	return newList, counters, nil
}

func (e *Engine) endpoint(typ string) string {
	if cfg, ok := e.Types[typ]; ok {
		return cfg.Endpoint
	}
	return typ
}

func (e *Engine) reconcileType(ctx context.Context, typ string, current, cached, newList *object.List) Counters {
	var c Counters
	endpoint := e.endpoint(typ)

	currentOfType := current.ByType(typ)
	cachedOfType := cached.ByType(typ)
	cachedByID := make(map[string]*object.Rendered, len(cachedOfType))
	for _, r := range cachedOfType {
		cachedByID[r.ID] = r
	}
	currentIDs := make(map[string]struct{}, len(currentOfType))

	for _, cur := range currentOfType {
		currentIDs[cur.ID] = struct{}{}
		prior, existed := cachedByID[cur.ID]

		switch {
		case existed && prior.Equal(cur):
			newList.Add(prior)
			c.Copies++

		case existed:
			outcome, err := e.Dispatch.Update(ctx, endpoint, cur.ID, cur.JSON)
			// The freshly rendered object always enters the new cache,
			// success or failure: a failed update is therefore not
			// retried next run unless the rendered body changes again.
			newList.Add(cur)
			if err != nil || !outcome.Success {
				c.UpdateFailures++
				e.recordFailure(typ, cur, audit.Update, outcome.Status, err)
			} else {
				c.Updates++
				e.record(typ, cur, audit.Update, audit.None)
			}

		default:
			outcome, err := e.Dispatch.Create(ctx, endpoint, cur.ID, cur.JSON)
			if err != nil || !outcome.Success {
				c.CreateFailures++
				e.recordFailure(typ, cur, audit.Create, outcome.Status, err)
				// not added to the new cache: retried next run
			} else {
				c.Creates++
				newList.Add(cur)
				e.record(typ, cur, audit.Create, audit.None)
			}
		}
	}

	for _, prior := range cachedOfType {
		if _, stillCurrent := currentIDs[prior.ID]; stillCurrent {
			continue
		}
		outcome, err := e.Dispatch.Delete(ctx, endpoint, prior.ID)
		notFound := err == nil && outcome.Status == 404
		switch {
		case err == nil && (outcome.Success || notFound):
			c.Deletes++
			e.record(typ, prior, audit.Delete, audit.None)
		default:
			c.DeleteFailures++
			newList.Add(prior) // retried next run
			e.recordFailure(typ, prior, audit.Delete, outcome.Status, err)
		}
	}

	return c
}

func (e *Engine) record(typ string, obj *object.Rendered, op audit.Operation, failure audit.FailureClass) {
	if e.Audit == nil {
		return
	}
	e.Audit.Record(e.now(), op, failure, typ, audit.Describe(typ, obj.ID, obj.JSON))
}

func (e *Engine) recordFailure(typ string, obj *object.Rendered, op audit.Operation, status int, err error) {
	failure := audit.Other
	if err == nil {
		failure = audit.ClassifyStatus(status)
	}
	e.record(typ, obj, op, failure)
}
