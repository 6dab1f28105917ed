// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/neatsys-bench/neatcore/config"
	"github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/ingress/transport"
	"github.com/neatsys-bench/neatcore/internal/logger"
	"github.com/neatsys-bench/neatcore/internal/metrics"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/runtime"
)

// controller owns the control surface's mutable state: the most
// recently accepted Config, the Dispatch built from it, and whether
// that Dispatch is currently running. One controller per process;
// cmd/neatcored has no notion of hosting more than one Dispatch.
type controller struct {
	log *logger.StructuredLogger

	mu        sync.Mutex
	cfg       *config.Config
	dispatch  *runtime.Dispatch
	tr        transport.Transport
	cancelRun context.CancelFunc
	running   bool

	fatalCh  chan struct{}
	fatalErr error
	once     sync.Once
}

func newController(log *logger.StructuredLogger) *controller {
	return &controller{
		log:     log,
		fatalCh: make(chan struct{}),
	}
}

func (c *controller) fatal() <-chan struct{} { return c.fatalCh }

func (c *controller) fatalErrVal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}

// authSecret reads the active Config's Control.AuthSecret, or "" if no
// Config has been accepted yet.
func (c *controller) authSecret() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return ""
	}
	return c.cfg.Control.AuthSecret
}

// registerRoutes installs the four control-surface routes.
// POST /v1/start and /v1/stop are bearer-auth-gated when
// Control.AuthSecret is set (spec §6.2); /v1/config and /metrics are
// not, so a fresh process can always be configured and scraped before
// its first AuthSecret-bearing config is ever accepted.
func (c *controller) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/config", withRequestID(c.handleConfig))
	mux.HandleFunc("POST /v1/start", requireAuth(c.authSecret, withRequestID(c.handleStart)))
	mux.HandleFunc("POST /v1/stop", requireAuth(c.authSecret, withRequestID(c.handleStop)))
	mux.Handle("GET /metrics", metrics.Handler())
}

// withRequestID stamps a fresh UUID onto the request's logging context
// before handing off to next, the same per-request correlation id idiom
// the teacher's HTTP layer uses.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), "request_id", reqID)
		next(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// handleConfig accepts a new Config, validates it, and builds (but does
// not start) the Dispatch it describes. A Dispatch already running is
// left untouched; call /v1/stop first to replace it.
func (c *controller) handleConfig(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		writeError(w, http.StatusConflict, logger.ErrCodeAlreadyRunning, "stop the running dispatch before posting a new config")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "failed to read request body")
		return
	}

	cfg, err := config.ParseDocument(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, err.Error())
		return
	}

	if verrs := config.Validate(cfg); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    logger.ErrCodeInvalidInput,
			"message": "config validation failed",
			"errors":  msgs,
		})
		return
	}

	dispatch, tr, err := buildDispatch(cfg, c.log)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, logger.ErrCodeConfiguration, err.Error())
		return
	}

	if c.tr != nil {
		_ = c.tr.Close()
	}
	c.cfg = cfg
	c.dispatch = dispatch
	c.tr = tr

	writeJSON(w, http.StatusOK, map[string]string{"state": dispatch.State()})
}

// handleStart begins running the most recently configured Dispatch.
func (c *controller) handleStart(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatch == nil {
		writeError(w, http.StatusPreconditionFailed, logger.ErrCodeConfiguration, "no config accepted yet, POST /v1/config first")
		return
	}
	if c.running {
		writeError(w, http.StatusConflict, logger.ErrCodeAlreadyRunning, "dispatch is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.running = true

	dispatch := c.dispatch
	go func() {
		err := dispatch.RunWithTransport(ctx)
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()

		if err != nil && err != context.Canceled {
			c.log.Error("neatcored: dispatch run ended with error", logger.Error(err))
			c.mu.Lock()
			c.fatalErr = err
			c.mu.Unlock()
			c.once.Do(func() { close(c.fatalCh) })
		}
	}()

	writeJSON(w, http.StatusOK, map[string]string{"state": "running"})
}

// handleStop signals the running Dispatch to stop and cancels its run
// context, then returns "stopping" without waiting for handleStart's
// goroutine to observe it.
func (c *controller) handleStop(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	dispatch := c.dispatch
	cancel := c.cancelRun
	running := c.running
	c.mu.Unlock()

	if !running || dispatch == nil {
		writeError(w, http.StatusConflict, logger.ErrCodeConfiguration, "dispatch is not running")
		return
	}

	dispatch.Stop()
	if cancel != nil {
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": "stopping"})
}

// stopDispatch is main's best-effort shutdown hook: cancel whatever is
// running so RunWithTransport's goroutines unwind before the process
// exits.
func (c *controller) stopDispatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatch != nil {
		c.dispatch.Stop()
	}
	if c.cancelRun != nil {
		c.cancelRun()
	}
	if c.tr != nil {
		_ = c.tr.Close()
	}
}

// buildDispatch wires a Config into a ready-to-Run Dispatch: the
// identity Table from Peers, this process's own signing KeyPair from
// Crypto, a message Registry populated by the selected protocol's
// RegisterInto, and a UDP transport bound to this process's own
// advertised address.
func buildDispatch(cfg *config.Config, log *logger.StructuredLogger) (*runtime.Dispatch, transport.Transport, error) {
	table, err := buildTable(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("identity table: %w", err)
	}

	selfKey, err := keyPairFromHex(cfg.Crypto.KeyType, cfg.Crypto.PrivateKey, fmt.Sprintf("self-%d", cfg.Self))
	if err != nil {
		return nil, nil, fmt.Errorf("signing key: %w", err)
	}

	mgr := crypto.NewManager()
	if err := mgr.StoreKeyPair(selfKey); err != nil {
		return nil, nil, fmt.Errorf("store signing key: %w", err)
	}

	var localX25519 crypto.KeyPair
	if cfg.Crypto.LocalX25519PrivateKey != "" {
		localX25519, err = keyPairFromHex(string(crypto.KeyTypeX25519), cfg.Crypto.LocalX25519PrivateKey, fmt.Sprintf("self-x25519-%d", cfg.Self))
		if err != nil {
			return nil, nil, fmt.Errorf("local X25519 key: %w", err)
		}
	}

	registry := message.NewRegistry()
	receiver, err := buildReceiver(cfg.Protocol, table, selfKey, registry)
	if err != nil {
		return nil, nil, err
	}

	self, _ := table.Lookup(table.Self())
	tr, err := transport.NewUDPTransport(self.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("bind transport: %w", err)
	}

	dispatch, err := runtime.New(receiver, runtime.Config{
		Table:       table,
		Manager:     mgr,
		Transport:   tr,
		Registry:    registry,
		LocalX25519: localX25519,
		MinPace:     cfg.Pace.MinPace,
		PaceSeed:    cfg.Pace.Seed,
		Logger:      logger.NewAdapter(log),
		Metrics:     metrics.NewDispatchRecorder(),
	})
	if err != nil {
		_ = tr.Close()
		return nil, nil, fmt.Errorf("construct dispatch: %w", err)
	}

	return dispatch, tr, nil
}

func buildTable(cfg *config.Config) (*identity.Table, error) {
	members := make([]identity.Identity, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		pub, err := hex.DecodeString(p.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("peer %d: decode public key: %w", p.Index, err)
		}
		members = append(members, identity.Identity{
			Index:     identity.Index(p.Index),
			Address:   p.Address,
			PublicKey: pub,
			KeyType:   crypto.KeyType(p.KeyType),
		})
	}
	return identity.NewTable(identity.Index(cfg.Self), members)
}
