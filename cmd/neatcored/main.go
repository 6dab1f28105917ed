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

// Command neatcored is the thin process host spec.md §6 calls out as a
// collaborator: it exposes the HTTP control surface (POST /v1/config,
// /v1/start, /v1/stop, GET /metrics) that constructs and drives a
// runtime.Dispatch, but owns no protocol logic itself. Routing, auth,
// and deployment beyond this belong to the (out-of-scope) deployment
// tooling; this binary only needs to be drivable by something shaped
// like it.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/neatsys-bench/neatcore/internal/cryptoinit"
	"github.com/neatsys-bench/neatcore/internal/logger"
)

func main() {
	addr := flag.String("addr", ":8085", "control surface bind address")
	flag.Parse()

	log := logger.NewDefaultLogger()
	ctrl := newController(log)

	mux := http.NewServeMux()
	ctrl.registerRoutes(mux)

	srv := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("neatcored: control surface listening", logger.String("addr", *addr))
		serveErr <- srv.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("neatcored: control surface failed", logger.Error(err))
			exitCode = 1
		}
	case <-sigCtx.Done():
		log.Info("neatcored: shutdown signal received")
	case <-ctrl.fatal():
		log.Error("neatcored: dispatch aborted", logger.Error(ctrl.fatalErrVal()))
		exitCode = 1
	}

	ctrl.stopDispatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("neatcored: http shutdown", logger.Error(err))
	}

	os.Exit(exitCode)
}
