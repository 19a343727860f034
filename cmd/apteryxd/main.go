// Copyright (c) 2018-2020, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

/*
apteryxd is the daemon hosting the shared, hierarchical, path-addressed
datastore described by this repository: the in-memory path tree, the
callback registry (watchers, validators, providers, refreshers,
indexers, proxies), and the binary RPC transport that exposes both to
local and remote clients.

Usage:

	-socketfile=<path>
		UNIX socket apteryxd listens on when not handed a socket by
		systemd (default: /run/apteryx/apteryxd.sock).

	-tcp=<host:port>
		Additional tcp:// listener to bind at startup, beyond the
		primary socket. Empty disables it.

	-debughttp=<host:port>
		Address for the optional /metrics and /healthz HTTP listener.
		Empty disables it.

	-workers=<n>
		Bound on concurrent in-flight RPC requests (default 8,
		mirrors the dispatcher's own default pool size).

	-pidfile=<path>
		Write the daemon's pid to the given file.

	-logfile=<path>
		Redirect stdout/stderr to the given file.

	SIGUSR1
		Toggle CPU profiling, written to -cpuprofile on the second
		signal.

	SIGUSR2
		Write a heap profile to -memprofile.

	SIGTERM/SIGINT
		With -debughttp set, give that listener up to -shutdowngrace
		to finish in-flight HTTP requests, then exit; otherwise exit
		at once. Queued watcher callbacks are not drained.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"log/syslog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"

	"github.com/cpackham-atlnz/apteryx"
	"github.com/cpackham-atlnz/apteryx/internal/httpapi"
	"github.com/cpackham-atlnz/apteryx/pkg/dispatch"
	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/refresh"
	"github.com/cpackham-atlnz/apteryx/pkg/registry"
	"github.com/cpackham-atlnz/apteryx/pkg/rpc"
	"github.com/cpackham-atlnz/apteryx/pkg/selfconfig"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

const basepath = "/run/apteryx"

var (
	socket      = flag.String("socketfile", basepath+"/apteryxd.sock", "Path to the primary UNIX listener.")
	tcpAddr     = flag.String("tcp", "", "Additional tcp:// listener, e.g. 0.0.0.0:9237.")
	debugHTTP   = flag.String("debughttp", "", "Address for the optional /metrics and /healthz listener.")
	workers     = flag.Int("workers", 8, "Bound on concurrent in-flight RPC requests.")
	pidfile     = flag.String("pidfile", basepath+"/apteryxd.pid", "Write pid to the supplied file.")
	logfile     = flag.String("logfile", "", "Redirect std{out,err} to the supplied file.")
	cpuprofile  = flag.String("cpuprofile", basepath+"/apteryxd.pprof", "Write cpu profile to supplied file on SIGUSR1.")
	memprofile  = flag.String("memprofile", basepath+"/apteryxd_mem.pprof", "Write memory profile to specified file on SIGUSR2.")
	shutdownMax = flag.Duration("shutdowngrace", 2*time.Second, "Grace period for the debug HTTP listener's in-flight requests during shutdown.")
)

var (
	elog        *log.Logger
	runningprof bool
	cpuproffile *os.File
)

func fatal(err error) {
	if err != nil {
		if elog != nil {
			elog.Fatal(err)
		}
		log.Fatal(err)
	}
}

func openLogfile() {
	if *logfile == "" {
		return
	}
	f, err := os.OpenFile(*logfile, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0640)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	defer f.Close()
	syscall.Dup2(int(f.Fd()), 1)
	syscall.Dup2(int(f.Fd()), 2)
}

func initLogging() *apteryx.Context {
	openLogfile()
	if *logfile == "" {
		elog = log.New(os.Stderr, "", 0)
	} else {
		// rsyslog may not be up yet even though init says it is;
		// NewLogger makes one attempt at the syslog socket and falls
		// back to stderr if it cannot reach it.
		elog = apteryx.NewLogger(syslog.LOG_ERR|syslog.LOG_DAEMON, 0)
	}
	dlog := apteryx.NewLogger(syslog.LOG_DEBUG|syslog.LOG_DAEMON, 0)
	wlog := apteryx.NewLogger(syslog.LOG_WARNING|syslog.LOG_DAEMON, 0)
	return &apteryx.Context{
		Config: &apteryx.Config{Socket: *socket, Pidfile: *pidfile, Logfile: *logfile, Workers: *workers},
		Dlog:   dlog,
		Elog:   elog,
		Wlog:   wlog,
	}
}

func sigProfiler() {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGUSR1, syscall.SIGUSR2)
	for sig := range sigch {
		switch sig {
		case syscall.SIGUSR1:
			if !runningprof {
				f, err := os.Create(*cpuprofile)
				if err != nil {
					elog.Println(err)
					continue
				}
				pprof.StartCPUProfile(f)
				cpuproffile = f
				runningprof = true
			} else {
				pprof.StopCPUProfile()
				cpuproffile.Close()
				runningprof = false
			}
		case syscall.SIGUSR2:
			f, err := os.Create(*memprofile)
			if err != nil {
				elog.Println(err)
				continue
			}
			pprof.WriteHeapProfile(f)
			f.Close()
		}
	}
}

func writePid() {
	if *pidfile == "" {
		return
	}
	f, err := os.OpenFile(*pidfile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
}

// primaryListener returns the daemon's main listener: a systemd
// socket-activated fd when present (matching the teacher's
// coreos/go-systemd/activation.Listeners use in cmd/configd/main.go,
// updated to the v22 module path), else a freshly bound UNIX socket
// at -socketfile.
func primaryListener() net.Listener {
	listeners, err := activation.Listeners()
	fatal(err)
	if len(listeners) > 0 && listeners[0] != nil {
		return listeners[0]
	}

	os.Remove(*socket)
	l, err := net.Listen("unix", *socket)
	fatal(err)
	fatal(os.Chmod(*socket, 0777))
	return l
}

func main() {
	debug.SetGCPercent(25)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx := initLogging()

	fatal(os.MkdirAll(basepath, 0755))
	go sigProfiler()

	reg := registry.New()
	proxies := rpc.NewProxyClient(rpc.NewPool(0, 0))
	eng := engine.New(tree.New(), reg, refresh.New(), dispatch.New(dispatch.WithWorkers(*workers), dispatch.WithLogger(ctx.Elog)), proxies)

	srv := rpc.NewServer(eng, ctx.Elog, *workers)

	sc, err := selfconfig.New(eng, reg, srv, int32(os.Getpid()), &selfconfig.Loggers{Debug: ctx.Dlog, Error: ctx.Elog, Warn: ctx.Wlog})
	fatal(err)

	if *debugHTTP != "" {
		hl, err := net.Listen("tcp", *debugHTTP)
		fatal(err)
		h := httpapi.New(sc.MetricsRegistry())
		go func() {
			if err := h.Serve(hl); err != nil {
				ctx.Elog.Printf("apteryx: debug http listener stopped: %v", err)
			}
		}()
		go func() {
			<-shutdownSignal()
			h.Shutdown(*shutdownMax)
			os.Exit(0)
		}()
	}

	if *tcpAddr != "" {
		tl, err := net.Listen("tcp", *tcpAddr)
		fatal(err)
		go srv.Serve(tl)
	}

	l := primaryListener()
	writePid()

	runtime.GC()
	debug.FreeOSMemory()

	fatal(srv.Serve(l))
}

// shutdownSignal returns a channel that fires once on SIGTERM/SIGINT,
// for components (the debug HTTP listener) that want a bounded grace
// window instead of an immediate process exit.
func shutdownSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	return ch
}
