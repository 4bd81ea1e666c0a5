/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command sbnd is the scheduler daemon: it binds one hierarchy per
// configured interface, drives the five pipelines through the factory, and
// serves the CLI's submit/status/terminate kernels over a unix socket.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/nabbar/sbn/internal/app"
	"github.com/nabbar/sbn/internal/cluster"
	"github.com/nabbar/sbn/internal/config"
	"github.com/nabbar/sbn/internal/discoverer"
	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/hierarchy"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/metrics"
	"github.com/nabbar/sbn/internal/pipeline/parallel"
	"github.com/nabbar/sbn/internal/pipeline/process"
	"github.com/nabbar/sbn/internal/pipeline/socket"
	"github.com/nabbar/sbn/internal/pipeline/timer"
	"github.com/nabbar/sbn/internal/pipeline/unixsock"
	"github.com/nabbar/sbn/internal/registry"
)

func main() {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "sbnd",
		Short: "distributed hierarchical kernel scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	if err := config.RegisterFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cmd.PersistentFlags().String("config", "", "path to the key=value configuration file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the three-layer precedence spec §6 implies: flags win
// over the file, the file wins over Default().
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.DaemonConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.FromViper(v)
	}

	fileCfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	v.SetDefault("discoverer", fileCfg.Discoverer)
	v.SetDefault("remote", fileCfg.Remote)
	v.SetDefault("process", fileCfg.Process)
	v.SetDefault("factory", fileCfg.Factory)
	v.SetDefault("unix", fileCfg.Unix)
	return config.FromViper(v)
}

func run(cfg *config.DaemonConfig) error {
	logger := log.New(context.Background())
	getLog := func() log.Logger { return logger }

	m := metrics.New()
	types := registry.NewTypes()
	instance := registry.NewInstance()

	discoverer.RegisterTypes(types)
	cluster.RegisterTypes(types)

	router := factory.NewRouter(nil, m)
	deliver := factory.NewDeliverer(router)

	localApp := uint64(0)

	addrs, interfaces, err := resolveInterfaces(cfg.Remote.Interfaces, cfg.Remote.Port)
	if err != nil {
		return err
	}

	socketPipeline := socket.New(
		addrs,
		cfg.Remote.ConnectionTimeout,
		cfg.Remote.IdleTimeout,
		cfg.Remote.MaxRetries,
		cfg.Remote.BackoffBase,
		localApp,
		types,
		instance,
		deliver,
	)

	processPipeline := process.New(cfg.Process.AllowRoot, types, instance, deliver)

	parallelPipeline := parallel.New(cfg.Factory.Workers, router, getLog)

	timerPipeline := timer.New(router, discardSack{})

	disc := discoverer.New(
		interfaces,
		cfg.Discoverer.Fanout,
		cfg.Discoverer.ScanInterval,
		cfg.Discoverer.FailureTimeout,
		cfg.Discoverer.CandidateCooldown,
		rate.Limit(1), 1,
		socketPipeline,
		localApp,
	)

	if h, ok := disc.PrimaryHierarchy(); ok {
		router.Hierarchy = h
	}
	router.Parallel = parallelPipeline
	router.Timer = timerPipeline
	router.Socket = socketPipeline
	router.Process = processPipeline

	unixPipeline := unixsock.New(cfg.Unix.SocketPath, localApp, types, instance)

	sup := &supervisor{process: processPipeline, discoverer: disc, parallel: parallelPipeline, timer: timerPipeline}
	cluster.Bind(sup)

	f := factory.New()

	components := []struct {
		key string
		cpt factory.Component
	}{
		{"registry", registryComponent{}},
		{"discoverer", disc},
		{"pipeline.parallel", parallelPipeline},
		{"pipeline.timer", timerPipeline},
		{"pipeline.socket", socketPipeline},
		{"pipeline.process", processPipeline},
		{"pipeline.unixsock", unixPipeline},
	}

	for _, c := range components {
		c.cpt.Init(c.key, f.Context(), f.ComponentGet, getLog)
		f.ComponentSet(c.key, c.cpt)
	}

	if err = f.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if rerr := f.Reload(); rerr != nil {
				getLog().Error("sbnd: reload failed", rerr)
			}
			continue
		}
		break
	}

	f.Shutdown(cfg.Factory.ShutdownGrace)
	return nil
}

// resolveInterfaces parses the `remote.interfaces` CIDR list into the bound
// address (the address written in the CIDR entry) plus port, the shape both
// socket.New and discoverer.New need.
func resolveInterfaces(cidrs []string, port uint16) ([]netip.AddrPort, map[netip.Prefix]netip.AddrPort, error) {
	addrs := make([]netip.AddrPort, 0, len(cidrs))
	interfaces := make(map[netip.Prefix]netip.AddrPort, len(cidrs))

	for _, c := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, nil, fmt.Errorf("sbnd: invalid remote.interfaces entry %q: %w", c, err)
		}
		local := netip.AddrPortFrom(prefix.Addr(), port)
		addrs = append(addrs, local)
		interfaces[prefix] = local
	}

	return addrs, interfaces, nil
}

// discardSack forgets scheduled kernels abandoned on shutdown; the
// transaction log (not wired into this composition) would otherwise be the
// place replaying them from.
type discardSack struct{}

func (discardSack) Add(*kernel.Kernel) {}

// registryComponent satisfies factory.Component for the types/instance
// registries so they appear in the same dependency-ordered lifecycle as
// every pipeline, even though neither owns a goroutine of its own.
type registryComponent struct{}

func (registryComponent) Type() string                                                        { return "registry" }
func (registryComponent) Init(string, context.Context, factory.FuncComponentGet, log.FuncLog) {}
func (registryComponent) Dependencies() []string                                              { return nil }
func (registryComponent) RegisterFuncStart(_, _ factory.FuncEvent)                             {}
func (registryComponent) RegisterFuncReload(_, _ factory.FuncEvent)                            {}
func (registryComponent) IsStarted() bool                                                     { return true }
func (registryComponent) IsRunning() bool                                                     { return true }
func (registryComponent) Start() error                                                        { return nil }
func (registryComponent) Reload() error                                                       { return nil }
func (registryComponent) Stop()                                                               {}

// supervisor implements cluster.Supervisor on top of the live pipelines and
// discoverer, the daemon side of the CLI's submit/status/terminate kernels.
type supervisor struct {
	process    *process.Pipeline
	discoverer *discoverer.Discoverer
	parallel   *parallel.Pipeline
	timer      *timer.Pipeline
}

func (s *supervisor) Submit(argv []string) (uint64, error) {
	a, err := app.New(argv)
	if err != nil {
		return 0, err
	}
	if err = s.process.Add(a); err != nil {
		return 0, err
	}
	return a.ID, nil
}

func (s *supervisor) Terminate(applicationID uint64) error {
	return s.process.Kill(applicationID)
}

func (s *supervisor) Snapshot() cluster.Snapshot {
	snap := cluster.Snapshot{}

	h, ok := s.discoverer.PrimaryHierarchy()
	if !ok {
		return snap
	}

	snap.Local = hierarchy.Node{Address: h.LocalAddress}
	if sup, has := h.Superior(); has {
		snap.Superior, snap.HasSuperior = sup, true
	}
	snap.Subordinates = h.Subordinates()
	snap.ParallelQueueDepth = s.parallel.QueueDepth()
	snap.TimerQueueDepth = s.timer.QueueDepth()

	return snap
}
