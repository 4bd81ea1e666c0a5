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

// Package config reads the daemon's key=value configuration file (spec §6)
// into a typed DaemonConfig, watches it for changes, and exposes the same
// keys as command-line flags. Out of scope for the core per spec.md, but
// carried as the ambient config layer every daemon needs.
package config

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"

	"github.com/nabbar/sbn/internal/erx"
)

const (
	ErrorParse erx.CodeError = iota + erx.MinPkgConfig
	ErrorRead
	ErrorDecode
	ErrorWatch
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgConfig, func(code erx.CodeError) string {
		switch code {
		case ErrorParse:
			return "config: malformed key=value line"
		case ErrorRead:
			return "config: failed to read configuration file"
		case ErrorDecode:
			return "config: failed to decode configuration into typed sections"
		case ErrorWatch:
			return "config: failed to watch configuration file for changes"
		default:
			return ""
		}
	})
}

// DiscovererConfig mirrors the `discoverer.*` keys driving §4.8.
type DiscovererConfig struct {
	Fanout            int           `mapstructure:"fanout"`
	ScanInterval      time.Duration `mapstructure:"scan-interval"`
	FailureTimeout    time.Duration `mapstructure:"failure-timeout"`
	CandidateCooldown time.Duration `mapstructure:"candidate-cooldown"`
}

// RemoteConfig mirrors the `remote.*` keys driving §4.6's socket pipeline.
type RemoteConfig struct {
	Interfaces        []string      `mapstructure:"interfaces"`
	Port              uint16        `mapstructure:"port"`
	ConnectionTimeout time.Duration  `mapstructure:"connection-timeout"`
	IdleTimeout       time.Duration  `mapstructure:"idle-timeout"`
	MaxRetries        int            `mapstructure:"max-retries"`
	BackoffBase       time.Duration  `mapstructure:"backoff-base"`
	MinID             uint64         `mapstructure:"min-id"`
	MaxID             uint64         `mapstructure:"max-id"`
}

// ProcessConfig mirrors the `process.*` keys driving §4.5.
type ProcessConfig struct {
	AllowRoot bool `mapstructure:"allow-root"`
}

// FactoryConfig mirrors the `factory.*` keys driving §4.9's shutdown grace.
type FactoryConfig struct {
	ShutdownGrace time.Duration `mapstructure:"shutdown-grace"`
	Workers       int           `mapstructure:"workers"`
}

// UnixConfig mirrors the `unix.*` keys driving the CLI pipeline.
type UnixConfig struct {
	SocketPath string `mapstructure:"socket-path"`
}

// DaemonConfig is the fully decoded configuration tree for one daemon.
type DaemonConfig struct {
	Discoverer DiscovererConfig `mapstructure:"discoverer"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Process    ProcessConfig    `mapstructure:"process"`
	Factory    FactoryConfig    `mapstructure:"factory"`
	Unix       UnixConfig       `mapstructure:"unix"`
}

// Default returns the configuration the daemon runs with when no file or
// flag overrides a key.
func Default() *DaemonConfig {
	return &DaemonConfig{
		Discoverer: DiscovererConfig{
			Fanout:            2,
			ScanInterval:      5 * time.Second,
			FailureTimeout:    30 * time.Second,
			CandidateCooldown: 10 * time.Second,
		},
		Remote: RemoteConfig{
			Port:              7321,
			ConnectionTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxRetries:        5,
			BackoffBase:       200 * time.Millisecond,
			MinID:             1,
			MaxID:             1 << 62,
		},
		Factory: FactoryConfig{
			ShutdownGrace: 10 * time.Second,
			Workers:       4,
		},
		Unix: UnixConfig{
			SocketPath: "/var/run/sbnd.sock",
		},
	}
}

// ParseKV reads the `key=value` format of spec §6: one assignment per line,
// blank lines and lines starting with '#' ignored, section keys use a dotted
// path ("discoverer.fanout"). Nested nesting for mapstructure is expressed by
// splitting the dotted path into a map tree.
func ParseKV(r io.Reader) (map[string]any, error) {
	root := map[string]any{}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		idx := strings.IndexByte(raw, '=')
		if idx < 0 {
			return nil, ErrorParse.Error(nil)
		}

		key := strings.TrimSpace(raw[:idx])
		val := strings.TrimSpace(raw[idx+1:])
		if key == "" {
			return nil, ErrorParse.Error(nil)
		}

		setDotted(root, strings.Split(key, "."), parseScalar(val))
	}
	if err := sc.Err(); err != nil {
		return nil, ErrorRead.Error(err)
	}

	return root, nil
}

func setDotted(root map[string]any, path []string, val any) {
	node := root
	for _, p := range path[:len(path)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[path[len(path)-1]] = val
}

// parseScalar renders comma-separated values as a string slice (used by
// `remote.interfaces`) and leaves everything else as a plain string;
// mapstructure's weakly-typed decode handles the remaining bool/int/duration
// conversions.
func parseScalar(v string) any {
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return v
}

// Load reads path, parses it with ParseKV, and decodes the result into a
// DaemonConfig seeded from Default() so unset keys keep their defaults.
func Load(path string) (*DaemonConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrorRead.Error(err)
	}
	defer f.Close()

	raw, err := ParseKV(f)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           cfg,
	})
	if err != nil {
		return nil, ErrorDecode.Error(err)
	}
	if err = dec.Decode(raw); err != nil {
		return nil, ErrorDecode.Error(err)
	}

	return cfg, nil
}

// Watcher reloads a DaemonConfig from path whenever fsnotify reports a write,
// handing the fresh value to onReload.
type Watcher struct {
	mu     sync.Mutex
	path   string
	watch  *fsnotify.Watcher
	stopCh chan struct{}
}

// Watch starts watching path in the background; onReload is called with the
// newly parsed configuration on every write event. Parse errors are not
// fatal to the watch loop: the previous configuration stays in effect.
func Watch(path string, onReload func(*DaemonConfig, error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ErrorWatch.Error(err)
	}
	if err = w.Add(path); err != nil {
		_ = w.Close()
		return nil, ErrorWatch.Error(err)
	}

	wt := &Watcher{path: path, watch: w, stopCh: make(chan struct{})}
	go wt.run(onReload)
	return wt, nil
}

func (w *Watcher) run(onReload func(*DaemonConfig, error)) {
	for {
		select {
		case ev, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			onReload(cfg, err)
		case _, ok := <-w.watch.Errors:
			if !ok {
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

// Stop ends the watch goroutine and releases the underlying inotify/kqueue fd.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	_ = w.watch.Close()
}

