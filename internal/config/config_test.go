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

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseKVBuildsNestedTree(t *testing.T) {
	in := strings.NewReader(`
# a comment
discoverer.fanout=3
remote.interfaces=10.0.0.0/24,10.0.1.0/24
remote.port=9000

process.allow-root=true
`)

	tree, err := ParseKV(in)
	if err != nil {
		t.Fatalf("ParseKV() error = %v", err)
	}

	discoverer, ok := tree["discoverer"].(map[string]any)
	if !ok || discoverer["fanout"] != "3" {
		t.Fatalf("discoverer.fanout not parsed: %#v", tree["discoverer"])
	}

	remote, ok := tree["remote"].(map[string]any)
	if !ok {
		t.Fatalf("remote section missing: %#v", tree)
	}
	ifaces, ok := remote["interfaces"].([]string)
	if !ok || len(ifaces) != 2 {
		t.Fatalf("remote.interfaces = %#v, want a 2-element slice", remote["interfaces"])
	}
}

func TestParseKVRejectsMalformedLine(t *testing.T) {
	if _, err := ParseKV(strings.NewReader("not-an-assignment")); err == nil {
		t.Fatalf("ParseKV() error = nil, want an error for a line without '='")
	}
}

func TestLoadDecodesIntoDaemonConfigOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sbnd.conf"
	if err := os.WriteFile(path, []byte("discoverer.fanout=5\nremote.idle-timeout=2m\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Discoverer.Fanout != 5 {
		t.Fatalf("Discoverer.Fanout = %d, want 5", cfg.Discoverer.Fanout)
	}
	if cfg.Remote.IdleTimeout != 2*time.Minute {
		t.Fatalf("Remote.IdleTimeout = %v, want 2m", cfg.Remote.IdleTimeout)
	}
	// untouched keys keep Default()'s value.
	if cfg.Factory.Workers != Default().Factory.Workers {
		t.Fatalf("Factory.Workers = %d, want the default %d", cfg.Factory.Workers, Default().Factory.Workers)
	}
}

