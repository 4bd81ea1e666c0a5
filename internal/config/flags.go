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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RegisterFlags exposes every DaemonConfig key as a persistent flag on cmd and
// binds it into v, mirroring the teacher's per-component RegisterFlag: flags
// win over the file, the file wins over Default().
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) error {
	d := Default()

	cmd.PersistentFlags().Int("discoverer.fanout", d.Discoverer.Fanout, "k-ary fan-out of the candidate-superior walk")
	cmd.PersistentFlags().Duration("discoverer.scan-interval", d.Discoverer.ScanInterval, "interval between superior reachability reprobes")
	cmd.PersistentFlags().Duration("discoverer.failure-timeout", d.Discoverer.FailureTimeout, "accepted and passed to the discoverer; no timeout-based subordinate removal uses it")
	cmd.PersistentFlags().Duration("discoverer.candidate-cooldown", d.Discoverer.CandidateCooldown, "minimum interval between probes to the same candidate")

	cmd.PersistentFlags().StringSlice("remote.interfaces", d.Remote.Interfaces, "bound interface CIDRs, one hierarchy per entry")
	cmd.PersistentFlags().Uint16("remote.port", d.Remote.Port, "TCP port every interface listens on")
	cmd.PersistentFlags().Duration("remote.connection-timeout", d.Remote.ConnectionTimeout, "outbound connection start timeout (T1)")
	cmd.PersistentFlags().Duration("remote.idle-timeout", d.Remote.IdleTimeout, "connection idle timeout (T2)")
	cmd.PersistentFlags().Int("remote.max-retries", d.Remote.MaxRetries, "bounded reconnect attempts before peer-loss")
	cmd.PersistentFlags().Duration("remote.backoff-base", d.Remote.BackoffBase, "base delay of the reconnect exponential back-off")
	cmd.PersistentFlags().Uint64("remote.min-id", d.Remote.MinID, "lower bound of the kernel id space; kernel id assignment does not read it")
	cmd.PersistentFlags().Uint64("remote.max-id", d.Remote.MaxID, "upper bound of the kernel id space; kernel id assignment does not read it")

	cmd.PersistentFlags().Bool("process.allow-root", d.Process.AllowRoot, "allow spawning child applications as uid 0")

	cmd.PersistentFlags().Duration("factory.shutdown-grace", d.Factory.ShutdownGrace, "grace window before Stop abandons still-running components")
	cmd.PersistentFlags().Int("factory.workers", d.Factory.Workers, "fixed worker count of the parallel pipeline")

	cmd.PersistentFlags().String("unix.socket-path", d.Unix.SocketPath, "path of the CLI unix-domain socket")

	return v.BindPFlags(cmd.PersistentFlags())
}

// FromViper decodes v's current key/value view (file defaults overridden by
// any bound flag) into a DaemonConfig.
func FromViper(v *viper.Viper) (*DaemonConfig, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ErrorDecode.Error(err)
	}
	return cfg, nil
}
