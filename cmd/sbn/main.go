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

// Command sbn is the CLI front-end: submit, status and terminate each open
// one short-lived connection to the daemon's unix socket, send one service
// kernel, and wait for its reply (spec §6 "CLI"). status --watch renders a
// live bubbletea view fed by repeated status round-trips.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nabbar/sbn/internal/cluster"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/transport"
)

func main() {
	var socketPath string

	root := &cobra.Command{
		Use:   "sbn",
		Short: "control the sbnd scheduler daemon",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/var/run/sbnd.sock", "path of the daemon's CLI unix socket")

	root.AddCommand(submitCmd(&socketPath), statusCmd(&socketPath), terminateCmd(&socketPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func submitCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit -- <argv...>",
		Short: "spawn a new application",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk := &cluster.SubmitKernel{Correlation: cluster.NewCorrelationID(), Argv: args}
			reply, err := roundTrip(*socketPath, cluster.TypeSubmit, sk)
			if err != nil {
				return err
			}
			out := reply.(*cluster.SubmitKernel)
			if out.Error != "" {
				return fmt.Errorf("submit: %s", out.Error)
			}
			fmt.Printf("application_id=%d\n", out.ApplicationID)
			return nil
		},
	}
}

func terminateCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <application_id>",
		Short: "stop a running application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("terminate: invalid application id %q", args[0])
			}
			tk := &cluster.TerminateKernel{Correlation: cluster.NewCorrelationID(), ApplicationID: id}
			reply, err := roundTrip(*socketPath, cluster.TypeTerminate, tk)
			if err != nil {
				return err
			}
			out := reply.(*cluster.TerminateKernel)
			if out.Error != "" {
				return fmt.Errorf("terminate: %s", out.Error)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func statusCmd(socketPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "print the daemon's hierarchy position and pipeline load",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				p := tea.NewProgram(newStatusModel(*socketPath))
				_, err := p.Run()
				return err
			}

			snap, err := fetchStatus(*socketPath)
			if err != nil {
				return err
			}
			fmt.Print(renderStatus(snap))
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "render a live-updating tree view instead of a one-shot dump")
	return cmd
}

func fetchStatus(socketPath string) (cluster.Snapshot, error) {
	sk := &cluster.StatusKernel{Correlation: cluster.NewCorrelationID()}
	reply, err := roundTrip(socketPath, cluster.TypeStatus, sk)
	if err != nil {
		return cluster.Snapshot{}, err
	}
	return reply.(*cluster.StatusKernel).Result, nil
}

func renderStatus(s cluster.Snapshot) string {
	out := fmt.Sprintf("local:       %s\n", s.Local.Address)
	if s.HasSuperior {
		out += fmt.Sprintf("superior:    %s (weight %d)\n", s.Superior.Address, s.Superior.Weight)
	} else {
		out += "superior:    none\n"
	}
	out += fmt.Sprintf("subordinates: %d\n", len(s.Subordinates))
	for _, n := range s.Subordinates {
		out += fmt.Sprintf("  - %s (weight %d)\n", n.Address, n.Weight)
	}
	out += fmt.Sprintf("parallel queue depth: %d\n", s.ParallelQueueDepth)
	out += fmt.Sprintf("timer queue depth:    %d\n", s.TimerQueueDepth)
	return out
}

// roundTrip dials socketPath, sends one service kernel of typ, and blocks
// until the matching reply arrives or the connection closes. A CLI
// invocation is always exactly one request and one reply, so there is no
// need for the daemon's longer-lived pump goroutines here.
func roundTrip(socketPath string, typ kernel.TypeID, payload kernel.Payload) (kernel.Payload, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sbn: cannot reach daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	types := registry.NewTypes()
	cluster.RegisterTypes(types)
	instance := registry.NewInstance()

	replies := make(chan *kernel.Kernel, 1)
	c := transport.NewConnection(0, types, instance, &chanDeliverer{ch: replies})

	req := kernel.New(typ, payload)
	if err = c.Send(req); err != nil {
		return nil, err
	}
	if err = flush(conn, c); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	buf := make([]byte, 4096)
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			c.InBuffer().Advance(copy(c.InBuffer().Unread(), buf[:n]))
			if perr := c.PumpReceive(); perr != nil {
				return nil, perr
			}
			select {
			case k := <-replies:
				return k.Payload, nil
			default:
			}
		}
		if rerr != nil {
			return nil, fmt.Errorf("sbn: connection closed before a reply arrived: %w", rerr)
		}
	}
}

func flush(conn net.Conn, c *transport.Connection) error {
	b := c.OutBuffer()
	for b.Pending() > 0 {
		payload, ok := b.ReadFrame()
		if !ok {
			return nil
		}
		n := len(payload)
		hdr := [4]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
		if _, err := conn.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// chanDeliverer is the CLI's transport.Deliverer: the one reply the daemon
// sends back is the only kernel this connection will ever receive.
type chanDeliverer struct {
	ch chan *kernel.Kernel
}

func (d *chanDeliverer) Deliver(k *kernel.Kernel)             { d.ch <- k }
func (d *chanDeliverer) DeliverForeign(*kernel.ForeignKernel) {}
