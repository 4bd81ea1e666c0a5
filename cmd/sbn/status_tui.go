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

package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nabbar/sbn/internal/cluster"
)

// statusPollInterval mirrors the old C++ tree viewer's refresh rate; fast
// enough to feel live, slow enough not to hammer the unix socket.
const statusPollInterval = 2 * time.Second

type statusMsg struct {
	snap cluster.Snapshot
	err  error
}

type statusModel struct {
	socketPath string
	snap       cluster.Snapshot
	err        error
}

func newStatusModel(socketPath string) statusModel {
	return statusModel{socketPath: socketPath}
}

func (m statusModel) Init() tea.Cmd {
	return m.poll()
}

func (m statusModel) poll() tea.Cmd {
	socketPath := m.socketPath
	return func() tea.Msg {
		snap, err := fetchStatus(socketPath)
		return statusMsg{snap: snap, err: err}
	}
}

func (m statusModel) tick() tea.Cmd {
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		return m.poll()()
	})
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusMsg:
		m.snap, m.err = msg.snap, msg.err
		return m, m.tick()
	}
	return m, nil
}

func (m statusModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("sbn status: %v\n\npress q to quit\n", m.err)
	}
	return renderTree(m.snap) + "\npress q to quit\n"
}

// renderTree draws the local node, its superior and its subordinates as a
// small indented tree, the interactive counterpart to renderStatus's flat
// text dump.
func renderTree(s cluster.Snapshot) string {
	out := fmt.Sprintf("%s  (parallel=%d timer=%d)\n", s.Local.Address, s.ParallelQueueDepth, s.TimerQueueDepth)

	if s.HasSuperior {
		out += fmt.Sprintf("└─ superior: %s (weight %d)\n", s.Superior.Address, s.Superior.Weight)
	}
	for i, n := range s.Subordinates {
		branch := "├─"
		if i == len(s.Subordinates)-1 {
			branch = "└─"
		}
		out += fmt.Sprintf("%s subordinate: %s (weight %d)\n", branch, n.Address, n.Weight)
	}
	return out
}
