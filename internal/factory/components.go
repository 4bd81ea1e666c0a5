/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

package factory

import (
	"sync"
)

type componentList struct {
	m sync.RWMutex
	c map[string]Component
}

func newComponentList() ComponentList {
	return &componentList{
		c: make(map[string]Component),
	}
}

func (l *componentList) ComponentSet(key string, cpt Component) {
	l.m.Lock()
	defer l.m.Unlock()

	l.c[key] = cpt
}

func (l *componentList) ComponentGet(key string) Component {
	l.m.RLock()
	defer l.m.RUnlock()

	return l.c[key]
}

func (l *componentList) ComponentDel(key string) {
	l.m.Lock()
	defer l.m.Unlock()

	delete(l.c, key)
}

func (l *componentList) ComponentKeys() []string {
	l.m.RLock()
	defer l.m.RUnlock()

	res := make([]string, 0, len(l.c))
	for k := range l.c {
		res = append(res, k)
	}
	return res
}

// ComponentStartOrder performs a depth-first topological sort over
// Dependencies() so a component always starts after the keys it declares
// and stops before them. Keys with no declared dependency between them come
// out in map iteration order, which is not defined.
func (l *componentList) ComponentStartOrder() ([]string, error) {
	l.m.RLock()
	defer l.m.RUnlock()

	var (
		visited = make(map[string]uint8) // 0=unvisited 1=visiting 2=done
		order   = make([]string, 0, len(l.c))
		visit   func(key string) error
	)

	visit = func(key string) error {
		switch visited[key] {
		case 2:
			return nil
		case 1:
			return ErrorComponentCycle.Error(nil)
		}

		visited[key] = 1

		cpt, ok := l.c[key]
		if !ok {
			visited[key] = 2
			return nil
		}

		for _, dep := range cpt.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visited[key] = 2
		order = append(order, key)
		return nil
	}

	keys := make([]string, 0, len(l.c))
	for k := range l.c {
		keys = append(keys, k)
	}

	for _, k := range keys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}

	return order, nil
}
