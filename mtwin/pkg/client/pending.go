/*
Copyright 2019 The edgeOn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"context"
	"sync"
)

// Pending correlates requests with the replies that carry their ID.
type Pending struct {
	waiters sync.Map
}

// Add registers a waiter for id. The returned channel receives at most one
// reply.
func (p *Pending) Add(id string) <-chan interface{} {
	ch := make(chan interface{}, 1)
	p.waiters.Store(id, ch)
	return ch
}

// Resolve delivers reply to the waiter of id and reports whether one was
// waiting.
func (p *Pending) Resolve(id string, reply interface{}) bool {
	v, exist := p.waiters.LoadAndDelete(id)
	if !exist {
		return false
	}
	v.(chan interface{}) <- reply
	return true
}

// Cancel forgets the waiter of id.
func (p *Pending) Cancel(id string) {
	p.waiters.Delete(id)
}

// Wait blocks until the reply to id arrives or ctx is done.
func (p *Pending) Wait(ctx context.Context, id string, ch <-chan interface{}) (interface{}, error) {
	select {
	case reply := <-ch:
		if err, ok := reply.(error); ok {
			return nil, err
		}
		return reply, nil
	case <-ctx.Done():
		p.Cancel(id)
		return nil, ctx.Err()
	}
}

// CloseAll fails every waiter with ErrClosed.
func (p *Pending) CloseAll() {
	p.waiters.Range(func(k, _ interface{}) bool {
		p.Resolve(k.(string), ErrClosed)
		return true
	})
}
