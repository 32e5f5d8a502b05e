// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventbus

import "context"

// Bus is a thin abstraction over the distribution of VM lifecycle events
// (events.VMEvent) from the activation engine and reaper to whatever wants
// to observe them. Publish is best-effort: a slow or absent subscriber must
// never back-pressure the query path or the reap sweep.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, ch chan<- any) (unsubscribe func(), err error)
}
