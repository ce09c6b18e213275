package blockstm

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// StateView is the minimal read-through base view a CrossShardValueView
// layers over. It mirrors the teacher corpus's state-reading surface
// (get/usage/genesis) without pulling in an actual storage engine, which
// spec.md's Non-goals explicitly exclude.
type StateView interface {
	GetStateValue(key common.Hash) ([]byte, error)
	GetUsage() (StorageUsage, error)
	IsGenesis() bool
}

// StorageUsage is an opaque usage report; blockstm never inspects its
// fields, it only carries the sentinel CrossShardValueView.GetUsage
// returns.
type StorageUsage struct {
	Untracked bool
}

type crossShardSlotStatus uint8

const (
	slotWaiting crossShardSlotStatus = iota
	slotReady
)

type crossShardSlot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	status crossShardSlotStatus
	value  []byte
}

func newWaitingSlot() *crossShardSlot {
	s := &crossShardSlot{status: slotWaiting}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *crossShardSlot) set(value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = slotReady
	s.value = value
	s.cond.Broadcast()
}

func (s *crossShardSlot) get() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.status == slotWaiting {
		s.cond.Wait()
	}
	return s.value
}

// CrossShardValueView is a read-through StateView layered over a base
// view, pre-populated with a set of keys K whose values will arrive
// asynchronously from remote shards. Gets for keys in K block until the
// corresponding Set; gets for any other key delegate straight through to
// the base view.
//
// It is immutable after construction with respect to K: only slot state
// (waiting -> ready) changes afterward.
type CrossShardValueView struct {
	slots map[common.Hash]*crossShardSlot
	view  StateView
}

// NewCrossShardValueView constructs a view pre-populated with Waiting
// slots for every key in keys.
func NewCrossShardValueView(keys []common.Hash, view StateView) *CrossShardValueView {
	slots := make(map[common.Hash]*crossShardSlot, len(keys))
	for _, k := range keys {
		slots[k] = newWaitingSlot()
	}
	return &CrossShardValueView{slots: slots, view: view}
}

// Set pushes a value received from a remote shard. It is a no-op if key
// was not part of the constructor's key set (see DESIGN.md Open Question);
// calling it twice for the same key is undefined from the view's
// perspective, since a slot transitions Waiting -> Ready exactly once.
func (v *CrossShardValueView) Set(key common.Hash, value []byte) {
	slot, ok := v.slots[key]
	if !ok {
		return
	}
	slot.set(value)
}

// GetStateValue blocks until key's value arrives if key is a cross-shard
// key, otherwise it delegates to the base view.
func (v *CrossShardValueView) GetStateValue(key common.Hash) ([]byte, error) {
	if slot, ok := v.slots[key]; ok {
		return slot.get(), nil
	}
	return v.view.GetStateValue(key)
}

// GetUsage always reports untracked: a cross-shard view's size accounting
// is meaningless, since its backing values are a mix of pushed and
// delegated entries.
func (v *CrossShardValueView) GetUsage() (StorageUsage, error) {
	return StorageUsage{Untracked: true}, nil
}

// IsGenesis is unsupported: a cross-shard view only ever backs
// mid-execution reads, never the genesis bootstrap.
func (v *CrossShardValueView) IsGenesis() bool {
	panic(fmt.Errorf("blockstm: IsGenesis is not supported by CrossShardValueView"))
}
