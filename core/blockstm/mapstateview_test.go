package blockstm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MapStateView is a minimal in-memory StateView for tests: a read-only base
// layer a CrossShardValueView can delegate non-cross-shard reads to.
type MapStateView struct {
	values  map[common.Hash][]byte
	genesis bool
}

func NewMapStateView(values map[common.Hash][]byte) *MapStateView {
	return &MapStateView{values: values}
}

func (m *MapStateView) GetStateValue(key common.Hash) ([]byte, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("blockstm: no value for key %s", key)
	}
	return v, nil
}

func (m *MapStateView) GetUsage() (StorageUsage, error) {
	return StorageUsage{Untracked: false}, nil
}

func (m *MapStateView) IsGenesis() bool { return m.genesis }
