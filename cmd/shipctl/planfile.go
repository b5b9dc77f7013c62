package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/palletdock/internal/reconcile"

	"gopkg.in/yaml.v3"
)

// PlanFile 一批暂存变更
type PlanFile struct {
	Moves    []MoveEntry       `yaml:"moves"`
	DOA      map[string]string `yaml:"doa"`
	Deletes  []string          `yaml:"deletes"`
	Releases []string          `yaml:"releases"`
	Locks    map[string]bool   `yaml:"locks"`
}

// MoveEntry 移动一台机器；slot 省略时放入第一个空槽
type MoveEntry struct {
	ServiceTag string `yaml:"service_tag"`
	ToPallet   string `yaml:"to_pallet"`
	Slot       *int   `yaml:"slot"`
}

func loadPlanFile(path string) (*PlanFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan failed: %w", err)
	}
	var plan PlanFile
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("parse plan failed: %w", err)
	}
	return &plan, nil
}

// Stage 依次暂存到会话：移动、DOA、删除、发运、锁定。
// 锁定放在最后，避免暂存锁定阻止同批次的移动；DOA 先于发运，因为录入 DOA 会清除该托盘的发运标记。
func (p *PlanFile) Stage(session *reconcile.Session) error {
	for _, move := range p.Moves {
		slot := -1
		if move.Slot != nil {
			slot = *move.Slot
		}
		if err := session.MoveSystem(move.ServiceTag, move.ToPallet, slot); err != nil {
			return fmt.Errorf("move %s -> %s: %w", move.ServiceTag, move.ToPallet, err)
		}
	}
	for _, tag := range sortedKeys(p.DOA) {
		if err := session.SetDOA(tag, p.DOA[tag]); err != nil {
			return fmt.Errorf("doa %s: %w", tag, err)
		}
	}
	for _, number := range p.Deletes {
		if err := session.FlagDelete(number, true); err != nil {
			return fmt.Errorf("delete %s: %w", number, err)
		}
	}
	for _, number := range p.Releases {
		if err := session.FlagRelease(number, true); err != nil {
			return fmt.Errorf("release %s: %w", number, err)
		}
	}
	for _, number := range sortedKeys(p.Locks) {
		if err := session.StageLock(number, p.Locks[number]); err != nil {
			return fmt.Errorf("lock %s: %w", number, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
