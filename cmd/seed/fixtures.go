package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixtures 种子数据文件
type Fixtures struct {
	Operators []OperatorFixture `yaml:"operators"`
	Systems   []SystemFixture   `yaml:"systems"`
	Pallets   []PalletFixture   `yaml:"pallets"`
}

// OperatorFixture 操作员
type OperatorFixture struct {
	Username    string   `yaml:"username"`
	DisplayName string   `yaml:"display_name"`
	Password    string   `yaml:"password"`
	Roles       []string `yaml:"roles"`
}

// SystemFixture 机器档案
type SystemFixture struct {
	ServiceTag   string `yaml:"service_tag"`
	PPID         string `yaml:"ppid"`
	DPN          string `yaml:"dpn"`
	Config       string `yaml:"config"`
	DellCustomer string `yaml:"dell_customer"`
	Issue        string `yaml:"issue"`
	Location     string `yaml:"location"`
	DOANumber    string `yaml:"doa_number"`
}

// PalletFixture 托盘及其装载的机器（按顺序占用槽位）
type PalletFixture struct {
	FactoryCode string   `yaml:"factory_code"`
	DPN         string   `yaml:"dpn"`
	Locked      bool     `yaml:"locked"`
	Systems     []string `yaml:"systems"`
}

func loadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures failed: %w", err)
	}
	var fixtures Fixtures
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("parse fixtures failed: %w", err)
	}
	if err := fixtures.validate(); err != nil {
		return nil, err
	}
	return &fixtures, nil
}

func (f *Fixtures) validate() error {
	known := make(map[string]bool, len(f.Systems))
	for i, system := range f.Systems {
		tag := strings.ToUpper(strings.TrimSpace(system.ServiceTag))
		if tag == "" {
			return fmt.Errorf("systems[%d]: service_tag is required", i)
		}
		if known[tag] {
			return fmt.Errorf("systems[%d]: duplicate service_tag %s", i, tag)
		}
		known[tag] = true
	}
	placed := make(map[string]int)
	for i, pallet := range f.Pallets {
		if len(pallet.Systems) > 9 {
			return fmt.Errorf("pallets[%d]: at most 9 systems per pallet", i)
		}
		for _, tag := range pallet.Systems {
			tag = strings.ToUpper(strings.TrimSpace(tag))
			if !known[tag] {
				return fmt.Errorf("pallets[%d]: unknown system %s", i, tag)
			}
			if prev, ok := placed[tag]; ok {
				return fmt.Errorf("pallets[%d]: system %s already placed on pallets[%d]", i, tag, prev)
			}
			placed[tag] = i
		}
	}
	for i, operator := range f.Operators {
		if strings.TrimSpace(operator.Username) == "" || operator.Password == "" {
			return fmt.Errorf("operators[%d]: username and password are required", i)
		}
	}
	return nil
}
