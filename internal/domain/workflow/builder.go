package workflow

import (
	"fmt"
	"sort"
)

// TableBuilder collects the permitted transitions per kind and status
type TableBuilder interface {
	// Configure returns the configuration for a status of the given kind
	Configure(kind Kind, status Status) StatusConfiguration

	// Build freezes the configuration into an immutable Table
	Build() *Table
}

// StatusConfiguration configures the outbound transitions of one status
type StatusConfiguration interface {
	// Permit allows moving to each of the target statuses
	Permit(targets ...Status) StatusConfiguration
}

type statusConfig struct {
	kind    Kind
	from    Status
	targets map[Status]struct{}
}

type tableBuilder struct {
	configurations map[Kind]map[Status]*statusConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() TableBuilder {
	return &tableBuilder{
		configurations: make(map[Kind]map[Status]*statusConfig),
	}
}

// Configure returns the configuration for a status of the given kind
func (b *tableBuilder) Configure(kind Kind, status Status) StatusConfiguration {
	if !kind.IsValid() {
		panic(fmt.Sprintf("invalid kind: %s", kind))
	}
	if status == "" {
		panic("empty status")
	}

	byStatus, ok := b.configurations[kind]
	if !ok {
		byStatus = make(map[Status]*statusConfig)
		b.configurations[kind] = byStatus
	}

	config, exists := byStatus[status]
	if !exists {
		config = &statusConfig{
			kind:    kind,
			from:    status,
			targets: make(map[Status]struct{}),
		}
		byStatus[status] = config
	}

	return config
}

// Build freezes the configuration. Every non-terminal status gets Canceled
// as an allowed target.
func (b *tableBuilder) Build() *Table {
	transitions := make(map[Kind]map[Status][]Status, len(b.configurations))

	for kind, byStatus := range b.configurations {
		kindTable := make(map[Status][]Status, len(byStatus))
		for status, config := range byStatus {
			targets := make([]Status, 0, len(config.targets)+1)
			for to := range config.targets {
				targets = append(targets, to)
			}
			if !status.IsTerminal() {
				if _, ok := config.targets[StatusCanceled]; !ok {
					targets = append(targets, StatusCanceled)
				}
			}
			sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
			kindTable[status] = targets
		}
		transitions[kind] = kindTable
	}

	return &Table{transitions: transitions}
}

// Permit allows moving to each of the target statuses
func (c *statusConfig) Permit(targets ...Status) StatusConfiguration {
	for _, to := range targets {
		if to == c.from {
			panic(fmt.Sprintf("self transition on %s/%s", c.kind, c.from))
		}
		if c.from.IsTerminal() {
			panic(fmt.Sprintf("terminal status %s cannot have transitions", c.from))
		}
		c.targets[to] = struct{}{}
	}
	return c
}
