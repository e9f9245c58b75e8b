package types

import (
	"fmt"
	"math/big"
	"strings"
)

// PoolName identifies one of the shared accrual pools.
type PoolName string

const (
	LeaderBonusPool PoolName = "leader"
	GlobalHelpPool  PoolName = "help"
	ClubPool        PoolName = "club"
)

// PoolNames lists every pool in deterministic order.
var PoolNames = []PoolName{LeaderBonusPool, GlobalHelpPool, ClubPool}

// ParsePoolName normalises user supplied pool identifiers.
func ParsePoolName(raw string) (PoolName, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "leader", "leader_bonus", "leaderbonuspool":
		return LeaderBonusPool, nil
	case "help", "global_help", "globalhelppool":
		return GlobalHelpPool, nil
	case "club", "clubpool":
		return ClubPool, nil
	default:
		return "", fmt.Errorf("unknown pool %q", raw)
	}
}

// Pool tracks the accrued balance of a shared pool.
type Pool struct {
	Name                  PoolName `json:"name"`
	Balance               *big.Int `json:"balance"`
	LastDistributedPeriod uint64   `json:"lastDistributedPeriod"`
	Distributed           bool     `json:"distributed"`
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Balance = CopyAmount(p.Balance)
	return &clone
}

// AlreadyDistributed reports whether the period has been consumed.
func (p *Pool) AlreadyDistributed(period uint64) bool {
	return p != nil && p.Distributed && p.LastDistributedPeriod >= period
}
