package model

import (
	"fmt"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// RetentionPolicy — политика хранения (TRetentionPolicy).
type RetentionPolicy string

const (
	RetentionReplica   RetentionPolicy = "REPLICA"
	RetentionOutput    RetentionPolicy = "OUTPUT"
	RetentionCustodial RetentionPolicy = "CUSTODIAL"
)

// AccessLatency — задержка доступа (TAccessLatency).
type AccessLatency string

const (
	LatencyOnline   AccessLatency = "ONLINE"
	LatencyNearline AccessLatency = "NEARLINE"
)

// RetentionPolicyInfo — политика хранения и задержка доступа резервирования.
type RetentionPolicyInfo struct {
	RetentionPolicy RetentionPolicy `json:"retentionPolicy"`
	AccessLatency   AccessLatency   `json:"accessLatency,omitempty"`
}

// Validate проверяет значения политики.
func (r RetentionPolicyInfo) Validate() error {
	switch r.RetentionPolicy {
	case RetentionReplica, RetentionOutput, RetentionCustodial:
	default:
		return fmt.Errorf("недопустимая политика хранения: %q", r.RetentionPolicy)
	}
	switch r.AccessLatency {
	case "", LatencyOnline, LatencyNearline:
	default:
		return fmt.Errorf("недопустимая задержка доступа: %q", r.AccessLatency)
	}
	return nil
}

// SpaceSnapshot — метаданные резервирования (TMetaDataSpace) на момент чтения.
type SpaceSnapshot struct {
	Token               string              `json:"spaceToken"`
	Owner               string              `json:"owner"`
	Description         string              `json:"userSpaceTokenDescription,omitempty"`
	Status              status.ReturnStatus `json:"status"`
	RetentionPolicyInfo RetentionPolicyInfo `json:"retentionPolicyInfo"`
	TotalSize           uint64              `json:"totalSize"`
	GuaranteedSize      uint64              `json:"guaranteedSize"`
	UnusedSize          uint64              `json:"unusedSize"`
	CreatedAt           time.Time           `json:"createdAt"`
	ExpiresAt           time.Time           `json:"expiresAt"`
	LifetimeAssigned    int64               `json:"lifetimeAssigned"`
	LifetimeLeft        int64               `json:"lifetimeLeft"`
	Files               int                 `json:"files"`
}
