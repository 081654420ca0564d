package model

import (
	"fmt"

	"ropa-suggestions/internal/domain"
)

// EntityType is the kind of ROPA record a suggestion job is scoped to.
type EntityType string

const (
	EntityRepository  EntityType = "repository"
	EntityActivity    EntityType = "activity"
	EntityDataElement EntityType = "data_element"
	EntityDPIA        EntityType = "dpia"
	EntityRisk        EntityType = "risk"
)

var entityPathSegments = map[EntityType]string{
	EntityRepository:  "repositories",
	EntityActivity:    "activities",
	EntityDataElement: "data-elements",
	EntityDPIA:        "dpias",
	EntityRisk:        "risks",
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if _, ok := entityPathSegments[t]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, s)
	}
	return t, nil
}

// PathSegment is the collection name used in backend URLs.
func (t EntityType) PathSegment() string {
	return entityPathSegments[t]
}

func EntityTypeForSegment(segment string) (EntityType, bool) {
	for t, seg := range entityPathSegments {
		if seg == segment {
			return t, true
		}
	}
	return "", false
}

// EntityRef is the (tenant, entity_type, entity_id) triple an orchestrator is bound to.
type EntityRef struct {
	TenantID string     `json:"tenant_id"`
	Type     EntityType `json:"entity_type"`
	ID       string     `json:"entity_id"`
}

func (r EntityRef) IsZero() bool { return r.ID == "" }

func (r EntityRef) Validate() error {
	if r.TenantID == "" || r.ID == "" {
		return fmt.Errorf("%w: tenant and entity id are required", domain.ErrInvalidArgument)
	}
	if _, err := ParseEntityType(string(r.Type)); err != nil {
		return err
	}
	return nil
}

func (r EntityRef) Scope() DeclinedScope {
	return DeclinedScope{EntityType: r.Type, EntityID: r.ID}
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.TenantID, r.Type, r.ID)
}

// DeclinedScope keys the persisted set of declined job ids.
type DeclinedScope struct {
	EntityType EntityType
	EntityID   string
}
