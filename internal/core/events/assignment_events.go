package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRolesAssigned = "authz.roles.assigned"
	EventTypeRolesRemoved  = "authz.roles.removed"
	EventTypeRolesSynced   = "authz.roles.synced"

	EventTypePermissionsGranted = "authz.permissions.granted"
	EventTypePermissionsRevoked = "authz.permissions.revoked"
	EventTypePermissionsSynced  = "authz.permissions.synced"

	EventTypeAffiliationsAssigned = "authz.affiliations.assigned"
	EventTypeAffiliationsRemoved  = "authz.affiliations.removed"
	EventTypeAffiliationsSynced   = "authz.affiliations.synced"

	EventTypeRolePermissionsGranted = "authz.role_permissions.granted"
	EventTypeRolePermissionsRevoked = "authz.role_permissions.revoked"
)

const (
	SubjectUser = "user"
	SubjectRole = "role"
)

// AssignmentChangedEvent records a committed change to one subject's
// associations. Targets holds role names, permission names or affiliation ids.
type AssignmentChangedEvent struct {
	BaseEvent
	SubjectType string   `json:"subject_type"`
	SubjectID   int64    `json:"subject_id"`
	Targets     []string `json:"targets"`
}

func NewAssignmentChangedEvent(eventType, subjectType string, subjectID int64, targets []string) *AssignmentChangedEvent {
	if targets == nil {
		targets = []string{}
	}
	return &AssignmentChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subject_type": subjectType,
				"subject_id":   subjectID,
				"targets":      targets,
			},
		},
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Targets:     targets,
	}
}
