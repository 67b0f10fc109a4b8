package models

// ResourceType identifies the kind of resource an access check concerns.
type ResourceType string

const (
	ResourceContent    ResourceType = "CONTENT"
	ResourceAttendance ResourceType = "ATTENDANCE"
	ResourceGradebook  ResourceType = "GRADEBOOK"
	ResourceAssignment ResourceType = "ASSIGNMENT"
	ResourceFeedback   ResourceType = "FEEDBACK"
	ResourceMessage    ResourceType = "MESSAGE"
)

// ParseResourceType validates a client-supplied resource type string.
func ParseResourceType(raw string) (ResourceType, bool) {
	switch ResourceType(raw) {
	case ResourceContent, ResourceAttendance, ResourceGradebook,
		ResourceAssignment, ResourceFeedback, ResourceMessage:
		return ResourceType(raw), true
	}
	return "", false
}

// ClassBound reports whether the resource type is inherently scoped to a
// class regardless of any access level tag.
func (t ResourceType) ClassBound() bool {
	switch t {
	case ResourceAttendance, ResourceGradebook, ResourceAssignment,
		ResourceFeedback, ResourceMessage:
		return true
	}
	return false
}

// AccessLevel is the visibility tag a resource may carry.
type AccessLevel string

const (
	AccessClass  AccessLevel = "CLASS"
	AccessSchool AccessLevel = "SCHOOL"
	AccessPublic AccessLevel = "PUBLIC"
)

// ParseAccessLevel validates a client-supplied access level string.
func ParseAccessLevel(raw string) (AccessLevel, bool) {
	switch AccessLevel(raw) {
	case AccessClass, AccessSchool, AccessPublic:
		return AccessLevel(raw), true
	}
	return "", false
}

// ResourceDescriptor describes a loaded resource to the access resolver.
// Callers perform their own existence (404) check before consulting the
// resolver; the descriptor never triggers writes.
type ResourceDescriptor struct {
	Type        ResourceType `json:"type"`
	OwnerID     string       `json:"owner_id"`
	ClassID     string       `json:"class_id,omitempty"`
	SubjectID   string       `json:"subject_id,omitempty"`
	AccessLevel AccessLevel  `json:"access_level,omitempty"`
}
