package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type ActivityAction string

const (
	ActionCreate  ActivityAction = "create"
	ActionUpdate  ActivityAction = "update"
	ActionDelete  ActivityAction = "delete"
	ActionContact ActivityAction = "contact"
)

// ActivityLog is an append-only audit record of an admin mutation or a
// contact submission.
type ActivityLog struct {
	ID        bson.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserEmail string         `json:"user_email" bson:"user_email"`
	Action    ActivityAction `json:"action" bson:"action"`
	Entity    string         `json:"entity" bson:"entity"`
	EntityID  string         `json:"entity_id" bson:"entity_id"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}
