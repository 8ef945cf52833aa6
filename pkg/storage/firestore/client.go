package firestore

import (
	"cloud.google.com/go/firestore"

	"github.com/pulsesync/server/pkg/types"
)

// Client exposes typed collections over the raw Firestore client. Per-user
// data lives in subcollections under users/{userId}.
type Client struct {
	client *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Raw() *firestore.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Users() *Collection[types.UserRecord] {
	return &Collection[types.UserRecord]{Ref: c.client.Collection("users")}
}

func (c *Client) Executions() *Collection[types.ExecutionRecord] {
	return &Collection[types.ExecutionRecord]{Ref: c.client.Collection("executions")}
}

func (c *Client) UserExecutions(userId string) *Collection[types.ExecutionRecord] {
	return &Collection[types.ExecutionRecord]{
		Ref: c.client.Collection("users").Doc(userId).Collection("executions"),
	}
}

// OrphanedExecutions holds records written before a user id was known.
func (c *Client) OrphanedExecutions() *Collection[types.ExecutionRecord] {
	return &Collection[types.ExecutionRecord]{Ref: c.client.Collection("orphaned_executions")}
}

func (c *Client) UserPendingInputs(userId string) *Collection[types.PendingInput] {
	return &Collection[types.PendingInput]{
		Ref: c.client.Collection("users").Doc(userId).Collection("pending_inputs"),
	}
}

// PendingInputs is the collection-group view used by the auto-resume sweep.
func (c *Client) PendingInputsGroup() *firestore.CollectionGroupRef {
	return c.client.CollectionGroup("pending_inputs")
}

func (c *Client) Counters(userId string) *Collection[types.Counter] {
	return &Collection[types.Counter]{
		Ref: c.client.Collection("users").Doc(userId).Collection("counters"),
	}
}

func (c *Client) Pipelines(userId string) *Collection[types.PipelineConfig] {
	return &Collection[types.PipelineConfig]{
		Ref: c.client.Collection("users").Doc(userId).Collection("pipelines"),
	}
}

func (c *Client) PipelineRuns(userId string) *Collection[types.PipelineRun] {
	return &Collection[types.PipelineRun]{
		Ref: c.client.Collection("users").Doc(userId).Collection("pipeline_runs"),
	}
}

func (c *Client) UploadedActivities(userId string) *Collection[types.UploadedActivityRecord] {
	return &Collection[types.UploadedActivityRecord]{
		Ref: c.client.Collection("users").Doc(userId).Collection("uploaded_activities"),
	}
}
