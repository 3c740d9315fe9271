package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskFullSync = "crm.sync.full"

const TaskLeadPush = "crm.lead.push"

type FullSyncPayload struct {
	Trigger string `json:"trigger"`
}

type LeadPushPayload struct {
	LeadID string `json:"leadId"`
}

func NewFullSyncTask(payload FullSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFullSync, data), nil
}

func ParseFullSyncPayload(task *asynq.Task) (FullSyncPayload, error) {
	var payload FullSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FullSyncPayload{}, err
	}
	return payload, nil
}

func NewLeadPushTask(payload LeadPushPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadPush, data), nil
}

func ParseLeadPushPayload(task *asynq.Task) (LeadPushPayload, error) {
	var payload LeadPushPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadPushPayload{}, err
	}
	return payload, nil
}
