package provisioning

import (
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

// Action is what happened to a successfully provisioned record
type Action string

const (
	ActionCreated       Action = "created"
	ActionAddedExisting Action = "added_existing"
	ActionAlreadyMember Action = "already_member"
)

// Record is one user to provision
type Record struct {
	Email             string    `json:"email" validate:"required,email"`
	FullName          string    `json:"full_name" validate:"required,max=255"`
	Role              rbac.Role `json:"role" validate:"required,oneof=owner manager auditor observer"`
	TemporaryPassword string    `json:"temporary_password,omitempty" validate:"omitempty,min=8,max=72"`
}

// BulkRequest is a batch of records for one tenant
type BulkRequest struct {
	TenantID        string   `json:"tenant_id" validate:"required,uuid"`
	ActingUserID    string   `json:"-"`
	Users           []Record `json:"users" validate:"required,min=1,dive"`
	SendInvitations bool     `json:"send_invitations"`
}

// RecordResult is the outcome of one record
type RecordResult struct {
	Email        string `json:"email"`
	Success      bool   `json:"success"`
	Action       Action `json:"action,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	MembershipID string `json:"tenant_user_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Summary counts record outcomes
type Summary struct {
	Total          int `json:"total"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	Created        int `json:"created"`
	AddedExisting  int `json:"added_existing"`
	AlreadyMembers int `json:"already_members"`
}

// BulkResult is returned for every batch that passed request validation
type BulkResult struct {
	Message         string         `json:"message"`
	Results         []RecordResult `json:"results"`
	Summary         Summary        `json:"summary"`
	InvitationsSent bool           `json:"invitations_sent"`
}

func summarize(results []RecordResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if !r.Success {
			s.Failed++
			continue
		}
		s.Successful++
		switch r.Action {
		case ActionCreated:
			s.Created++
		case ActionAddedExisting:
			s.AddedExisting++
		case ActionAlreadyMember:
			s.AlreadyMembers++
		}
	}
	return s
}
