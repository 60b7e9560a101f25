// Package domain defines the core types shared by the runtime support layer.
package domain

import "strings"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleTool  Role = "tool"
)

// ParseRole normalizes role names used by model SDKs ("model", "assistant")
// onto the runtime's roles. Unknown roles are treated as tool output.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser
	case "agent", "model", "assistant":
		return RoleAgent
	default:
		return RoleTool
	}
}

// PartKind represents the kind of content carried by a part.
type PartKind string

const (
	PartKindText         PartKind = "text"
	PartKindImage        PartKind = "image"
	PartKindFunctionCall PartKind = "function_call"
	PartKindFunctionResp PartKind = "function_response"
)

// JobKind represents the kind of a persistence job.
type JobKind string

const (
	JobKindDialogSummary JobKind = "dialog_summary"
	JobKindSearch        JobKind = "search"
	JobKindComparison    JobKind = "comparison"
	JobKindExplore       JobKind = "explore"
)

// Category returns the artifact category used for documents of this kind.
func (k JobKind) Category() string {
	switch k {
	case JobKindDialogSummary:
		return "dialog"
	case JobKindComparison:
		return "compare"
	default:
		return string(k)
	}
}

// PayloadType tags the top level of a shaped tool reply.
type PayloadType string

const (
	PayloadTypeNoResults           PayloadType = "no-results"
	PayloadTypeProductDisplay      PayloadType = "product-display"
	PayloadTypeProductComparison   PayloadType = "product-comparison"
	PayloadTypeCategoryExploration PayloadType = "category-exploration"
	PayloadTypeError               PayloadType = "error"
)
