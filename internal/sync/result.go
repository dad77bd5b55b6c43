package sync

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/model"
)

// Operation names a batch operation.
type Operation string

const (
	OperationPull      Operation = "pull"
	OperationPush      Operation = "push"
	OperationForcePull Operation = "force-pull"
	OperationForcePush Operation = "force-push"
	OperationClean     Operation = "clean"
)

// Direction returns the copy direction of the operation.
func (o Operation) Direction() model.Direction {
	switch o {
	case OperationPush, OperationForcePush:
		return model.DirectionPush
	default:
		return model.DirectionPull
	}
}

// Action represents the action taken on an item.
type Action string

const (
	// ActionCreated indicates the destination did not exist before.
	ActionCreated Action = "created"

	// ActionUpdated indicates an existing destination was replaced.
	ActionUpdated Action = "updated"

	// ActionSkipped indicates nothing needed to be done (or could be done).
	ActionSkipped Action = "skipped"

	// ActionFailed indicates an error occurred processing the item.
	ActionFailed Action = "failed"

	// ActionDeleted indicates a repository entry was removed.
	ActionDeleted Action = "deleted"
)

// ItemResult represents the outcome of processing a single item.
type ItemResult struct {
	// Item is the tracked item, with refreshed metadata on success.
	Item model.TrackedItem

	// Action is the action that was taken.
	Action Action

	// Source and Target are the resolved mirror endpoints.
	Source string
	Target string

	// Digest is the item's digest after the operation.
	Digest digest.Digest

	// BackupID names the snapshot taken before a push, if any.
	BackupID string

	// Error contains any error that occurred during processing.
	Error error

	// Message provides additional context about the action.
	Message string
}

// Success returns true if the item was processed without error.
func (ir *ItemResult) Success() bool {
	return ir.Action != ActionFailed
}

// Changed returns true if the item's destination was written (or would be in a dry run).
func (ir *ItemResult) Changed() bool {
	return ir.Action == ActionCreated || ir.Action == ActionUpdated
}

// Result contains the complete outcome of a batch operation.
type Result struct {
	// Operation is the batch operation that ran.
	Operation Operation

	// Items contains the result for each processed item, in manifest order.
	Items []ItemResult

	// DryRun indicates if this was a dry run (no changes made).
	DryRun bool
}

// Created returns items whose destination was created.
func (r *Result) Created() []ItemResult {
	return r.filterByAction(ActionCreated)
}

// Updated returns items whose destination was replaced.
func (r *Result) Updated() []ItemResult {
	return r.filterByAction(ActionUpdated)
}

// Skipped returns items that were skipped.
func (r *Result) Skipped() []ItemResult {
	return r.filterByAction(ActionSkipped)
}

// Failed returns items that failed.
func (r *Result) Failed() []ItemResult {
	return r.filterByAction(ActionFailed)
}

// Deleted returns repository entries that were removed.
func (r *Result) Deleted() []ItemResult {
	return r.filterByAction(ActionDeleted)
}

// filterByAction returns items with the given action.
func (r *Result) filterByAction(action Action) []ItemResult {
	var filtered []ItemResult
	for _, ir := range r.Items {
		if ir.Action == action {
			filtered = append(filtered, ir)
		}
	}
	return filtered
}

// Success returns true if all items were successfully processed.
func (r *Result) Success() bool {
	return len(r.Failed()) == 0
}

// Err joins every item failure, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		errs = append(errs, f.Error)
	}
	return errors.Join(errs...)
}

// TotalProcessed returns the total number of items processed.
func (r *Result) TotalProcessed() int {
	return len(r.Items)
}

// TotalChanged returns the number of items that were created, updated, or deleted.
func (r *Result) TotalChanged() int {
	return len(r.Created()) + len(r.Updated()) + len(r.Deleted())
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	var sb strings.Builder
	title := cases.Title(language.English)

	if r.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}

	if r.Operation == OperationClean {
		sb.WriteString("Cleaned repository\n")
	} else {
		fmt.Fprintf(&sb, "%s (%s)\n", title.String(strings.ReplaceAll(string(r.Operation), "-", " ")),
			r.Operation.Direction().Description())
	}

	for _, action := range []Action{ActionCreated, ActionUpdated, ActionDeleted, ActionSkipped, ActionFailed} {
		n := len(r.filterByAction(action))
		if n == 0 && (action == ActionDeleted || action == ActionFailed) {
			continue
		}
		fmt.Fprintf(&sb, "  %-9s %d\n", title.String(string(action))+":", n)
	}

	if !r.Success() {
		sb.WriteString("\nErrors:\n")
		for _, f := range r.Failed() {
			fmt.Fprintf(&sb, "  - %s: %v\n", f.Item.Name, f.Error)
		}
	}

	return sb.String()
}
