package taskfile

import (
	"errors"
	"fmt"
)

var ErrTaskNotFound = errors.New("taskfile: task not found")

// MarkComplete transitions a task line from `[ ]` to `[x]` and appends a
// proof annotation (a PR number or a verify date), refusing if the
// parent-closure guard finds an open subtask.
func (f *File) MarkComplete(taskID string, proof string, dateStamp string) error {
	matches := f.Find(taskID)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	p := matches[0]
	if f.HasOpenChildren(taskID, p.Indent) {
		return fmt.Errorf("taskfile: refusing to close %s: open subtasks remain", taskID)
	}

	f.setState(p.LineIndex, StateDone)
	f.appendAnnotation(p.LineIndex, "completed", dateStamp)
	if proof != "" {
		f.appendAnnotation(p.LineIndex, "pr", proof)
	}
	return nil
}

// MarkVerified annotates a completed task with its verification date,
// without altering the checkbox state (verification follows completion).
func (f *File) MarkVerified(taskID string, dateStamp string) error {
	matches := f.Find(taskID)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	f.appendAnnotation(matches[0].LineIndex, "verified", dateStamp)
	return nil
}

// MarkCancelled transitions a task line to `[-]`.
func (f *File) MarkCancelled(taskID string, dateStamp string) error {
	matches := f.Find(taskID)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	p := matches[0]
	f.setState(p.LineIndex, StateCancelled)
	f.appendAnnotation(p.LineIndex, "cancelled", dateStamp)
	return nil
}

// AnnotateBlocked inserts a human-readable Notes child line below a
// blocked or failed task and sets a `status:` tag, without changing the
// checkbox state (a blocked task stays open for the next pulse).
func (f *File) AnnotateBlocked(taskID, status, note string) error {
	matches := f.Find(taskID)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	p := matches[0]
	f.appendAnnotation(p.LineIndex, "status", status)
	f.insertNoteBelow(p.LineIndex, p.Indent, note)
	return nil
}

// HasOpenChildren implements the parent-closure guard (§4.9): a subtask
// is either a dotted-ID child (tN.M for parent tN) or a line indented
// deeper than the parent, anywhere before the next line at or above the
// parent's own indentation.
func (f *File) HasOpenChildren(parentID string, parentIndent int) bool {
	all := f.All()
	parentPos := -1
	for i, p := range all {
		if p.TaskID == parentID {
			parentPos = i
			break
		}
	}
	if parentPos < 0 {
		return false
	}

	// Contiguous indented span immediately following the parent line.
	for i := parentPos + 1; i < len(all); i++ {
		p := all[i]
		if !p.IsChildIndent(parentIndent) {
			break
		}
		if p.State == StateOpen {
			return true
		}
	}

	// Dotted-ID children (tN.M), which may appear anywhere in the file.
	for _, p := range all {
		if p.TaskID == parentID {
			continue
		}
		isDottedChild := len(p.TaskID) > len(parentID) &&
			p.TaskID[:len(parentID)] == parentID && p.TaskID[len(parentID)] == '.'
		if isDottedChild && p.State == StateOpen {
			return true
		}
	}
	return false
}
