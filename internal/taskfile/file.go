package taskfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// File is an in-memory, line-oriented view of the task file. Edits
// mutate Lines directly; callers persist with Sync's commit-and-push
// loop rather than this type writing to disk itself.
type File struct {
	Path  string
	Lines []string
}

// ReadFile loads the task file from disk.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taskfile: opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("taskfile: reading %s: %w", path, err)
	}
	return &File{Path: path, Lines: lines}, nil
}

// Bytes renders the file back to its on-disk form.
func (f *File) Bytes() []byte {
	return []byte(strings.Join(f.Lines, "\n") + "\n")
}

// Find returns every parsed task line whose ID matches, in file order.
// More than one result means the ID is duplicated (§4.9 dedup).
func (f *File) Find(taskID string) []*Parsed {
	var found []*Parsed
	for i, raw := range f.Lines {
		p, ok := parseLine(i, raw)
		if !ok || p.TaskID != taskID {
			continue
		}
		found = append(found, p)
	}
	return found
}

// All returns every parsed task line in the file.
func (f *File) All() []*Parsed {
	var all []*Parsed
	for i, raw := range f.Lines {
		if p, ok := parseLine(i, raw); ok {
			all = append(all, p)
		}
	}
	return all
}

// setState rewrites the `[STATE]` bracket on a line in place.
func (f *File) setState(idx int, s State) {
	f.Lines[idx] = lineHeaderPattern.ReplaceAllString(f.Lines[idx],
		fmt.Sprintf("${1}- [%c] ${3} ${4}", byte(s)))
}

// appendAnnotation appends a `key:value` token to a line if not already
// present, and returns whether it made a change.
func (f *File) appendAnnotation(idx int, key, value string) bool {
	p, ok := parseLine(idx, f.Lines[idx])
	if !ok || hasAnnotation(p.Rest, key) {
		return false
	}
	f.Lines[idx] = strings.TrimRight(f.Lines[idx], " ") + " " + key + ":" + value
	return true
}

// insertNoteBelow inserts a deeper-indented Notes child line immediately
// below idx, truncating body to a bounded length (§7 "capped in length").
const maxNoteLength = 240

func (f *File) insertNoteBelow(idx int, indent int, body string) {
	if len(body) > maxNoteLength {
		body = body[:maxNoteLength] + "…"
	}
	note := strings.Repeat(" ", indent+2) + "- Note: " + body
	f.Lines = append(f.Lines[:idx+1], append([]string{note}, f.Lines[idx+1:]...)...)
}

// removeLine deletes the line at idx.
func (f *File) removeLine(idx int) {
	f.Lines = append(f.Lines[:idx], f.Lines[idx+1:]...)
}
