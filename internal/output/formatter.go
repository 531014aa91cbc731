package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"helpt/internal/adapters"
	"helpt/internal/models"
)

// Formatter defines the interface for output formatting
type Formatter interface {
	DataSourceList(sources []models.DataSource)
	WorkspaceList(workspaces []models.Workspace)
	TaskList(tasks []models.Task, title string)
	EntryList(entries []models.Entry)
	Report(label string, rep *adapters.Report)
	Success(msg string)
	Error(err error)
	Info(msg string)
	KeyValue(key, value string)
	JSON(v interface{})
}

// TextFormatter outputs human-readable text
type TextFormatter struct {
	w io.Writer
}

// JSONFormatter outputs JSON
type JSONFormatter struct {
	w io.Writer
}

// New returns the appropriate formatter based on json flag
func New(jsonOutput bool) Formatter {
	return NewWriter(os.Stdout, jsonOutput)
}

// NewWriter is New with an explicit destination
func NewWriter(w io.Writer, jsonOutput bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{w: w}
	}
	return &TextFormatter{w: w}
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TextFormatter implementations

func (f *TextFormatter) DataSourceList(sources []models.DataSource) {
	if len(sources) == 0 {
		fmt.Fprintln(f.w, "No data sources configured")
		return
	}
	for _, ds := range sources {
		fmt.Fprintf(f.w, "[%d] %s (%s) org=%s\n", ds.ID, ds.Name, ds.Type, ds.Organization)
	}
}

func (f *TextFormatter) WorkspaceList(workspaces []models.Workspace) {
	if len(workspaces) == 0 {
		fmt.Fprintln(f.w, "No workspaces found")
		return
	}
	for _, ws := range workspaces {
		sync := ""
		if ws.Sync {
			sync = " [sync]"
		}
		taskState := ""
		if ws.DefaultListTaskState != nil {
			taskState = fmt.Sprintf(" (lists default to %s)", *ws.DefaultListTaskState)
		}
		fmt.Fprintf(f.w, "[%d] %s %s - %s%s%s\n", ws.ID, ws.OriginID, ws.State, ws.Name, sync, taskState)
		if desc := optional(ws.Description); desc != "" {
			fmt.Fprintf(f.w, "      %s\n", desc)
		}
	}
}

func (f *TextFormatter) TaskList(tasks []models.Task, title string) {
	if title != "" {
		fmt.Fprintf(f.w, "%s (%d):\n", title, len(tasks))
	}
	if len(tasks) == 0 {
		fmt.Fprintln(f.w, "No tasks found")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(f.w, "[%d] #%s %s - %s (updated %s)\n",
			t.ID, t.OriginID, t.State, t.Name, t.UpdatedAt.Local().Format(models.DateTimeShortFormat))
	}
}

func (f *TextFormatter) EntryList(entries []models.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(f.w, "No entries found")
		return
	}
	total := 0
	for _, e := range entries {
		deleted := ""
		if e.State == models.EntryDeleted {
			deleted = " (deleted)"
		}
		fmt.Fprintf(f.w, "[%d] %s user=%d task=%d %dmin%s\n", e.ID, e.Date, e.UserID, e.TaskID, e.Minutes, deleted)
		if e.State == models.EntryPublic {
			total += e.Minutes
		}
	}
	fmt.Fprintf(f.w, "Total: %dh %02dmin\n", total/60, total%60)
}

func writeCounts(w io.Writer, name string, c adapters.Counts) {
	if c.Created+c.Updated+c.Closed+c.Unchanged == 0 {
		return
	}
	fmt.Fprintf(w, "  %-10s %d created, %d updated, %d closed, %d unchanged\n",
		name+":", c.Created, c.Updated, c.Closed, c.Unchanged)
}

func (f *TextFormatter) Report(label string, rep *adapters.Report) {
	if !rep.Changed() && rep.Unresolved == 0 {
		fmt.Fprintf(f.w, "%s: up to date\n", label)
		return
	}
	fmt.Fprintf(f.w, "%s:\n", label)
	writeCounts(f.w, "workspaces", rep.Workspaces)
	writeCounts(f.w, "lists", rep.Lists)
	writeCounts(f.w, "users", rep.Users)
	writeCounts(f.w, "tasks", rep.Tasks)
	if rep.Unresolved > 0 {
		fmt.Fprintf(f.w, "  %d assignee(s) could not be resolved\n", rep.Unresolved)
	}
}

func (f *TextFormatter) Success(msg string) {
	fmt.Fprintln(f.w, msg)
}

func (f *TextFormatter) Error(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func (f *TextFormatter) Info(msg string) {
	fmt.Fprintln(f.w, msg)
}

func (f *TextFormatter) KeyValue(key, value string) {
	fmt.Fprintf(f.w, "%s: %s\n", key, value)
}

func (f *TextFormatter) JSON(v interface{}) {
	// TextFormatter doesn't output JSON, but provide fallback
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		f.Error(err)
		return
	}
	fmt.Fprintln(f.w, string(data))
}

// JSONFormatter implementations

func (f *JSONFormatter) DataSourceList(sources []models.DataSource) {
	f.JSON(map[string]interface{}{
		"count":        len(sources),
		"data_sources": sources,
	})
}

func (f *JSONFormatter) WorkspaceList(workspaces []models.Workspace) {
	f.JSON(map[string]interface{}{
		"count":      len(workspaces),
		"workspaces": workspaces,
	})
}

func (f *JSONFormatter) TaskList(tasks []models.Task, title string) {
	f.JSON(map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

func (f *JSONFormatter) EntryList(entries []models.Entry) {
	f.JSON(map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (f *JSONFormatter) Report(label string, rep *adapters.Report) {
	f.JSON(map[string]interface{}{
		"scope":  label,
		"report": rep,
	})
}

func (f *JSONFormatter) Success(msg string) {
	f.JSON(map[string]interface{}{"success": true, "message": msg})
}

func (f *JSONFormatter) Error(err error) {
	f.JSON(map[string]interface{}{"error": true, "message": err.Error()})
}

func (f *JSONFormatter) Info(msg string) {
	f.JSON(map[string]interface{}{"message": msg})
}

func (f *JSONFormatter) KeyValue(key, value string) {
	f.JSON(map[string]string{key: value})
}

func (f *JSONFormatter) JSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"error": true, "message": "JSON marshal error: %s"}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(f.w, string(data))
}
