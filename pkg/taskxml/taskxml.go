// Package taskxml reads and writes the subset of the Task Scheduler 1.2 XML
// schema that task-watcher understands.
package taskxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const Namespace = "http://schemas.microsoft.com/windows/2004/02/mit/task"

// Element names of the supported variants.
const (
	IdleTriggerElement  = "IdleTrigger"
	LogonTriggerElement = "LogonTrigger"
	ExecElement         = "Exec"
)

// Run level values as written in the schema.
const (
	RunLevelHighest        = "HighestAvailable"
	RunLevelLeastPrivilege = "LeastPrivilege"
)

type Task struct {
	XMLName          xml.Name          `xml:"http://schemas.microsoft.com/windows/2004/02/mit/task Task"`
	Version          string            `xml:"version,attr,omitempty"`
	RegistrationInfo *RegistrationInfo `xml:"RegistrationInfo,omitempty"`
	Triggers         *Triggers         `xml:"Triggers,omitempty"`
	Principals       *Principals       `xml:"Principals,omitempty"`
	Settings         *Settings         `xml:"Settings,omitempty"`
	Actions          *Actions          `xml:"Actions,omitempty"`
}

type RegistrationInfo struct {
	Author      string `xml:"Author,omitempty"`
	Description string `xml:"Description,omitempty"`
}

// Triggers keeps every trigger element in document order, including kinds
// this package does not model.
type Triggers struct {
	Items []Trigger `xml:",any"`
}

type Trigger struct {
	XMLName            xml.Name
	ID                 string      `xml:"id,attr,omitempty"`
	Repetition         *Repetition `xml:"Repetition,omitempty"`
	ExecutionTimeLimit string      `xml:"ExecutionTimeLimit,omitempty"`
	Enabled            *bool       `xml:"Enabled,omitempty"`
	UserID             string      `xml:"UserId,omitempty"`
	Delay              string      `xml:"Delay,omitempty"`
}

type Repetition struct {
	Interval          string `xml:"Interval,omitempty"`
	Duration          string `xml:"Duration,omitempty"`
	StopAtDurationEnd *bool  `xml:"StopAtDurationEnd,omitempty"`
}

type Principals struct {
	Items []Principal `xml:"Principal"`
}

type Principal struct {
	ID        string `xml:"id,attr,omitempty"`
	UserID    string `xml:"UserId,omitempty"`
	LogonType string `xml:"LogonType,omitempty"`
	RunLevel  string `xml:"RunLevel,omitempty"`
}

type Settings struct {
	DisallowStartIfOnBatteries *bool         `xml:"DisallowStartIfOnBatteries,omitempty"`
	AllowHardTerminate         *bool         `xml:"AllowHardTerminate,omitempty"`
	RunOnlyIfIdle              *bool         `xml:"RunOnlyIfIdle,omitempty"`
	WakeToRun                  *bool         `xml:"WakeToRun,omitempty"`
	ExecutionTimeLimit         string        `xml:"ExecutionTimeLimit,omitempty"`
	IdleSettings               *IdleSettings `xml:"IdleSettings,omitempty"`
	Enabled                    *bool         `xml:"Enabled,omitempty"`
	Hidden                     *bool         `xml:"Hidden,omitempty"`
}

type IdleSettings struct {
	Duration      string `xml:"Duration,omitempty"`
	WaitTimeout   string `xml:"WaitTimeout,omitempty"`
	StopOnIdleEnd *bool  `xml:"StopOnIdleEnd,omitempty"`
	RestartOnIdle *bool  `xml:"RestartOnIdle,omitempty"`
}

type Actions struct {
	Context string `xml:"Context,attr,omitempty"`
	Items   []Exec `xml:"Exec"`
}

type Exec struct {
	ID               string `xml:"id,attr,omitempty"`
	Command          string `xml:"Command"`
	Arguments        string `xml:"Arguments,omitempty"`
	WorkingDirectory string `xml:"WorkingDirectory,omitempty"`
}

// Unmarshal parses a task definition. The service labels its XML as UTF-16
// even though the text handed to Go is already decoded, so the declared
// charset is ignored.
func Unmarshal(text string) (*Task, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty task XML")
	}

	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var t Task
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse task XML: %w", err)
	}
	return &t, nil
}

// Marshal renders t with an XML declaration and indentation.
func Marshal(t *Task) (string, error) {
	if t.Version == "" {
		t.Version = "1.2"
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(t); err != nil {
		return "", fmt.Errorf("failed to render task XML: %w", err)
	}
	return buf.String(), nil
}

// Bool returns a pointer to v, for the optional schema fields.
func Bool(v bool) *bool {
	return &v
}

// BoolOr dereferences p, falling back to def when the element was absent.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
