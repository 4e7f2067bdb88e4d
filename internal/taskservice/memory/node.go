package memory

import (
	"fmt"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

type propType int

const (
	propString propType = iota
	propBool
	propInt
	propDuration
)

const (
	kindDefinition   = "TaskDefinition"
	kindRegistration = "RegistrationInfo"
	kindTriggers     = "TriggerCollection"
	kindTrigger      = "Trigger"
	kindRepetition   = "RepetitionPattern"
	kindActions      = "ActionCollection"
	kindAction       = "Action"
	kindSettings     = "TaskSettings"
	kindIdleSettings = "IdleSettings"
	kindPrincipal    = "Principal"
)

var schema = map[string]map[string]propType{
	kindRegistration: {
		"Author":      propString,
		"Description": propString,
	},
	kindTrigger: {
		"Id":                 propString,
		"Enabled":            propBool,
		"ExecutionTimeLimit": propDuration,
		"Delay":              propDuration,
	},
	kindRepetition: {
		"Interval":          propDuration,
		"Duration":          propDuration,
		"StopAtDurationEnd": propBool,
	},
	kindAction: {
		"Id":               propString,
		"Path":             propString,
		"Arguments":        propString,
		"WorkingDirectory": propString,
	},
	kindSettings: {
		"Enabled":                    propBool,
		"Hidden":                     propBool,
		"RunOnlyIfIdle":              propBool,
		"WakeToRun":                  propBool,
		"DisallowStartIfOnBatteries": propBool,
		"AllowHardTerminate":         propBool,
		"ExecutionTimeLimit":         propDuration,
	},
	kindIdleSettings: {
		"StopOnIdleEnd": propBool,
		"RestartOnIdle": propBool,
		"IdleDuration":  propDuration,
		"WaitTimeout":   propDuration,
	},
	kindPrincipal: {
		"Id":        propString,
		"UserId":    propString,
		"RunLevel":  propInt,
		"LogonType": propInt,
	},
}

// node is a definition-side object: a property bag with named children and,
// for collections, ordered items. Definitions are owned by one builder at a
// time, so nodes carry no lock of their own.
type node struct {
	kind     string
	props    map[string]interface{}
	children map[string]*node
	items    []*node
}

func newNode(kind string, props map[string]interface{}) *node {
	if props == nil {
		props = map[string]interface{}{}
	}
	return &node{kind: kind, props: props, children: map[string]*node{}}
}

func newDefinition() *node {
	def := newNode(kindDefinition, nil)
	def.children["RegistrationInfo"] = newNode(kindRegistration, map[string]interface{}{
		"Author":      "",
		"Description": "",
	})
	def.children["Triggers"] = newNode(kindTriggers, nil)
	def.children["Actions"] = newNode(kindActions, nil)

	settings := newNode(kindSettings, map[string]interface{}{
		"Enabled":                    true,
		"Hidden":                     false,
		"RunOnlyIfIdle":              false,
		"WakeToRun":                  false,
		"DisallowStartIfOnBatteries": true,
		"AllowHardTerminate":         true,
		"ExecutionTimeLimit":         "PT72H",
	})
	settings.children["IdleSettings"] = newNode(kindIdleSettings, map[string]interface{}{
		"StopOnIdleEnd": true,
		"RestartOnIdle": false,
		"IdleDuration":  "PT10M",
		"WaitTimeout":   "PT1H",
	})
	def.children["Settings"] = settings

	def.children["Principal"] = newNode(kindPrincipal, map[string]interface{}{
		"Id":        "",
		"UserId":    "",
		"RunLevel":  taskservice.RunLevelLUA,
		"LogonType": taskservice.LogonInteractiveToken,
	})
	return def
}

func newTrigger(triggerType int) *node {
	t := newNode(kindTrigger, map[string]interface{}{
		"Type":               triggerType,
		"Id":                 "",
		"Enabled":            false,
		"ExecutionTimeLimit": "",
	})
	if triggerType == taskservice.TriggerLogon {
		t.props["Delay"] = ""
	}
	t.children["Repetition"] = newNode(kindRepetition, map[string]interface{}{
		"Interval":          "",
		"Duration":          "",
		"StopAtDurationEnd": false,
	})
	return t
}

func newAction() *node {
	return newNode(kindAction, map[string]interface{}{
		"Type":             taskservice.ActionExec,
		"Id":               "",
		"Path":             "",
		"Arguments":        "",
		"WorkingDirectory": "",
	})
}

func (n *node) clone() *node {
	c := &node{
		kind:     n.kind,
		props:    make(map[string]interface{}, len(n.props)),
		children: make(map[string]*node, len(n.children)),
		items:    make([]*node, 0, len(n.items)),
	}
	for k, v := range n.props {
		c.props[k] = v
	}
	for k, child := range n.children {
		c.children[k] = child.clone()
	}
	for _, item := range n.items {
		c.items = append(c.items, item.clone())
	}
	return c
}

func (n *node) Get(name string) (taskservice.Object, error) {
	child, ok := n.children[name]
	if !ok {
		return nil, fmt.Errorf("%s has no object property %q: %w", n.kind, name, taskservice.ErrInvalidConfiguration)
	}
	return child, nil
}

func (n *node) Value(name string) (interface{}, error) {
	switch {
	case n.kind == kindDefinition && name == "XmlText":
		return renderDefinition(n)
	case name == "Count" && (n.kind == kindTriggers || n.kind == kindActions):
		return len(n.items), nil
	}

	v, ok := n.props[name]
	if !ok {
		return nil, fmt.Errorf("%s has no property %q: %w", n.kind, name, taskservice.ErrInvalidConfiguration)
	}
	return v, nil
}

func (n *node) Set(name string, value interface{}) error {
	if n.kind == kindDefinition && name == "XmlText" {
		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("XmlText expects a string, got %T: %w", value, taskservice.ErrInvalidConfiguration)
		}
		parsed, err := parseDefinition(text)
		if err != nil {
			return err
		}
		n.props = parsed.props
		n.children = parsed.children
		return nil
	}

	kind, ok := schema[n.kind][name]
	if !ok {
		return fmt.Errorf("%s has no writable property %q: %w", n.kind, name, taskservice.ErrInvalidConfiguration)
	}
	if n.kind == kindTrigger && name == "Delay" && n.props["Type"] != taskservice.TriggerLogon {
		return fmt.Errorf("delay is only valid on logon triggers: %w", taskservice.ErrInvalidConfiguration)
	}

	switch kind {
	case propString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s.%s expects a string, got %T: %w", n.kind, name, value, taskservice.ErrInvalidConfiguration)
		}
	case propBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s.%s expects a bool, got %T: %w", n.kind, name, value, taskservice.ErrInvalidConfiguration)
		}
	case propInt:
		v, err := taskservice.Int(value)
		if err != nil {
			return fmt.Errorf("%s.%s: %v: %w", n.kind, name, err, taskservice.ErrInvalidConfiguration)
		}
		if name == "RunLevel" && v != taskservice.RunLevelLUA && v != taskservice.RunLevelHighest {
			return fmt.Errorf("unknown run level %d: %w", v, taskservice.ErrInvalidConfiguration)
		}
		value = v
	case propDuration:
		s, ok := value.(string)
		if !ok || (s != "" && !utils.ValidDuration(s)) {
			return fmt.Errorf("%s.%s: invalid time span %v: %w", n.kind, name, value, taskservice.ErrInvalidConfiguration)
		}
	}

	n.props[name] = value
	return nil
}

func (n *node) Call(method string, args ...interface{}) (taskservice.Object, error) {
	if method != "Create" || (n.kind != kindTriggers && n.kind != kindActions) {
		return nil, fmt.Errorf("%s has no method %q: %w", n.kind, method, taskservice.ErrInvalidConfiguration)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("create expects one argument: %w", taskservice.ErrInvalidConfiguration)
	}
	kind, err := taskservice.Int(args[0])
	if err != nil {
		return nil, fmt.Errorf("create: %v: %w", err, taskservice.ErrInvalidConfiguration)
	}

	var created *node
	switch {
	case n.kind == kindTriggers && (kind == taskservice.TriggerIdle || kind == taskservice.TriggerLogon):
		created = newTrigger(kind)
	case n.kind == kindActions && kind == taskservice.ActionExec:
		created = newAction()
	default:
		return nil, fmt.Errorf("%s cannot create kind %d: %w", n.kind, kind, taskservice.ErrInvalidConfiguration)
	}

	n.items = append(n.items, created)
	return created, nil
}

func (n *node) Item(index int) (taskservice.Object, error) {
	if index < 1 || index > len(n.items) {
		return nil, fmt.Errorf("%s index %d out of range: %w", n.kind, index, taskservice.ErrNotFound)
	}
	return n.items[index-1], nil
}

func (n *node) Release() {}

func (n *node) child(name string) *node {
	return n.children[name]
}

func (n *node) str(name string) string {
	s, _ := n.props[name].(string)
	return s
}

func (n *node) boolean(name string) bool {
	b, _ := n.props[name].(bool)
	return b
}

func (n *node) integer(name string) int {
	v, _ := taskservice.Int(n.props[name])
	return v
}
