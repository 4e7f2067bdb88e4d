package memory

import (
	"fmt"
	"strings"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

type folderObject struct {
	store *Store
	path  string
}

func (f *folderObject) Get(name string) (taskservice.Object, error) {
	return nil, fmt.Errorf("folder has no object property %q: %w", name, taskservice.ErrInvalidConfiguration)
}

func (f *folderObject) Value(name string) (interface{}, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	dir, err := f.store.lookupLocked(f.path)
	if err != nil {
		return nil, err
	}

	switch name {
	case "Name":
		if dir.name == "" {
			return `\`, nil
		}
		return dir.name, nil
	case "Path":
		return dir.path, nil
	default:
		return nil, fmt.Errorf("folder has no property %q: %w", name, taskservice.ErrInvalidConfiguration)
	}
}

func (f *folderObject) Set(name string, value interface{}) error {
	return fmt.Errorf("folder property %q is read-only: %w", name, taskservice.ErrInvalidConfiguration)
}

func (f *folderObject) Item(index int) (taskservice.Object, error) {
	return nil, fmt.Errorf("folder is not a collection: %w", taskservice.ErrInvalidConfiguration)
}

func (f *folderObject) Release() {}

func (f *folderObject) Call(method string, args ...interface{}) (taskservice.Object, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	dir, err := f.store.folderLocked(f.path)
	if err != nil {
		return nil, err
	}

	switch method {
	case "GetTasks":
		flags, err := intArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		out := &list{kind: "RegisteredTaskCollection"}
		for _, t := range dir.tasks {
			if flags&taskservice.EnumHidden == 0 && t.def.child("Settings").boolean("Hidden") {
				continue
			}
			out.items = append(out.items, &registeredObject{store: f.store, folder: dir.path, name: t.name})
		}
		return out, nil

	case "GetFolders":
		out := &list{kind: "TaskFolderCollection"}
		for _, child := range dir.folders {
			out.items = append(out.items, &folderObject{store: f.store, path: child.path})
		}
		return out, nil

	case "GetFolder":
		rel, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		target := rel
		if !strings.HasPrefix(strings.ReplaceAll(rel, "/", `\`), `\`) {
			target = dir.path + `\` + rel
		}
		child, err := f.store.lookupLocked(target)
		if err != nil {
			return nil, err
		}
		return &folderObject{store: f.store, path: child.path}, nil

	case "GetTask":
		name, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		_, t := dir.task(name)
		if t == nil {
			return nil, fmt.Errorf("task %s: %w", dir.taskPath(name), taskservice.ErrNotFound)
		}
		return &registeredObject{store: f.store, folder: dir.path, name: t.name}, nil

	case "DeleteTask":
		name, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		i, t := dir.task(name)
		if t == nil {
			return nil, fmt.Errorf("task %s: %w", dir.taskPath(name), taskservice.ErrNotFound)
		}
		dir.tasks = append(dir.tasks[:i], dir.tasks[i+1:]...)
		return nil, nil

	case "RegisterTaskDefinition":
		return f.register(dir, args)

	case "CreateFolder":
		name, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		if len(taskservice.SplitPath(name)) != 1 {
			return nil, fmt.Errorf("invalid folder name %q: %w", name, taskservice.ErrInvalidConfiguration)
		}
		name = taskservice.SplitPath(name)[0]
		if dir.subfolder(name) != nil {
			return nil, fmt.Errorf("folder %s\\%s: %w", strings.TrimSuffix(dir.path, `\`), name, taskservice.ErrAlreadyExists)
		}
		child := dir.addFolder(name)
		return &folderObject{store: f.store, path: child.path}, nil

	case "DeleteFolder":
		name, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		for i, child := range dir.folders {
			if !strings.EqualFold(child.name, name) {
				continue
			}
			if len(child.tasks) > 0 || len(child.folders) > 0 {
				return nil, fmt.Errorf("folder %s is not empty: %w", child.path, taskservice.ErrInvalidConfiguration)
			}
			dir.folders = append(dir.folders[:i], dir.folders[i+1:]...)
			return nil, nil
		}
		return nil, fmt.Errorf("folder %s\\%s: %w", strings.TrimSuffix(dir.path, `\`), name, taskservice.ErrNotFound)

	default:
		return nil, fmt.Errorf("folder has no method %q: %w", method, taskservice.ErrInvalidConfiguration)
	}
}

// register stores a copy of the definition. Arguments follow the native
// signature: name, definition, flags, user, password, logon type, sddl.
func (f *folderObject) register(dir *folder, args []interface{}) (taskservice.Object, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("RegisterTaskDefinition expects at least 3 arguments: %w", taskservice.ErrInvalidConfiguration)
	}
	name, err := stringArg("RegisterTaskDefinition", args, 0)
	if err != nil {
		return nil, err
	}
	def, ok := args[1].(*node)
	if !ok || def.kind != kindDefinition {
		return nil, fmt.Errorf("RegisterTaskDefinition: not a task definition: %w", taskservice.ErrRegistrationFailed)
	}
	flags, err := intArg("RegisterTaskDefinition", args, 2)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = newUUIDName()
	}
	if strings.ContainsAny(name, `\/`) {
		return nil, fmt.Errorf("invalid task name %q: %w", name, taskservice.ErrRegistrationFailed)
	}
	if len(def.child("Actions").items) == 0 {
		return nil, fmt.Errorf("task %s has no actions: %w", dir.taskPath(name), taskservice.ErrRegistrationFailed)
	}
	for _, a := range def.child("Actions").items {
		if a.str("Path") == "" {
			return nil, fmt.Errorf("task %s: exec action without a path: %w", dir.taskPath(name), taskservice.ErrRegistrationFailed)
		}
	}

	i, existing := dir.task(name)
	switch {
	case existing != nil && flags&flagUpdate == 0:
		return nil, fmt.Errorf("task %s: %w", dir.taskPath(name), taskservice.ErrAlreadyExists)
	case existing == nil && flags&flagCreate == 0:
		return nil, fmt.Errorf("task %s: %w", dir.taskPath(name), taskservice.ErrNotFound)
	case existing != nil:
		dir.tasks[i] = &registration{name: existing.name, def: def.clone()}
		name = existing.name
	default:
		dir.tasks = append(dir.tasks, &registration{name: name, def: def.clone()})
	}

	return &registeredObject{store: f.store, folder: dir.path, name: name}, nil
}

type registeredObject struct {
	store  *Store
	folder string
	name   string
}

func (r *registeredObject) resolveLocked() (*folder, *registration, error) {
	dir, err := r.store.folderLocked(r.folder)
	if err != nil {
		return nil, nil, err
	}
	_, t := dir.task(r.name)
	if t == nil {
		return nil, nil, fmt.Errorf("task %s: %w", dir.taskPath(r.name), taskservice.ErrNotFound)
	}
	return dir, t, nil
}

func (r *registeredObject) Get(name string) (taskservice.Object, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, t, err := r.resolveLocked()
	if err != nil {
		return nil, err
	}
	if name != "Definition" {
		return nil, fmt.Errorf("registered task has no object property %q: %w", name, taskservice.ErrInvalidConfiguration)
	}
	return t.def.clone(), nil
}

func (r *registeredObject) Value(name string) (interface{}, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	dir, t, err := r.resolveLocked()
	if err != nil {
		return nil, err
	}

	enabled := t.def.child("Settings").boolean("Enabled")
	switch name {
	case "Name":
		return t.name, nil
	case "Path":
		return dir.taskPath(t.name), nil
	case "Enabled":
		return enabled, nil
	case "State":
		if enabled {
			return StateReady, nil
		}
		return StateDisabled, nil
	case "Xml":
		return renderDefinition(t.def)
	default:
		return nil, fmt.Errorf("registered task has no property %q: %w", name, taskservice.ErrInvalidConfiguration)
	}
}

func (r *registeredObject) Set(name string, value interface{}) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, t, err := r.resolveLocked()
	if err != nil {
		return err
	}
	if name != "Enabled" {
		return fmt.Errorf("registered task property %q is read-only: %w", name, taskservice.ErrInvalidConfiguration)
	}
	return t.def.child("Settings").Set("Enabled", value)
}

func (r *registeredObject) Call(method string, args ...interface{}) (taskservice.Object, error) {
	return nil, fmt.Errorf("registered task has no method %q: %w", method, taskservice.ErrInvalidConfiguration)
}

func (r *registeredObject) Item(index int) (taskservice.Object, error) {
	return nil, fmt.Errorf("registered task is not a collection: %w", taskservice.ErrInvalidConfiguration)
}

func (r *registeredObject) Release() {}

func stringArg(method string, args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d: %w", method, i+1, taskservice.ErrInvalidConfiguration)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %T: %w", method, i+1, args[i], taskservice.ErrInvalidConfiguration)
	}
	return s, nil
}

func intArg(method string, args []interface{}, i int) (int, error) {
	if i >= len(args) {
		return 0, nil
	}
	v, err := taskservice.Int(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s: argument %d: %v: %w", method, i+1, err, taskservice.ErrInvalidConfiguration)
	}
	return v, nil
}
