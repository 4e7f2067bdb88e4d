package job

import (
	"fmt"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

// ListAll walks folder depth first: the jobs held directly in a folder come
// before the jobs of its child folders. Hidden jobs are included. Any failure
// aborts the walk.
func ListAll(folder taskservice.Object) ([]*RegisteredJob, error) {
	path, err := taskservice.String(folder, "Path")
	if err != nil {
		return nil, fmt.Errorf("failed to read folder path: %w", err)
	}

	jobs, err := listJobs(folder, path)
	if err != nil {
		return nil, err
	}

	children, err := folder.Call("GetFolders", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders in %s: %w", path, err)
	}
	defer children.Release()

	count, err := taskservice.Count(children)
	if err != nil {
		return nil, fmt.Errorf("failed to count folders in %s: %w", path, err)
	}

	for i := 1; i <= count; i++ {
		child, err := children.Item(i)
		if err != nil {
			return nil, fmt.Errorf("failed to open folder %d in %s: %w", i, path, err)
		}
		nested, err := ListAll(child)
		child.Release()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, nested...)
	}

	return jobs, nil
}

func listJobs(folder taskservice.Object, path string) ([]*RegisteredJob, error) {
	tasks, err := folder.Call("GetTasks", taskservice.EnumHidden)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs in %s: %w", path, err)
	}
	defer tasks.Release()

	count, err := taskservice.Count(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs in %s: %w", path, err)
	}

	jobs := make([]*RegisteredJob, 0, count)
	for i := 1; i <= count; i++ {
		task, err := tasks.Item(i)
		if err != nil {
			return nil, fmt.Errorf("failed to open job %d in %s: %w", i, path, err)
		}
		job, err := snapshot(task)
		task.Release()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
