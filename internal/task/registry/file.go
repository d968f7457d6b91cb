package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"autopilot/internal/storage"
	"autopilot/internal/task"
)

var knownTaskKeys = map[string]bool{
	"id": true, "type": true, "parameters": true, "schedule": true, "enabled": true, "last_run_at": true,
}

// readFile loads tasks.json. Entries written by older dashboards keep their
// inputs (topic, platform, ...) next to "type"; those keys fold into parameters.
func readFile(path string) (map[task.Category][]task.Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("tasks.json: %w", err)
	}
	out := make(map[task.Category][]task.Task, len(raw))
	for name, entries := range raw {
		cat, err := task.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("tasks.json: %w", err)
		}
		list := make([]task.Task, 0, len(entries))
		for i, e := range entries {
			t, err := decodeEntry(e)
			if err != nil {
				return nil, fmt.Errorf("tasks.json: %s[%d]: %w", cat, i, err)
			}
			t.Category = cat
			list = append(list, t)
		}
		out[cat] = list
	}
	return out, nil
}

func decodeEntry(raw json.RawMessage) (task.Task, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return task.Task{}, err
	}
	extra := task.Params{}
	for k, v := range fields {
		if knownTaskKeys[k] {
			continue
		}
		var x any
		if err := json.Unmarshal(v, &x); err != nil {
			return task.Task{}, err
		}
		extra[k] = x
		delete(fields, k)
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return task.Task{}, err
	}
	var t task.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return task.Task{}, err
	}
	if len(extra) > 0 {
		if t.Parameters == nil {
			t.Parameters = task.Params{}
		}
		for k, v := range extra {
			if _, ok := t.Parameters[k]; !ok {
				t.Parameters[k] = v
			}
		}
	}
	return t, nil
}

func writeFile(path string, tasks map[task.Category][]task.Task) error {
	out := make(map[string][]task.Task, len(tasks))
	for cat, list := range tasks {
		if list == nil {
			list = []task.Task{}
		}
		out[string(cat)] = list
	}
	return storage.WriteJSONAtomic(path, out)
}
