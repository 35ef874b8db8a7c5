// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"leadgen-workers/internal/common/validation"
	"leadgen-workers/pkg/registry"
)

const defaultPath = "pkg/registry/activities.json"

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	listPath := listCmd.String("path", defaultPath, "Path to registry file")

	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	taskType := updateCmd.String("taskType", "", "Task type to update")
	field := updateCmd.String("field", "", "Field to update (status, version, timeout, retries)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		reg := mustLoad(*listPath)
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "TASK TYPE\tCATEGORY\tSTATUS\tTIMEOUT\tRETRIES")
		for _, a := range reg.Activities {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.TaskType, a.Category, a.ImplementationStatus, a.Timeout, a.Retries)
		}
		w.Flush()

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *taskType == "" || *field == "" || *value == "" {
			fmt.Println("Error: taskType, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateActivity(*updatePath, *taskType, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated %s, field %s to %s\n", *taskType, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(*validatePath); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func mustLoad(path string) *registry.ActivityRegistry {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		fmt.Printf("Error loading registry: %v\n", err)
		os.Exit(1)
	}
	return reg
}

func updateActivity(path, taskType, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	idx := -1
	for i := range reg.Activities {
		if reg.Activities[i].TaskType == taskType {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("activity with taskType %s not found", taskType)
	}

	a := &reg.Activities[idx]
	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "timeout":
		a.Timeout = value
		if _, err := a.TimeoutDuration(); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().Format("2006-01-02")
	return saveRegistry(reg, path)
}

// validateRegistry also compiles every input schema, which is what the
// worker manager does at start-up.
func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if len(reg.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}
	for _, a := range reg.Activities {
		if a.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", a.TaskType)
		}
		if _, err := a.TimeoutDuration(); err != nil {
			return fmt.Errorf("activity %s has invalid timeout %q", a.TaskType, a.Timeout)
		}
		if !a.HasInputSchema() {
			fmt.Printf("warning: %s has no input schema, job variables are not validated\n", a.TaskType)
		}
	}
	if _, err := validation.NewValidator(reg); err != nil {
		return err
	}

	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  list      Print the activities in the catalog
  update    Update an activity's status, version, timeout or retries
  validate  Check the catalog and compile its input schemas
  help      Show this help message

Examples:
  registry-updater list
  registry-updater update -taskType search-leads -field retries -value 3
  registry-updater validate -path pkg/registry/activities.json`)
}
