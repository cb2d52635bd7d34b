package main

import (
	"fmt"
	"strconv"
	"time"

	"match-workers/internal/common/validation"
	"match-workers/pkg/registry"

	"github.com/spf13/cobra"
)

const defaultRegistryPath = "configs/activity-registry.json"

func newRegistryCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Export, validate and update the activity registry",
	}
	cmd.PersistentFlags().StringVar(&path, "path", defaultRegistryPath, "path to registry file")

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the built-in registry to --path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.Default()
			reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
			if err := reg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d activities to %s\n", len(reg.Activities), path)
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the registry at --path and compile its input schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			if err := reg.Validate(); err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			if _, err := validation.NewValidator(reg); err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registry validation passed.")
			return nil
		},
	}

	var id, field, value string
	update := &cobra.Command{
		Use:   "update",
		Short: "Set one field of an activity in the registry at --path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			if err := updateActivity(reg, id, field, value); err != nil {
				return err
			}
			reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
			if err := reg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated activity %s, field %s to %s\n", id, field, value)
			return nil
		},
	}
	update.Flags().StringVar(&id, "id", "", "activity ID to update")
	update.Flags().StringVar(&field, "field", "", "field to update (status, version, displayName, description, timeout, retries)")
	update.Flags().StringVar(&value, "value", "", "new value for the field")
	_ = update.MarkFlagRequired("id")
	_ = update.MarkFlagRequired("field")
	_ = update.MarkFlagRequired("value")

	cmd.AddCommand(export, validate, update)
	return cmd
}

func updateActivity(reg *registry.ActivityRegistry, id, field, value string) error {
	for i := range reg.Activities {
		if reg.Activities[i].ID != id {
			continue
		}
		a := &reg.Activities[i]
		switch field {
		case "status":
			a.ImplementationStatus = value
		case "version":
			a.Version = value
		case "displayName":
			a.DisplayName = value
		case "description":
			a.Description = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			a.Timeout = value
		case "retries":
			retries, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid retries value: %w", err)
			}
			a.Retries = retries
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		return nil
	}
	return fmt.Errorf("activity with ID %s not found", id)
}
