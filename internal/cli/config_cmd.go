package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mithrel/oneshot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or inspect config.toml",
		// these commands must work while the current config is invalid
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	cmd.AddCommand(newConfigGenerateCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

type generateOptions struct {
	out       string
	overwrite bool
	update    bool
	stdout    bool
}

func newConfigGenerateCmd() *cobra.Command {
	var o generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the default config.toml, or merge new keys into an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.overwrite && o.update {
				return fmt.Errorf("choose either --overwrite or --update")
			}
			if o.stdout {
				_, err := fmt.Fprint(cmd.OutOrStdout(), config.RenderDefaultTOML())
				return err
			}
			if o.out == "" {
				o.out = config.DefaultConfigPath()
			}
			return generateConfig(cmd, o)
		},
	}
	cmd.Flags().StringVarP(&o.out, "output", "o", "", "output path (default $XDG_CONFIG_HOME/oneshot/config.toml)")
	cmd.Flags().BoolVar(&o.overwrite, "overwrite", false, "replace an existing config, keeping the old one as .bak")
	cmd.Flags().BoolVar(&o.update, "update", false, "add missing keys and mark removed ones, keeping the old file as .bak")
	cmd.Flags().BoolVar(&o.stdout, "stdout", false, "print the default config instead of writing it")
	return cmd
}

func generateConfig(cmd *cobra.Command, o generateOptions) error {
	old, err := os.ReadFile(o.out)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if exists && !o.overwrite && !o.update {
		return fmt.Errorf("config already exists at %s; pass --update to merge new keys or --overwrite to replace it", o.out)
	}

	content := config.RenderDefaultTOML()
	if exists && o.update {
		updated, changed := config.UpdateTOML(string(old))
		if !changed {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config already up to date: %s\n", o.out)
			return nil
		}
		content = updated
	}

	if err := os.MkdirAll(filepath.Dir(o.out), 0o700); err != nil {
		return err
	}
	if exists {
		// one backup per run; an older .bak is replaced
		if err := os.WriteFile(o.out+".bak", old, 0o600); err != nil {
			return fmt.Errorf("backup config: %w", err)
		}
	}
	if err := os.WriteFile(o.out, []byte(content), 0o600); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", o.out)
	if exists {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backup: %s.bak\n", o.out)
	}
	return nil
}

// newConfigShowCmd prints the effective value of every known key after the
// config file, ONESHOT_* variables and flags are applied.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				v.SetConfigFile(path)
			}
			if err := config.Load(cmd.Context(), v); err != nil {
				return err
			}
			applyConfigFlagOverrides(cmd, v, rootFlagKeys)

			w := cmd.OutOrStdout()
			if used := v.ConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(w, "# file: %s\n", used)
			}
			for _, opt := range config.GetConfigOptions() {
				_, _ = fmt.Fprintf(w, "%s = %v\n", opt.Key, v.Get(opt.Key))
			}
			if err := config.CheckConfigValidity(v); err != nil {
				_, _ = fmt.Fprintf(w, "# invalid: %v\n", err)
			}
			return nil
		},
	}
}
