package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/db"
)

// settingDefaults lists the known settings and their values before the
// user changes anything. notifications_enabled controls whether the
// daemon announces arriving notifications on stdout; favorites_enabled
// controls whether the favorites view is available.
var settingDefaults = map[string]bool{
	db.SettingNotificationsEnabled: true,
	db.SettingFavoritesEnabled:     true,
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change client settings",
		Args:  cobra.NoArgs,
		RunE:  runSettingsList,
	}
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func runSettingsList(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	settings := db.NewSettingsRepository(app.DB)

	keys := make([]string, 0, len(settingDefaults))
	for key := range settingDefaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		value, err := settings.GetBool(cmd.Context(), key, settingDefaults[key])
		if err != nil {
			return err
		}
		rows = append(rows, []string{key, formatOnOff(value)})
	}
	return writeTable(cmd.OutOrStdout(), []string{"SETTING", "VALUE"}, rows)
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <setting> <on|off>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE:  runSettingsSet,
	}
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(strings.TrimSpace(args[0]))
	if _, known := settingDefaults[key]; !known {
		return fmt.Errorf("unknown setting %q", key)
	}
	value, err := parseOnOff(args[1])
	if err != nil {
		return err
	}

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := db.NewSettingsRepository(app.DB).SetBool(cmd.Context(), key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", key, formatOnOff(value))
	return nil
}

func parseOnOff(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("value must be on or off, got %q", raw)
	}
	return value, nil
}

func formatOnOff(value bool) string {
	if value {
		return "on"
	}
	return "off"
}
