package cli

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage an app's environment variables",
}

// setAppEnvRequest mirrors the daemon's unexported set-env request body.
// The daemon merges these into the app's stored set; an empty value
// deletes the key.
type setAppEnvRequest struct {
	Env map[string]string `json:"env"`
}

func init() {
	rootCmd.AddCommand(envCmd)

	setCmd := &cobra.Command{
		Use:   "set <app> <KEY=value>...",
		Short: "Set one or more environment variables",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runEnvSet,
	}
	setCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	envCmd.AddCommand(setCmd)

	getCmd := &cobra.Command{
		Use:   "get <app> <KEY>",
		Short: "Print one variable's value",
		Args:  cobra.ExactArgs(2),
		RunE:  runEnvGet,
	}
	getCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	envCmd.AddCommand(getCmd)

	listCmd := &cobra.Command{
		Use:   "list <app>",
		Short: "List all environment variables",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnvList,
	}
	listCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	envCmd.AddCommand(listCmd)

	delCmd := &cobra.Command{
		Use:   "delete <app> <KEY>",
		Short: "Delete one environment variable",
		Args:  cobra.ExactArgs(2),
		RunE:  runEnvDelete,
	}
	delCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	envCmd.AddCommand(delCmd)

	pushCmd := &cobra.Command{
		Use:   "push <app> <file>",
		Short: "Merge variables from a .env file into the app's environment",
		Args:  cobra.ExactArgs(2),
		RunE:  runEnvPush,
	}
	pushCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	envCmd.AddCommand(pushCmd)
}

func getAppEnv(c *Client, appID int64) (map[string]string, error) {
	var resp struct {
		Env map[string]string `json:"env"`
	}
	if err := c.do("GET", fmt.Sprintf("/api/v1/apps/%d/env", appID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Env == nil {
		resp.Env = map[string]string{}
	}
	return resp.Env, nil
}

func splitKV(pair string) (key, value string, ok bool) {
	i := strings.IndexByte(pair, '=')
	if i <= 0 {
		return "", "", false
	}
	return pair[:i], pair[i+1:], true
}

func parseDotEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		out[key] = value
	}
	return out, scanner.Err()
}

func runEnvSet(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	env := map[string]string{}
	for _, pair := range args[1:] {
		key, value, ok := splitKV(pair)
		if !ok {
			return fmt.Errorf("invalid KEY=value pair: %q", pair)
		}
		env[key] = value
	}
	if err := c.do("PUT", fmt.Sprintf("/api/v1/apps/%d/env", app.ID), setAppEnvRequest{Env: env}, nil); err != nil {
		return err
	}
	fmt.Printf("Set %d variable(s) on %q\n", len(env), args[0])
	return nil
}

func runEnvGet(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	env, err := getAppEnv(c, app.ID)
	if err != nil {
		return err
	}
	value, ok := env[args[1]]
	if !ok {
		return fmt.Errorf("%q is not set on %q", args[1], args[0])
	}
	fmt.Println(value)
	return nil
}

func runEnvList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	env, err := getAppEnv(c, app.ID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, env[k])
	}
	return nil
}

func runEnvDelete(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	// An empty value deletes the key in the daemon's merge semantics.
	if err := c.do("PUT", fmt.Sprintf("/api/v1/apps/%d/env", app.ID), setAppEnvRequest{Env: map[string]string{args[1]: ""}}, nil); err != nil {
		return err
	}
	fmt.Printf("Deleted %q from %q\n", args[1], args[0])
	return nil
}

func runEnvPush(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	env, err := parseDotEnvFile(args[1])
	if err != nil {
		return err
	}
	if err := c.do("PUT", fmt.Sprintf("/api/v1/apps/%d/env", app.ID), setAppEnvRequest{Env: env}, nil); err != nil {
		return err
	}
	fmt.Printf("Pushed %d variable(s) to %q\n", len(env), args[0])
	return nil
}
