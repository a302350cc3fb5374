package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/internal/logging"
	"github.com/MrEthical07/goAdmin/metrics/export/prometheus"
)

func (a *app) setupCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-check",
		Short: "Report whether the super-admin account exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, cleanup, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := c.CheckSetup(cmd.Context())
			if err != nil {
				return err
			}
			if st.SuperAdminExists {
				fmt.Fprintln(cmd.OutOrStdout(), "super-admin exists")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no super-admin yet: run the setup wizard")
			}
			return nil
		},
	}
}

func (a *app) loginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session and store it when redis is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, s, cleanup, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if s.Username == "" {
				return fmt.Errorf("username required (--username or GOADMIN_USERNAME)")
			}
			if err := c.Login(cmd.Context(), s.Username, s.Password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", s.Username)
			if s.RedisAddr == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "session not persisted: no redis configured")
			}
			return nil
		},
	}
	a.credentialFlags(cmd)
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, cleanup, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	var (
		query       []string
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Issue an authenticated GET and print the JSON reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, cleanup, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			log := logging.New(cmd.ErrOrStderr(), s.Config.Logging.Level, s.Config.Logging.Format)
			if err := ensureSession(cmd.Context(), c, s, log); err != nil {
				return err
			}

			values, err := parseQuery(query)
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if err := c.GetJSON(cmd.Context(), args[0], values, &raw); err != nil {
				return err
			}
			if err := printJSON(cmd, raw); err != nil {
				return err
			}

			if showMetrics {
				fmt.Fprint(cmd.ErrOrStderr(), prometheus.NewPrometheusExporter(c).Render())
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print client metrics in Prometheus text format to stderr")
	a.credentialFlags(cmd)
	return cmd
}

func (a *app) credentialFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("username", "u", "", "login name")
	cmd.Flags().StringP("password", "p", "", "password (prefer GOADMIN_PASSWORD)")
	// Several commands share the keys, so bind the flags of the one that runs.
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := a.v.BindPFlag(keyUsername, cmd.Flags().Lookup("username")); err != nil {
			return err
		}
		return a.v.BindPFlag(keyPassword, cmd.Flags().Lookup("password"))
	}
}

func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: query %q is not key=value", goAdmin.ErrInvalidRequest, p)
		}
		values.Add(k, v)
	}
	return values, nil
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("format reply: %w", err)
	}
	out.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(out.Bytes())
	return err
}
