// Package retroctl implements the Postfacto admin command line: database
// migrations, magic links, retro passwords and a live event tail.
package retroctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/server/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var errPasswordMismatch = errors.New("passwords do not match")

// CLI holds the collaborators of the commands; tests replace them.
type CLI struct {
	out          io.Writer
	errOut       io.Writer
	openBackend  func(ctx context.Context, cfg *config.Config) (Backend, error)
	dial         func(addr string) (*grpc.ClientConn, error)
	readPassword func(fd int) ([]byte, error)

	configPath string
	dsn        string
	secret     string
	grpcAddr   string
}

func New(out, errOut io.Writer) *CLI {
	return &CLI{
		out:          out,
		errOut:       errOut,
		openBackend:  openPostgres,
		dial:         dialInsecure,
		readPassword: term.ReadPassword,
	}
}

func dialInsecure(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// RootCmd builds the command tree.
func (c *CLI) RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "retroctl",
		Short:         "Administer a Postfacto server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "path to YAML config file")
	pf.StringVar(&c.dsn, "dsn", "", "PostgreSQL DSN (overrides config)")
	pf.StringVar(&c.secret, "secret", "", "token signing secret (overrides config)")
	pf.StringVar(&c.grpcAddr, "grpc-addr", "", "event feed address (overrides config)")

	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.magicLinkCmd())
	root.AddCommand(c.setPasswordCmd())
	root.AddCommand(c.watchCmd())

	return root
}

// Execute runs the command line with args and returns the process exit code.
func (c *CLI) Execute(ctx context.Context, args []string) int {
	root := c.RootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		return 1
	}
	return 0
}

// loadConfig reads the server config and applies the flag overrides.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath, nil)
	if err != nil {
		return nil, err
	}
	if c.dsn != "" {
		cfg.DatabaseDSN = c.dsn
	}
	if c.secret != "" {
		cfg.SecretKey = c.secret
	}
	if c.grpcAddr != "" {
		cfg.EndpointAddrGRPC = c.grpcAddr
	}
	return cfg, nil
}

func (c *CLI) withBackend(cmd *cobra.Command, fn func(Backend) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	b, err := c.openBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func (c *CLI) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(b Backend) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(c.out, "Migrations applied")
				return nil
			})
		},
	}
}

func (c *CLI) magicLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "magic-link <slug>",
		Short: "Print a magic link that unlocks a retro",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(b Backend) error {
				link, err := b.MagicLink(cmd.Context(), args[0])
				if err != nil {
					return describe(err)
				}
				fmt.Fprintln(c.out, link.URL)
				fmt.Fprintf(c.errOut, "expires %s\n", link.ExpiresAt.Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	}
}

func (c *CLI) setPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <slug>",
		Short: "Set a retro password and sign out every other viewer",
		Long: `Set a retro password and sign out every other viewer.

An empty password removes it, which only succeeds for public retros.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := c.promptPassword()
			if err != nil {
				return err
			}
			return c.withBackend(cmd, func(b Backend) error {
				if err := b.SetPassword(cmd.Context(), args[0], password); err != nil {
					return describe(err)
				}
				fmt.Fprintln(c.out, "Password updated")
				return nil
			})
		},
	}
}

func (c *CLI) promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(c.errOut, "New password: ")
	first, err := c.readPassword(fd)
	fmt.Fprintln(c.errOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(c.errOut, "Repeat password: ")
	second, err := c.readPassword(fd)
	fmt.Fprintln(c.errOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	defer clear(first)
	defer clear(second)

	if !bytes.Equal(first, second) {
		return "", errPasswordMismatch
	}
	return string(first), nil
}

// describe turns service errors into messages for the operator.
func describe(err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return errors.New("retro not found")
	case errors.Is(err, common.ErrorValidation):
		return errors.New(common.Reason(err))
	default:
		return err
	}
}
