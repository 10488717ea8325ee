// Package main provides the gophfood command line client: one-shot
// commands for account sign-up, signing in and out, and an interactive
// shell driving the cart, bookmarks, address selection and checkout.
package main

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/app"
	"github.com/atinyakov/GophFood/internal/config"
	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the resolved options and logger between cobra hooks.
type cli struct {
	opts *config.Options
	log  *zap.Logger
}

func rootCmd() *cobra.Command {
	c := &cli{opts: config.New(), log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "gophfood",
		Short:         "Food delivery client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := c.opts.Resolve(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			l := logger.New()
			if err := l.Init(c.opts.LogLevel); err != nil {
				return err
			}
			c.log = l.Log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.log.Sync()
		},
	}
	c.opts.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.registerCmd(),
		c.verifyCmd(),
		c.resendCmd(),
		c.shellCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "GophFood Client\nVersion: %s\nBuild Date: %s\n",
					cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
			},
		},
	)
	return cmd
}

// withSession opens and hydrates a session for the duration of fn.
func (c *cli) withSession(ctx context.Context, fn func(*app.Session) error) (err error) {
	sess, err := app.Open(ctx, c.opts, c.log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.Close())
	}()
	if err := sess.Hydrate(ctx); err != nil {
		c.log.Warn("refresh failed, using local state", zap.Error(err))
	}
	return fn(sess)
}

func (c *cli) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and pull the remote cart and bookmarks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := promptPassword(cmd, &password); err != nil {
				return err
			}
			return c.withSession(cmd.Context(), func(s *app.Session) error {
				id, err := s.SignIn(cmd.Context(), username, password)
				var unverified *service.UnverifiedError
				if errors.As(err, &unverified) && unverified.Email != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "A code was sent to %s, confirm it with: verify --email %s --code <code>\n",
						unverified.Email, unverified.Email)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password, prompted when empty")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var reg models.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account, verified afterwards with the emailed code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := promptPassword(cmd, &reg.Password); err != nil {
				return err
			}
			return c.withSession(cmd.Context(), func(s *app.Session) error {
				msg, err := s.Auth.Register(cmd.Context(), reg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cmp.Or(msg, "Registration successful, check your email for the verification code"))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "email receiving the verification code")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "account password, prompted when empty")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) verifyCmd() *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Confirm an account email with the emailed code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), func(s *app.Session) error {
				msg, err := s.Auth.VerifyOTP(cmd.Context(), email, code)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cmp.Or(msg, "Email verified, you can now log in"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "4-digit verification code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func (c *cli) resendCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Send a new verification code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), func(s *app.Session) error {
				msg, err := s.Auth.ResendOTP(cmd.Context(), email)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cmp.Or(msg, "New OTP has been sent to your email"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// promptPassword reads the password from stdin when the flag was empty.
func promptPassword(cmd *cobra.Command, password *string) error {
	if *password != "" {
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	*password = strings.TrimSpace(line)
	return nil
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the local cart and bookmarks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), func(s *app.Session) error {
				if err := s.SignOut(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func (c *cli) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd.Context(), func(s *app.Session) error {
				s.StartAutoRefresh(cmd.Context(), c.opts.RefreshInterval)
				newShell(s, cmd.InOrStdin(), cmd.OutOrStdout()).run(cmd.Context())
				return nil
			})
		},
	}
}
