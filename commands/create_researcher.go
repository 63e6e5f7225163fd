package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/repositories"
	"github.com/edudati/openheal-research/services"
	"github.com/spf13/cobra"
)

type createResearcherOptions struct {
	input         services.CreateResearcherInput
	passwordStdin bool
}

func NewCreateResearcherCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &createResearcherOptions{}

	cmd := &cobra.Command{
		Use:   "create-researcher",
		Short: "Create a researcher account",
		Long: `Creates a researcher account and links it to studies.

The password is read from --password, from stdin with --password-stdin, or
from the OPENHEAL_RESEARCHER_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolvePassword(opts, cmd.InOrStdin()); err != nil {
				return err
			}

			a, err := openApp(rootOpts, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			auth := services.NewAuthService(
				a.local,
				repositories.NewPostgresResearcherRepository(a.local),
				repositories.NewPostgresStudyRepository(a.local),
				a.cfg.JWTSecretKey,
				a.logger,
			)
			return runCreateResearcher(cmd.Context(), cmd.OutOrStdout(), auth, opts.input)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.input.Username, "username", "", "login name (required)")
	f.StringVar(&opts.input.Email, "email", "", "email address")
	f.StringVar(&opts.input.Password, "password", "", "password, at least 8 characters")
	f.BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from stdin")
	f.StringVar(&opts.input.FirstName, "first-name", "", "first name")
	f.StringVar(&opts.input.LastName, "last-name", "", "last name")
	f.StringVar(&opts.input.Institution, "institution", "", "institution")
	f.BoolVar(&opts.input.IsSuperuser, "superuser", false, "grant access to every study")
	f.StringSliceVar(&opts.input.StudyCodes, "study", nil, "study code the researcher may access (repeatable)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func resolvePassword(opts *createResearcherOptions, stdin io.Reader) error {
	if opts.passwordStdin {
		if opts.input.Password != "" {
			return errors.New("--password and --password-stdin are mutually exclusive")
		}
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password from stdin: %w", err)
		}
		opts.input.Password = strings.TrimRight(line, "\r\n")
	}
	if opts.input.Password == "" {
		opts.input.Password = os.Getenv("OPENHEAL_RESEARCHER_PASSWORD")
	}
	if opts.input.Password == "" {
		return errors.New("a password is required")
	}
	return nil
}

type researcherCreator interface {
	CreateResearcher(ctx context.Context, input services.CreateResearcherInput) (*models.Researcher, error)
}

func runCreateResearcher(ctx context.Context, out io.Writer, auth researcherCreator, input services.CreateResearcherInput) error {
	researcher, err := auth.CreateResearcher(ctx, input)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid researcher: %v", verr.Fields)
		}
		return err
	}
	_, err = fmt.Fprintf(out, "Created %s %s (%s)\n", researcher.Role(), researcher.Username, researcher.ID)
	return err
}
