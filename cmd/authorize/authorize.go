package authorize

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tphakala/birdnotifier/internal/app"
	"github.com/tphakala/birdnotifier/internal/conf"
	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
)

// Command returns the cobra command running the OAuth2 consent flow for SMTP access
func Command(settings *conf.Settings) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Authorize birdnotifier to send mail via OAuth2",
		Long: `Print the consent page URL of the configured OAuth2 client, read the
authorization code it shows and store the resulting refresh token in the token file.

Examples:
  # Interactive
  birdnotifier authorize

  # Code obtained beforehand
  birdnotifier authorize --code "4/0Ab..."`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, afero.NewOsFs(), settings, code)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code, prompted for when empty")

	return cmd
}

func execute(cmd *cobra.Command, fsys afero.Fs, settings *conf.Settings, code string) error {
	o := &settings.Email.OAuth2
	if o.ClientID == "" || o.ClientSecret == "" {
		return errors.ValidationError("email.oauth2.clientid and email.oauth2.clientsecret are required")
	}
	if o.TokenFile == "" {
		return errors.ValidationError("email.oauth2.tokenfile is required")
	}

	manager := app.NewTokenManager(fsys, settings, logger.Global())
	out := cmd.OutOrStdout()

	if code == "" {
		fmt.Fprintf(out, "Open this URL in a browser signed in as %s:\n\n  %s\n\n",
			settings.Email.Sender, manager.AuthCodeURL(uuid.NewString()))
		fmt.Fprint(out, "Enter the authorization code: ")

		var err error
		code, err = readCode(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	if err := manager.Exchange(cmd.Context(), code); err != nil {
		return err
	}

	fmt.Fprintf(out, "Refresh token stored in %s\n", o.TokenFile)
	return nil
}

// readCode reads one line holding the authorization code
func readCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
