package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/podnotes/pkg/clierror"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the Solid account",
	}
	cmd.AddCommand(
		newAccountRegisterCmd(a),
		newAccountLoginCmd(a),
		newAccountTokenCmd(a),
	)
	return cmd
}

type registerOutput struct {
	Email   string         `json:"email" yaml:"email"`
	Success bool           `json:"success" yaml:"success"`
	Detail  map[string]any `json:"detail" yaml:"detail"`
}

func newAccountRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account and attach the configured email/password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := a.authenticator()
			authz, err := auth.RegisterAccount(cmd.Context())
			if err != nil {
				return err
			}
			result, err := auth.RegisterPassword(cmd.Context(), authz)
			if err != nil {
				return err
			}

			out := registerOutput{Email: a.cfg.Account.Username, Success: result.Success, Detail: result.Detail}
			w := cmd.OutOrStdout()
			if handled, err := a.formatOutput(w, out); handled || err != nil {
				if err == nil && !result.Success {
					err = clierror.AuthFailed("password registration rejected")
				}
				return err
			}

			if !result.Success {
				msg, _ := result.Detail["message"].(string)
				fmt.Fprintf(w, "%s password registration rejected: %s\n", warnFmt("!"), orDash(msg))
				return clierror.AuthFailed("password registration rejected")
			}
			printOK(w, "Registered %s", a.cfg.Account.Username)
			return nil
		},
	}
}

func newAccountLoginCmd(a *app) *cobra.Command {
	var showToken bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check the configured email/password against the account server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authz, err := a.authenticator().Login(cmd.Context())
			if err != nil {
				return err
			}

			out := map[string]string{"email": a.cfg.Account.Username}
			if showToken {
				out["authorization"] = authz
			}
			w := cmd.OutOrStdout()
			if handled, err := a.formatOutput(w, out); handled || err != nil {
				return err
			}
			printOK(w, "Logged in as %s", a.cfg.Account.Username)
			if showToken {
				fmt.Fprintf(w, "Account token: %s\n", authz)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showToken, "show-token", false, "Print the account authorization token")
	return cmd
}

type tokenOutput struct {
	WebID      string    `json:"webId" yaml:"webId"`
	ClientID   string    `json:"clientId" yaml:"clientId"`
	ExpiresAt  time.Time `json:"expiresAt" yaml:"expiresAt"`
	Thumbprint string    `json:"jkt" yaml:"jkt"`
	Token      string    `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
}

func newAccountTokenCmd(a *app) *cobra.Command {
	var showToken bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Run the full handshake and describe the DPoP-bound access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, tok, err := a.authenticator().Handshake(cmd.Context())
			if err != nil {
				return err
			}
			jkt, err := tok.Key.Thumbprint()
			if err != nil {
				return clierror.InternalError(err)
			}

			out := tokenOutput{
				WebID:      a.credentials().WebID(),
				ClientID:   cred.ID,
				ExpiresAt:  tok.ExpiresAt().UTC(),
				Thumbprint: jkt,
			}
			if showToken {
				out.Token = tok.Token
			}
			w := cmd.OutOrStdout()
			if handled, err := a.formatOutput(w, out); handled || err != nil {
				return err
			}

			tw := newTable(w)
			fmt.Fprintf(tw, "WebID:\t%s\n", out.WebID)
			fmt.Fprintf(tw, "Client ID:\t%s\n", out.ClientID)
			fmt.Fprintf(tw, "Expires:\t%s (%s)\n", out.ExpiresAt.Format(time.RFC3339), tok.ExpiresIn)
			fmt.Fprintf(tw, "Key thumbprint:\t%s\n", out.Thumbprint)
			if showToken {
				fmt.Fprintf(tw, "Access token:\t%s\n", out.Token)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&showToken, "show-token", false, "Print the access token")
	return cmd
}
