package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/pkg/clierr"
	"github.com/lectio/lectio/pkg/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loginCmd signs in with a username (the account email) and password.
func loginCmd(a *app) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend",
		Long:  "Sign in with your email and password. The session is kept in the configured store.",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			if username == "" {
				cmd.Println("Please enter your email and password.")
				var err error
				if username, err = p.input("Email: "); err != nil {
					return err
				}
			}
			password, err := p.password("Password: ")
			if err != nil {
				return err
			}
			if !validateCredentials(username, password) {
				return clierr.New(clierr.Validation, "Email and password cannot be empty.", nil)
			}

			if err := a.service.SignIn(cmd.Context(), username, password); err != nil {
				return err
			}
			cmd.Println("Login was successful.")
			return nil
		}),
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account email; prompted for when omitted")

	return cmd
}

// signupCmd registers an account and signs in with it.
func signupCmd(a *app) *cobra.Command {
	var in client.RegisterRequest

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			for _, f := range [][2]string{{"first name", in.FirstName}, {"last name", in.LastName}, {"email", in.Email}} {
				if err := validation.ValidateNonEmptyString(f[0], f[1]); err != nil {
					return clierr.New(clierr.Validation, err.Error(), err)
				}
			}
			p := newPrompter(cmd)
			password, err := p.password("Password: ")
			if err != nil {
				return err
			}
			confirm, err := p.password("Confirm password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return clierr.New(clierr.Validation, "Password cannot be empty.", nil)
			}
			if password != confirm {
				return clierr.New(clierr.Validation, "Passwords do not match.", nil)
			}
			in.Password = password

			if err := a.service.SignUp(cmd.Context(), in); err != nil {
				return err
			}
			cmd.Printf("Account created for %s. You are now signed in.\n", in.Email)
			return nil
		}),
	}

	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&in.Role, "role", "lecturer", "Account role")

	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			if err := a.service.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		}),
	}
}

// statusCmd prints the session state derived from the stored tokens.
func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			st, err := a.service.State(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println("Backend:", a.api.BaseURL())
			if st.Authenticated {
				cmd.Println("Authenticated: yes")
			} else {
				cmd.Println("Authenticated: no")
			}

			switch {
			case !st.HasAccessToken:
				cmd.Println("Access token: none")
			case st.AccessExpired:
				cmd.Println("Access token: expired")
			default:
				cmd.Println("Access token: valid until", st.AccessExpiresAt.Local().Format("2006-01-02 15:04:05"))
			}
			switch {
			case !st.HasRefreshToken:
				cmd.Println("Refresh token: none")
			case st.RefreshExpiresAt.IsZero():
				cmd.Println("Refresh token: present")
			default:
				cmd.Println("Refresh token: valid until", st.RefreshExpiresAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		}),
	}
}

// prompter reads answers from the command's input. Passwords are read
// without echo when the input is a terminal.
type prompter struct {
	out    io.Writer
	in     io.Reader
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{out: cmd.OutOrStdout(), in: in, reader: bufio.NewReader(in)}
}

func (p *prompter) input(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", clierr.New(clierr.Validation, "Failed to read input.", err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) password(prompt string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.input(prompt)
	}
	fmt.Fprint(p.out, prompt)
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out) // Print a newline for better formatting
	if err != nil {
		return "", clierr.New(clierr.Validation, "Failed to read password.", err)
	}
	return strings.TrimSpace(string(password)), nil
}

// validateCredentials checks if the username and password are not empty.
func validateCredentials(username, password string) bool {
	return username != "" && password != ""
}
