package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRegisterCmd создаёт команду старта регистрации.
func NewRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var email, firstName, lastName, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Start a customer registration workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Register(RegisterRequest{
				Email:     email,
				FirstName: firstName,
				LastName:  lastName,
				Password:  password,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Registration started, run %s", resp.RunID))
			out.Details([][2]string{
				{"Run ID", resp.RunID},
				{"Status", resp.Status},
			}, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Customer email (required)")
	cmd.Flags().StringVar(&firstName, "first-name", "", "Customer first name (required)")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Customer last name (required)")
	cmd.Flags().StringVar(&password, "password", "", "Customer password (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("first-name")
	cmd.MarkFlagRequired("last-name")
	cmd.MarkFlagRequired("password")

	return cmd
}

// NewVerifyCmd создаёт команду подтверждения email.
func NewVerifyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Confirm a customer email with a verification token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Verify(args[0])
			if err != nil {
				return err
			}

			out.Success("Email verified")
			out.Details([][2]string{
				{"Customer ID", resp.CustomerID},
				{"Status", resp.Status},
			}, resp)
			return nil
		},
	}
}
