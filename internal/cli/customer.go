package cli

import (
	"github.com/spf13/cobra"
)

// NewCustomerCmd создаёт группу команд для просмотра клиентов.
func NewCustomerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Inspect customers",
	}

	cmd.AddCommand(newCustomerShowCmd(clientFn, outputFn))

	return cmd
}

func newCustomerShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <customer-id>",
		Short: "Show customer details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			customer, err := client.GetCustomer(args[0])
			if err != nil {
				return err
			}

			out.Details([][2]string{
				{"ID", customer.ID},
				{"Email", customer.Email},
				{"Name", customer.FirstName + " " + customer.LastName},
				{"Status", customer.Status},
				{"Created", customer.CreatedAt},
				{"Updated", customer.UpdatedAt},
			}, customer)
			return nil
		},
	}
}
