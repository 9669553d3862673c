package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"dailyledger/internal/auth"
	"dailyledger/internal/core"
)

func newAddCommand(o *globalOptions) *cobra.Command {
	var (
		user, kind, amount, category, payment string
		date, bill, location, remarks         string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append one transaction to the store",
		Long: `Append one transaction. --user must name a configured user; the row is
recorded under that user's display name. Income rows always get the
configured income payment method and no bill number or location.`,
		Example: `  ledger add --user dileepa --kind expense --amount 1250.50 --category Food --payment Cash`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			u, ok := app.Users.Lookup(user)
			if !ok {
				return &core.ValidationError{Field: string(core.FieldRecordedBy), Value: user, Err: core.ErrMissingIdentity}
			}
			k, err := core.ParseKind(kind)
			if err != nil {
				return err
			}
			value, err := app.Amounts.ParseSubmitted(amount)
			if err != nil {
				return err
			}

			entry := core.Entry{
				Date:          app.Ledger.Today(),
				Kind:          k,
				Category:      category,
				Amount:        value,
				PaymentMethod: payment,
				BillNo:        bill,
				Location:      location,
				Remarks:       remarks,
			}
			if date != "" {
				entry.Date = app.Dates.Parse(date)
			}

			res, err := app.Ledger.Append(cmd.Context(), displayName(u), entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.RowRef, strings.Join(res.Cells, "\t"))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&user, "user", "", "username recorded as the submitter")
	f.StringVar(&kind, "kind", "", "expense or income")
	f.StringVar(&amount, "amount", "", "positive amount, e.g. 1250.50")
	f.StringVar(&category, "category", "", "category allowed for the kind")
	f.StringVar(&payment, "payment", "", "payment method (expenses only)")
	f.StringVar(&date, "date", "", "transaction date (default today)")
	f.StringVar(&bill, "bill", "", "bill number")
	f.StringVar(&location, "location", "", "location")
	f.StringVar(&remarks, "remarks", "", "free-text remarks")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func displayName(u auth.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func newHashPasswordCommand() *cobra.Command {
	var (
		password string
		cost     int
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for a user's password_hash entry",
		Long:  `Hash a password for the users table of the schema file. Without --password the first line of stdin is used.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password to hash")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
