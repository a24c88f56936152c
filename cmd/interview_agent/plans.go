package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/interview-pilot/internal/billing"
	"github.com/jonathan/interview-pilot/internal/config"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the subscription plan catalog",
	RunE:  runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(_ *cobra.Command, _ []string) error {
	plansFile := ""
	if cfg, err := config.Load(cfgFile); err == nil {
		plansFile = cfg.Billing.PlansFile
	}

	catalog, err := billing.LoadCatalog(plansFile)
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %-14s %-10s %s\n", "ID", "NAME", "PRICE", "PURCHASE")
	for _, plan := range catalog.Plans {
		price := "free"
		if plan.PriceMonthly > 0 {
			price = fmt.Sprintf("$%.0f/mo", plan.PriceMonthly)
		}
		purchase := "-"
		switch {
		case plan.ContactSales:
			purchase = "contact sales"
		case plan.Checkout:
			purchase = "checkout"
		}
		fmt.Printf("%-12s %-14s %-10s %s\n", plan.ID, plan.Name, price, purchase)
		if len(plan.Features) > 0 {
			fmt.Printf("             %s\n", strings.Join(plan.Features, "; "))
		}
	}
	return nil
}
