package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"bitbucket.org/mmdatafocus/crm_backend/workflow"
	"gorm.io/gorm"
)

// Recomputes product on-hand counters from the stock movement log.
// Dry-run by default: prints drift without writing.
func main() {
	companyID := flag.String("company-id", "", "Required: company id")
	productID := flag.Int("product-id", 0, "Optional: rebuild a single product")
	dryRun := flag.Bool("dry-run", true, "Show drift only (no writes)")
	confirm := flag.String("confirm", "", "Type REBUILD to proceed when dry-run=false")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing products and continue")
	flag.Parse()

	if strings.TrimSpace(*companyID) == "" {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "REBUILD" {
		fmt.Fprintln(os.Stderr, "set --confirm=REBUILD to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCompanyIdInContext(context.Background(), *companyID)

	var productIDs []int
	if *productID > 0 {
		productIDs = append(productIDs, *productID)
	} else {
		err := db.WithContext(ctx).Model(&models.Product{}).
			Where("company_id = ?", *companyID).
			Order("id ASC").
			Pluck("id", &productIDs).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "discover products: %v\n", err)
			os.Exit(1)
		}
	}

	corrected := 0
	for _, id := range productIDs {
		if *dryRun {
			product, err := models.GetProduct(db.WithContext(ctx), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "product %d: %v\n", id, err)
				if *continueOnError {
					continue
				}
				os.Exit(1)
			}
			movements, err := models.GetStockMovements(db.WithContext(ctx), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "product %d: %v\n", id, err)
				if *continueOnError {
					continue
				}
				os.Exit(1)
			}
			computed := workflow.ComputeStockFromMovements(movements)
			if !computed.Equal(product.Stock) {
				fmt.Printf("product=%d stored=%s computed=%s DRIFT\n", id, product.Stock, computed)
				corrected++
			}
			continue
		}

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			computed, changed, err := workflow.RebuildProductStock(tx, id)
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("product=%d corrected to %s\n", id, computed)
				corrected++
			}
			return nil
		})
		if err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "rebuild failed (skipping) product=%d: %v\n", id, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "rebuild failed product=%d: %v\n", id, err)
			os.Exit(1)
		}
	}

	if *dryRun {
		fmt.Printf("dry-run complete: %d of %d products drifted\n", corrected, len(productIDs))
	} else {
		fmt.Printf("rebuild complete: %d of %d products corrected\n", corrected, len(productIDs))
	}
}
