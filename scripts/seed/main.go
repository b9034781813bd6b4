package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
)

var demoWarehouses = []string{"Main", "Outlet"}

var demoProducts = []inventory.ProductInput{
	{SKU: "FLOUR-25", Name: "Flour 25kg", Cost: decimal.RequireFromString("18.50"), Price: decimal.RequireFromString("24.00"), MinStock: 10},
	{SKU: "SUGAR-10", Name: "Sugar 10kg", Cost: decimal.RequireFromString("9.20"), Price: decimal.RequireFromString("12.50"), MinStock: 10},
	{SKU: "BREAD-01", Name: "Sandwich Loaf", Cost: decimal.RequireFromString("1.10"), Price: decimal.RequireFromString("2.75"), MinStock: 50},
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer rt.Close(logger)
	services := app.NewServices(rt.Repos, app.ServiceDeps{Logger: logger, Config: cfg, Redis: rt.Redis})

	fmt.Println("→ Seeding chart of accounts...")
	seeded, err := services.Accounting.SeedChart(ctx)
	if err != nil {
		log.Fatalf("seed chart: %v", err)
	}
	logger.Info("chart seeded", slog.Int("accounts", seeded))

	fmt.Println("→ Seeding warehouses...")
	for _, name := range demoWarehouses {
		if _, err := services.Inventory.CreateWarehouse(ctx, name); err != nil && !errors.Is(err, inventory.ErrDuplicateWarehouse) {
			log.Fatalf("seed warehouse %s: %v", name, err)
		}
	}

	fmt.Println("→ Seeding products...")
	var created []inventory.Product
	for _, input := range demoProducts {
		product, err := services.Inventory.CreateProduct(ctx, input)
		if errors.Is(err, inventory.ErrDuplicateSKU) {
			continue
		}
		if err != nil {
			log.Fatalf("seed product %s: %v", input.SKU, err)
		}
		created = append(created, product)
	}
	if len(created) == 0 {
		fmt.Println("✓ Demo data already present")
		return
	}

	fmt.Println("→ Receiving opening stock...")
	input := procurement.CreatePOInput{Supplier: "Opening Balance", Warehouse: demoWarehouses[0]}
	for _, product := range created {
		input.Items = append(input.Items, procurement.POLineInput{ProductID: product.ID, Quantity: 100})
	}
	po, err := services.Procurement.CreatePurchaseOrder(ctx, input)
	if err != nil {
		log.Fatalf("seed opening order: %v", err)
	}
	if _, err := services.Procurement.ReceivePurchaseOrder(ctx, po.Number); err != nil {
		log.Fatalf("receive opening order: %v", err)
	}
	fmt.Println("✓ Seed complete")
}
