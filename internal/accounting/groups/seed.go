package groups

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// SeedGroup describes one group of the default chart.
type SeedGroup struct {
	Name   string
	Type   Type
	Parent string
}

// DefaultChart lists the protected groups every tenant starts with. Parents
// always precede their children.
func DefaultChart() []SeedGroup {
	return []SeedGroup{
		{Name: "Capital Account", Type: TypeCapital},
		{Name: "Loans (Liability)", Type: TypeLiability},
		{Name: "Current Liabilities", Type: TypeLiability},
		{Name: "Fixed Assets", Type: TypeAsset},
		{Name: "Investments", Type: TypeAsset},
		{Name: "Current Assets", Type: TypeAsset},
		{Name: "Sales Accounts", Type: TypeIncome},
		{Name: "Purchase Accounts", Type: TypeExpense},
		{Name: "Direct Incomes", Type: TypeIncome},
		{Name: "Indirect Incomes", Type: TypeIncome},
		{Name: "Direct Expenses", Type: TypeExpense},
		{Name: "Indirect Expenses", Type: TypeExpense},
		{Name: "Cash-in-Hand", Type: TypeAsset, Parent: "Current Assets"},
		{Name: "Bank Accounts", Type: TypeAsset, Parent: "Current Assets"},
		{Name: "Sundry Debtors", Type: TypeAsset, Parent: "Current Assets"},
		{Name: "Stock-in-Hand", Type: TypeAsset, Parent: "Current Assets"},
		{Name: "Sundry Creditors", Type: TypeLiability, Parent: "Current Liabilities"},
		{Name: "Duties & Taxes", Type: TypeLiability, Parent: "Current Liabilities"},
	}
}

// Seed installs the default chart for a tenant. Groups that already exist by
// name are left untouched, so seeding twice is harmless.
func (s *Service) Seed(ctx context.Context, tenantID, createdBy int64) ([]Group, error) {
	var seeded []Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seeded = seeded[:0]
		existing, err := tx.ListGroups(ctx, tenantID)
		if err != nil {
			return err
		}
		byKey := make(map[string]Group, len(existing))
		for _, g := range existing {
			byKey[shared.NameKey(g.Name)] = g
		}
		for _, sg := range DefaultChart() {
			key := shared.NameKey(sg.Name)
			if g, ok := byKey[key]; ok {
				seeded = append(seeded, g)
				continue
			}
			g := Group{
				TenantID:  tenantID,
				Name:      sg.Name,
				Type:      sg.Type,
				IsDefault: true,
				IsActive:  true,
				SortOrder: len(seeded),
				CreatedBy: createdBy,
				CreatedAt: s.now(),
			}
			if sg.Parent != "" {
				parent, ok := byKey[shared.NameKey(sg.Parent)]
				if !ok {
					return fmt.Errorf("groups: seed parent %q missing", sg.Parent)
				}
				parentID := parent.ID
				g.ParentID = &parentID
			}
			inserted, err := tx.InsertGroup(ctx, g, key)
			if err != nil {
				return fmt.Errorf("groups: seed %q: %w", sg.Name, err)
			}
			byKey[key] = inserted
			seeded = append(seeded, inserted)
		}
		return nil
	})
	return seeded, err
}
