package groups

// Family is the report a group type rolls up into.
type Family string

const (
	FamilyBalanceSheet  Family = "BALANCE_SHEET"
	FamilyProfitAndLoss Family = "PROFIT_AND_LOSS"
)

// Taxonomy maps every group type to its report family. It is configuration,
// not derived: new types must be added here before groups can use them.
var Taxonomy = map[Type]Family{
	TypeAsset:     FamilyBalanceSheet,
	TypeLiability: FamilyBalanceSheet,
	TypeCapital:   FamilyBalanceSheet,
	TypeIncome:    FamilyProfitAndLoss,
	TypeExpense:   FamilyProfitAndLoss,
}

// Family returns the report family for t.
func (t Type) Family() Family {
	return Taxonomy[t]
}
