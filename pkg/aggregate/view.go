package aggregate

type CategorySpendingView struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

type SummaryView struct {
	Start         string                 `json:"startDate"`
	End           string                 `json:"endDate"`
	TotalIncome   float64                `json:"totalIncome"`
	TotalSpending float64                `json:"totalSpending"`
	Net           float64                `json:"net"`
	Categories    []CategorySpendingView `json:"spendingByCategory"`
}

func (c CategorySpending) View() CategorySpendingView {
	return CategorySpendingView{
		Category:   c.Category,
		Amount:     c.Amount.InexactFloat64(),
		Percentage: c.Percentage.InexactFloat64(),
	}
}

func Views(categories []CategorySpending) []CategorySpendingView {
	views := make([]CategorySpendingView, 0, len(categories))
	for _, c := range categories {
		views = append(views, c.View())
	}
	return views
}

func (s Summary) View() SummaryView {
	return SummaryView{
		Start:         s.Range.Start.String(),
		End:           s.Range.End.String(),
		TotalIncome:   s.TotalIncome.InexactFloat64(),
		TotalSpending: s.TotalSpending.InexactFloat64(),
		Net:           s.Net.InexactFloat64(),
		Categories:    Views(s.Categories),
	}
}
