package finance

import "time"

// TransactionView is the serializable form handed to the presentation layer.
type TransactionView struct {
	ID           int64    `json:"id"`
	AccountID    string   `json:"accountId"`
	PlaidID      string   `json:"plaidId"`
	Amount       float64  `json:"amount"`
	Date         string   `json:"date"`
	Name         string   `json:"name"`
	MerchantName *string  `json:"merchantName"`
	Category     []string `json:"category"`
	AICategory   *string  `json:"aiCategory"`
	Pending      bool     `json:"pending"`
}

func (t Transaction) View() TransactionView {
	category := t.Category
	if category == nil {
		category = []string{}
	}

	return TransactionView{
		ID:           t.ID,
		AccountID:    t.AccountID,
		PlaidID:      t.PlaidID,
		Amount:       t.Amount.InexactFloat64(),
		Date:         t.Date.String(),
		Name:         t.Name,
		MerchantName: t.MerchantName,
		Category:     category,
		AICategory:   t.AICategory,
		Pending:      t.Pending,
	}
}

func Views(transactions []Transaction) []TransactionView {
	views := make([]TransactionView, len(transactions))
	for i := range transactions {
		views[i] = transactions[i].View()
	}
	return views
}

// AccountView omits the access token.
type AccountView struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a ExternalAccount) View() AccountView {
	return AccountView{ID: a.ID, ItemID: a.ItemID, CreatedAt: a.CreatedAt}
}
