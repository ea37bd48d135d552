package ynab

// Wire types for https://api.ynab.com/v1#/Transactions

type subTransaction struct {
	ID            string  `json:"id,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Amount        int64   `json:"amount"`
	Memo          *string `json:"memo"`
	PayeeID       *string `json:"payee_id"`
	PayeeName     *string `json:"payee_name"`
	CategoryID    *string `json:"category_id"`
	Deleted       bool    `json:"deleted,omitempty"`
}

type transactionDetail struct {
	ID              string           `json:"id"`
	Date            string           `json:"date"`
	Amount          int64            `json:"amount"`
	Memo            *string          `json:"memo"`
	PayeeID         *string          `json:"payee_id"`
	PayeeName       *string          `json:"payee_name"`
	CategoryID      *string          `json:"category_id"`
	Deleted         bool             `json:"deleted"`
	Subtransactions []subTransaction `json:"subtransactions"`
}

type transactionsResponse struct {
	Data struct {
		Transactions    []transactionDetail `json:"transactions"`
		ServerKnowledge int64               `json:"server_knowledge"`
	} `json:"data"`
}

type saveSubTransaction struct {
	Amount     int64   `json:"amount"`
	PayeeID    *string `json:"payee_id,omitempty"`
	PayeeName  *string `json:"payee_name,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	Memo       *string `json:"memo,omitempty"`
}

type saveTransaction struct {
	ID              string               `json:"id"`
	Memo            *string              `json:"memo,omitempty"`
	Subtransactions []saveSubTransaction `json:"subtransactions,omitempty"`
}

type patchTransactionsPayload struct {
	Transactions []saveTransaction `json:"transactions"`
}

type patchTransactionsResponse struct {
	Data struct {
		TransactionIDs []string `json:"transaction_ids"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}
