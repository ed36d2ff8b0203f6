// README: Common money value object used across modules.
package types

import "fmt"

// DefaultCurrency is the settlement currency for every order amount.
const DefaultCurrency = "PKR"

// Money holds whole currency units. Gift prices and fees are quoted in
// rupees, so int64 keeps totals exact.
type Money struct {
    Amount   int64  `json:"amount"`
    Currency string `json:"currency"`
}

func PKR(amount int64) Money {
    return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) Add(o Money) Money {
    cur := m.Currency
    if cur == "" {
        cur = o.Currency
    }
    return Money{Amount: m.Amount + o.Amount, Currency: cur}
}

func (m Money) IsNegative() bool { return m.Amount < 0 }

func (m Money) String() string {
    cur := m.Currency
    if cur == "" {
        cur = DefaultCurrency
    }
    return fmt.Sprintf("%s %d", cur, m.Amount)
}
