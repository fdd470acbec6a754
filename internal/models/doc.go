// Package models defines the core domain models for the settle-up ledger.
//
// # Models
//
//   - Member: a participant, identified by an opaque ID
//   - Group: a named roster of members
//   - Expense: a payment made by one member on behalf of a group
//   - Obligation: one member's owed share of one expense
//   - Settlement: the audit record of a settle-up between two members
//
// # Design Principles
//
// 1. **Money is never a float**: every amount is a money.Money
// 2. **Expenses are immutable**: amount and obligations never change after
// creation; only description and category can be edited
// 3. **Settled is one-way**: an obligation moves from unsettled to settled
// exactly once
// 4. **Avoid circular references**: use ID strings instead of pointers for relationships
package models
