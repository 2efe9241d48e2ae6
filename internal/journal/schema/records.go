package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bookkeeping holds the fields the sync layer maintains on every record.
type Bookkeeping struct {
	OwnerID    string    `mapstructure:"userId"`
	CreatedAt  time.Time `mapstructure:"createdAt"`
	UpdatedAt  time.Time `mapstructure:"updatedAt"`
	MigratedAt time.Time `mapstructure:"migratedAt"`
}

// Meta returns the bookkeeping fields for modification.
func (b *Bookkeeping) Meta() *Bookkeeping { return b }

func (b Bookkeeping) put(d map[string]any) {
	putString(d, FieldOwner, b.OwnerID)
	putTime(d, FieldCreatedAt, b.CreatedAt)
	putTime(d, FieldUpdatedAt, b.UpdatedAt)
	putTime(d, FieldMigratedAt, b.MigratedAt)
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one journaled trade.
type Trade struct {
	// ===== Identification =====
	ID string `mapstructure:"id"`

	// ===== Execution =====
	Symbol     string              `mapstructure:"symbol"`
	Side       Side                `mapstructure:"side"`
	EntryPrice decimal.NullDecimal `mapstructure:"entryPrice"`
	ExitPrice  decimal.NullDecimal `mapstructure:"exitPrice"`
	Lots       decimal.NullDecimal `mapstructure:"lots"`

	// ===== Outcome =====
	PnL  decimal.NullDecimal `mapstructure:"pnl"`
	Pips decimal.NullDecimal `mapstructure:"pips"`

	// ===== Journal =====
	Date       string   `mapstructure:"date"`    // YYYY-MM-DD
	Time       string   `mapstructure:"time"`    // HH:MM
	Session    string   `mapstructure:"session"` // london, new-york, asia, ...
	Rating     int      `mapstructure:"rating"`  // 0 (unrated) to 5
	Tags       []string `mapstructure:"tags"`    // tag ids, not checked against the tag collection
	Notes      string   `mapstructure:"notes"`
	StrategyID string   `mapstructure:"strategyId"`

	Bookkeeping `mapstructure:",squash"`

	// Extra holds fields without a struct field.
	Extra map[string]any `mapstructure:",remain"`
}

func (t Trade) Kind() Kind             { return KindTrade }
func (t Trade) RecordID() string       { return t.ID }
func (t *Trade) SetRecordID(id string) { t.ID = id }

// Validate checks the known fields.
func (t Trade) Validate() error {
	switch t.Side {
	case "", SideBuy, SideSell:
	default:
		return &ValidationError{Kind: KindTrade, Field: "side", Reason: fmt.Sprintf("must be %q or %q (got %q)", SideBuy, SideSell, t.Side)}
	}
	if err := checkNonNegative(KindTrade, "entryPrice", t.EntryPrice); err != nil {
		return err
	}
	if err := checkNonNegative(KindTrade, "exitPrice", t.ExitPrice); err != nil {
		return err
	}
	if err := checkNonNegative(KindTrade, "lots", t.Lots); err != nil {
		return err
	}
	if t.Rating < 0 || t.Rating > 5 {
		return &ValidationError{Kind: KindTrade, Field: "rating", Reason: fmt.Sprintf("must be between 0 and 5 (got %d)", t.Rating)}
	}
	if err := checkDate(KindTrade, "date", t.Date); err != nil {
		return err
	}
	if err := checkClock(KindTrade, "time", t.Time); err != nil {
		return err
	}
	for i, tag := range t.Tags {
		if tag == "" {
			return &ValidationError{Kind: KindTrade, Field: "tags", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	return nil
}

// ToDoc converts the trade to a document. Zero-valued fields are omitted so
// a merge-write leaves the stored values alone; the id is carried by the
// path, not the document.
func (t Trade) ToDoc() map[string]any {
	d := extraDoc(t.Extra)
	putString(d, "symbol", t.Symbol)
	putString(d, "side", string(t.Side))
	putDecimal(d, "entryPrice", t.EntryPrice)
	putDecimal(d, "exitPrice", t.ExitPrice)
	putDecimal(d, "lots", t.Lots)
	putDecimal(d, "pnl", t.PnL)
	putDecimal(d, "pips", t.Pips)
	putString(d, "date", t.Date)
	putString(d, "time", t.Time)
	putString(d, "session", t.Session)
	if t.Rating != 0 {
		d["rating"] = t.Rating
	}
	putStrings(d, "tags", t.Tags)
	putString(d, "notes", t.Notes)
	putString(d, "strategyId", t.StrategyID)
	t.Bookkeeping.put(d)
	return d
}

// Account is a trading account.
type Account struct {
	ID       string              `mapstructure:"id"`
	Label    string              `mapstructure:"label"`
	Balance  decimal.NullDecimal `mapstructure:"balance"`
	Currency string              `mapstructure:"currency"` // ISO 4217
	Broker   string              `mapstructure:"broker"`

	Bookkeeping `mapstructure:",squash"`
	Extra       map[string]any `mapstructure:",remain"`
}

func (a Account) Kind() Kind             { return KindAccount }
func (a Account) RecordID() string       { return a.ID }
func (a *Account) SetRecordID(id string) { a.ID = id }

// Validate checks the known fields.
func (a Account) Validate() error {
	if a.Currency != "" && len(a.Currency) != 3 {
		return &ValidationError{Kind: KindAccount, Field: "currency", Reason: fmt.Sprintf("must be a 3-letter code (got %q)", a.Currency)}
	}
	return nil
}

// ToDoc converts the account to a document, omitting zero values.
func (a Account) ToDoc() map[string]any {
	d := extraDoc(a.Extra)
	putString(d, "label", a.Label)
	putDecimal(d, "balance", a.Balance)
	putString(d, "currency", a.Currency)
	putString(d, "broker", a.Broker)
	a.Bookkeeping.put(d)
	return d
}

// ChecklistItem is one entry of a strategy checklist.
type ChecklistItem struct {
	Text    string `mapstructure:"text"`
	Checked bool   `mapstructure:"checked"`
}

// Strategy is a named trading plan with an ordered checklist.
type Strategy struct {
	ID        string          `mapstructure:"id"`
	Title     string          `mapstructure:"title"`
	Symbol    string          `mapstructure:"symbol"`
	Checklist []ChecklistItem `mapstructure:"checklist"`

	Bookkeeping `mapstructure:",squash"`
	Extra       map[string]any `mapstructure:",remain"`
}

func (s Strategy) Kind() Kind             { return KindStrategy }
func (s Strategy) RecordID() string       { return s.ID }
func (s *Strategy) SetRecordID(id string) { s.ID = id }

// Validate checks the known fields.
func (s Strategy) Validate() error {
	for i, item := range s.Checklist {
		if item.Text == "" {
			return &ValidationError{Kind: KindStrategy, Field: "checklist", Reason: fmt.Sprintf("item %d has no text", i)}
		}
	}
	return nil
}

// ToDoc converts the strategy to a document, omitting zero values. The
// checklist is written whole since its order is significant.
func (s Strategy) ToDoc() map[string]any {
	d := extraDoc(s.Extra)
	putString(d, "title", s.Title)
	putString(d, "symbol", s.Symbol)
	if s.Checklist != nil {
		d["checklist"] = checklistDoc(s.Checklist)
	}
	s.Bookkeeping.put(d)
	return d
}

func checklistDoc(items []ChecklistItem) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = map[string]any{"text": item.Text, "checked": item.Checked}
	}
	return out
}

// CategoryCustom marks a tag created by the user rather than picked from the
// predefined set.
const CategoryCustom = "custom"

// Tag labels trades. Trades reference tags by id; deleting a tag leaves
// those references dangling.
type Tag struct {
	ID       string `mapstructure:"id"`
	Label    string `mapstructure:"label"`
	Color    string `mapstructure:"color"`
	Category string `mapstructure:"category"`

	Bookkeeping `mapstructure:",squash"`
	Extra       map[string]any `mapstructure:",remain"`
}

func (t Tag) Kind() Kind             { return KindTag }
func (t Tag) RecordID() string       { return t.ID }
func (t *Tag) SetRecordID(id string) { t.ID = id }

// Validate checks the known fields.
func (t Tag) Validate() error {
	if len(t.Label) > 64 {
		return &ValidationError{Kind: KindTag, Field: "label", Reason: fmt.Sprintf("must be 64 characters or less (got %d)", len(t.Label))}
	}
	return nil
}

// ToDoc converts the tag to a document, omitting zero values.
func (t Tag) ToDoc() map[string]any {
	d := extraDoc(t.Extra)
	putString(d, "label", t.Label)
	putString(d, "color", t.Color)
	putString(d, "category", t.Category)
	t.Bookkeeping.put(d)
	return d
}

// Settings is the free-form configuration singleton of an owner.
type Settings struct {
	Bookkeeping `mapstructure:",squash"`
	Values      map[string]any `mapstructure:",remain"`
}

func (s Settings) Kind() Kind      { return KindSettings }
func (s Settings) Validate() error { return nil }

// ToDoc converts the settings to a document.
func (s Settings) ToDoc() map[string]any {
	d := extraDoc(s.Values)
	s.Bookkeeping.put(d)
	return d
}

// Profile is the profile singleton of an owner.
type Profile struct {
	DisplayName string `mapstructure:"displayName"`
	Email       string `mapstructure:"email"`

	Bookkeeping `mapstructure:",squash"`
	Extra       map[string]any `mapstructure:",remain"`
}

func (p Profile) Kind() Kind { return KindProfile }

// Validate checks the known fields.
func (p Profile) Validate() error {
	if len(p.DisplayName) > 100 {
		return &ValidationError{Kind: KindProfile, Field: "displayName", Reason: fmt.Sprintf("must be 100 characters or less (got %d)", len(p.DisplayName))}
	}
	return nil
}

// ToDoc converts the profile to a document, omitting zero values.
func (p Profile) ToDoc() map[string]any {
	d := extraDoc(p.Extra)
	putString(d, "displayName", p.DisplayName)
	putString(d, "email", p.Email)
	p.Bookkeeping.put(d)
	return d
}

// extraDoc starts a document from the extension map. Known fields written
// afterwards take precedence.
func extraDoc(extra map[string]any) map[string]any {
	d := make(map[string]any, len(extra)+8)
	for k, v := range extra {
		if k == FieldID {
			continue
		}
		d[k] = v
	}
	return d
}

func putString(d map[string]any, key, v string) {
	if v != "" {
		d[key] = v
	}
}

func putStrings(d map[string]any, key string, v []string) {
	if v == nil {
		return
	}
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	d[key] = out
}

func putDecimal(d map[string]any, key string, v decimal.NullDecimal) {
	if v.Valid {
		d[key] = v.Decimal.InexactFloat64()
	}
}

func putTime(d map[string]any, key string, v time.Time) {
	if !v.IsZero() {
		d[key] = v.UTC()
	}
}
