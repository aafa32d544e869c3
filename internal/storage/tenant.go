package storage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"sparkload/internal/schema"
)

// Logical table names. Backends map them to physical, platform-prefixed
// tables inside the tenant schema.
const (
	NamingTable   = "naming_keys"
	CampaignTable = "processed_campaign_data"
)

// Internal bookkeeping tables, one of each per tenant schema.
const (
	logTable        = "processing_log"
	descriptorTable = "schema_descriptor"
)

// Run parameter bounds.
const (
	MinWave, MaxWave = 1, 100
	MinYear, MaxYear = 2000, 2090
)

var identScrub = regexp.MustCompile(`[^a-z0-9]+`)

// Tenant identifies one isolated (client, platform, year) namespace
// plus the wave being ingested and the campaign upsert grain.
type Tenant struct {
	Client   string `json:"client"`
	Platform string `json:"platform"`
	Year     int    `json:"year"`
	Wave     int    `json:"wave"`

	// Grain is the campaign-data key column, ad_name or ad_set_name.
	// Empty means ad_name.
	Grain string `json:"grain,omitempty"`
}

// Validate checks run parameters before any store work starts.
//
// Errors name the offending parameter so the caller can correct the
// invocation, not the file.
func (t Tenant) Validate() error {
	if ident(t.Client) == "" {
		return fmt.Errorf("tenant: client %q is empty after sanitizing", t.Client)
	}
	if ident(t.Platform) == "" {
		return fmt.Errorf("tenant: platform %q is empty after sanitizing", t.Platform)
	}
	if t.Year < MinYear || t.Year > MaxYear {
		return fmt.Errorf("tenant: year %d outside %d..%d", t.Year, MinYear, MaxYear)
	}
	if t.Wave < MinWave || t.Wave > MaxWave {
		return fmt.Errorf("tenant: wave %d outside %d..%d", t.Wave, MinWave, MaxWave)
	}
	switch t.Grain {
	case "", schema.ColAdName, schema.ColAdSetName:
	default:
		return fmt.Errorf("tenant: grain %q must be %s or %s", t.Grain, schema.ColAdName, schema.ColAdSetName)
	}
	return nil
}

// GrainColumn returns the campaign key column, defaulting to ad_name.
func (t Tenant) GrainColumn() string {
	if t.Grain == "" {
		return schema.ColAdName
	}
	return t.Grain
}

// KeyColumns returns the natural key of a logical table.
func (t Tenant) KeyColumns(table string) []string {
	if table == NamingTable {
		return []string{schema.ColWaveNumber, schema.ColAdSetName}
	}
	return []string{schema.ColWaveNumber, t.GrainColumn()}
}

// SchemaName returns the tenant's storage namespace, e.g.
// client_acme_2024.
func (t Tenant) SchemaName() string {
	return fmt.Sprintf("client_%s_%d", ident(t.Client), t.Year)
}

// TableName maps a logical table to its physical, platform-prefixed
// name inside the tenant schema, e.g. facebook_naming_keys.
func (t Tenant) TableName(table string) string {
	return ident(t.Platform) + "_" + table
}

// ViewName returns the derived join view over naming keys and campaign
// data for this platform.
func (t Tenant) ViewName() string {
	return ident(t.Platform) + "_audience_ad_descriptor_data"
}

// LogTableName and DescriptorTableName are shared per tenant schema,
// not per platform: one audit trail and one descriptor registry serve
// every platform a client uploads.
func (t Tenant) LogTableName() string        { return logTable }
func (t Tenant) DescriptorTableName() string { return descriptorTable }

// SeedColumns returns the initial descriptor for a logical table.
func SeedColumns(table string) []schema.Column {
	if table == NamingTable {
		return schema.NamingColumns()
	}
	return schema.CampaignColumns()
}

// ident lowercases s and collapses every non-alphanumeric run to a
// single underscore, matching the column normalizer's character rules
// so schema and table names stay plain identifiers.
func ident(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = identScrub.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// LogEntry is one immutable processing-log row.
type LogEntry struct {
	RunID       string        `json:"run_id"`
	Wave        int           `json:"wave_number"`
	Timestamp   time.Time     `json:"processing_timestamp"`
	Status      string        `json:"status"`
	Records     int64         `json:"records_processed"`
	Errors      int           `json:"errors_count"`
	Warnings    int           `json:"warnings_count"`
	Elapsed     time.Duration `json:"processing_time"`
	Client      string        `json:"client_name"`
	Platform    string        `json:"platform"`
	Year        int           `json:"year"`
	Note        string        `json:"note,omitempty"`
}
