package validate

import (
	"context"
	"strings"
	"testing"

	"sparkload/internal/csvio"
	"sparkload/internal/normalize"
	"sparkload/internal/schema"
)

func campaignDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d, err := schema.NewDescriptor("processed_campaign_data", schema.CampaignColumns())
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

func namingDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d, err := schema.NewDescriptor("naming_keys", schema.NamingColumns())
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

func readCSV(t *testing.T, csv string) (*csvio.File, []string) {
	t.Helper()
	f, err := csvio.Read(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("csvio.Read: %v", err)
	}
	cols, _ := normalize.Headers(f.Header)
	return f, cols
}

func campaignOpts() Options {
	return Options{
		Table:       "campaign",
		KeyCols:     []string{schema.ColWaveNumber, schema.ColAdName},
		Wave:        2,
		KeyFallback: true,
	}
}

func TestCheck_EmptyFileIsFatal(t *testing.T) {
	t.Parallel()

	f, cols := readCSV(t, "Ad name,Impressions\n")
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if rep.Ok() {
		t.Fatal("expected empty file to be fatal")
	}
}

func TestCheck_MissingJoinKeyIsFatal(t *testing.T) {
	t.Parallel()

	f, cols := readCSV(t, "Impressions,Clicks\n100,5\n")
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if rep.Ok() {
		t.Fatal("expected missing join key to be fatal")
	}
	if len(rep.Rows) != 0 {
		t.Fatalf("fatal report still produced %d rows", len(rep.Rows))
	}
}

func TestCheck_TypedCellsAndWaveStamp(t *testing.T) {
	t.Parallel()

	f, cols := readCSV(t, "Ad name,Ad set name,Impressions,Amount spent (USD),Reporting starts\nbanner,set1,1000,12.5,2024-03-01\n")
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if !rep.Ok() {
		t.Fatalf("fatal: %+v", rep.Fatal)
	}
	if len(rep.Rows) != 1 {
		t.Fatalf("rows = %d", len(rep.Rows))
	}
	row := rep.Rows[0]

	if v, _ := row.Get(schema.ColWaveNumber); v != int64(2) {
		t.Fatalf("wave_number = %v, want stamped 2", v)
	}
	if v, _ := row.Get("impressions"); v != int64(1000) {
		t.Fatalf("impressions = %v (%T)", v, v)
	}
	if v, _ := row.Get("amount_spent_usd"); v != 12.5 {
		t.Fatalf("amount_spent_usd = %v (%T)", v, v)
	}
	if row.Absent("reporting_starts") {
		t.Fatal("reporting_starts should have parsed")
	}
}

func TestCheck_AdvisoryCellsBecomeAbsence(t *testing.T) {
	t.Parallel()

	in := "Ad name,Impressions,Amount spent (USD)\n" +
		"a,not_a_number,0:00:00\n" +
		"b,-5,1.25\n"
	f, cols := readCSV(t, in)
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if !rep.Ok() {
		t.Fatalf("fatal: %+v", rep.Fatal)
	}

	a, b := rep.Rows[0], rep.Rows[1]
	if !a.Absent("impressions") {
		t.Fatal("unparsable impressions should be absent, not zero")
	}
	if !a.Absent("amount_spent_usd") {
		t.Fatal("time-formatted spend should be absent")
	}
	if !b.Absent("impressions") {
		t.Fatal("negative impressions should be absent")
	}
	if v, _ := b.Get("amount_spent_usd"); v != 1.25 {
		t.Fatalf("valid spend lost: %v", v)
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("expected advisory warnings")
	}
}

func TestCheck_DuplicateKeysKeepLast(t *testing.T) {
	t.Parallel()

	in := "Ad name,Impressions\nx,1\ny,2\nx,3\n"
	f, cols := readCSV(t, in)
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if len(rep.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 after dedupe", len(rep.Rows))
	}
	for _, row := range rep.Rows {
		if row.String(schema.ColAdName) == "x" {
			if v, _ := row.Get("impressions"); v != int64(3) {
				t.Fatalf("kept occurrence has impressions=%v, want last (3)", v)
			}
		}
	}
	found := false
	for _, w := range rep.Warnings {
		if strings.Contains(w.Msg, "duplicate natural key") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no duplicate warning in %+v", rep.Warnings)
	}
}

func TestCheck_JoinKeyFallback(t *testing.T) {
	t.Parallel()

	// Campaign file carries only ad_set_name; ad_name is the grain.
	f, cols := readCSV(t, "Ad set name,Impressions\nset1,10\n")
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if !rep.Ok() {
		t.Fatalf("fatal: %+v", rep.Fatal)
	}
	row := rep.Rows[0]
	if row.String(schema.ColAdName) != "set1" {
		t.Fatalf("ad_name = %q, want back-filled set1", row.String(schema.ColAdName))
	}

	hasAdName := false
	for _, c := range rep.Observed {
		if c.Name == schema.ColAdName {
			hasAdName = true
		}
	}
	if !hasAdName {
		t.Fatal("back-filled ad_name missing from observed columns")
	}
}

func TestCheck_NamingFileRequiresAdSetName(t *testing.T) {
	t.Parallel()

	// ad_name does not stand in for the naming key: the naming file
	// defines the taxonomy and must carry ad_set_name itself.
	f, cols := readCSV(t, "Ad name,Audience\nX1,Moms\n")
	rep := Check(f, cols, namingDescriptor(t), Options{
		Table:   "naming",
		KeyCols: []string{schema.ColWaveNumber, schema.ColAdSetName},
		Wave:    1,
	})
	if rep.Ok() {
		t.Fatal("naming file without ad_set_name should be fatal")
	}
	for _, c := range rep.Observed {
		if c.Name == schema.ColAdName {
			t.Fatal("ad_name leaked into the naming column set")
		}
	}
	if len(rep.Rows) != 0 {
		t.Fatalf("fatal report still produced %d rows", len(rep.Rows))
	}
}

func TestCheck_NewColumnInferred(t *testing.T) {
	t.Parallel()

	f, cols := readCSV(t, "Ad set name,kpvSF1W2Support\nset1,42\n")
	rep := Check(f, cols, namingDescriptor(t), Options{
		Table:   "naming",
		KeyCols: []string{schema.ColWaveNumber, schema.ColAdSetName},
		Wave:    1,
	})
	if !rep.Ok() {
		t.Fatalf("fatal: %+v", rep.Fatal)
	}

	var kpv *schema.Column
	for i, c := range rep.Observed {
		if c.Name == "kpv_support" {
			kpv = &rep.Observed[i]
		}
	}
	if kpv == nil {
		t.Fatalf("kpv_support not observed: %+v", rep.Observed)
	}
	if kpv.Type != schema.TypeInt {
		t.Fatalf("kpv_support inferred as %s, want INT", kpv.Type)
	}
	if v, _ := rep.Rows[0].Get("kpv_support"); v != int64(42) {
		t.Fatalf("kpv_support value = %v", v)
	}
}

func TestCheck_BlankKeyRowDropped(t *testing.T) {
	t.Parallel()

	f, cols := readCSV(t, "Ad name,Impressions\n,5\nok,6\n")
	rep := Check(f, cols, campaignDescriptor(t), campaignOpts())
	if len(rep.Rows) != 1 || rep.Rows[0].String(schema.ColAdName) != "ok" {
		t.Fatalf("rows = %+v, want only the keyed row", rep.Rows)
	}
}
