package storage

import (
	"testing"

	"sparkload/internal/schema"
)

func TestTenant_Names(t *testing.T) {
	t.Parallel()

	tn := Tenant{Client: "Acme Corp", Platform: "Facebook", Year: 2024, Wave: 3}

	if got := tn.SchemaName(); got != "client_acme_corp_2024" {
		t.Fatalf("SchemaName = %q", got)
	}
	if got := tn.TableName(NamingTable); got != "facebook_naming_keys" {
		t.Fatalf("TableName = %q", got)
	}
	if got := tn.ViewName(); got != "facebook_audience_ad_descriptor_data" {
		t.Fatalf("ViewName = %q", got)
	}
}

func TestTenant_Validate(t *testing.T) {
	t.Parallel()

	ok := Tenant{Client: "acme", Platform: "facebook", Year: 2024, Wave: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid tenant rejected: %v", err)
	}

	cases := []struct {
		name string
		tn   Tenant
	}{
		{"empty client", Tenant{Platform: "fb", Year: 2024, Wave: 1}},
		{"symbols-only client", Tenant{Client: "!!!", Platform: "fb", Year: 2024, Wave: 1}},
		{"wave too low", Tenant{Client: "a", Platform: "fb", Year: 2024, Wave: 0}},
		{"wave too high", Tenant{Client: "a", Platform: "fb", Year: 2024, Wave: 101}},
		{"year out of range", Tenant{Client: "a", Platform: "fb", Year: 1999, Wave: 1}},
		{"bad grain", Tenant{Client: "a", Platform: "fb", Year: 2024, Wave: 1, Grain: "campaign_name"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if err := c.tn.Validate(); err == nil {
				t.Fatalf("expected %s to be rejected", c.name)
			}
		})
	}
}

func TestTenant_KeyColumnsFollowGrain(t *testing.T) {
	t.Parallel()

	tn := Tenant{Client: "a", Platform: "fb", Year: 2024, Wave: 1}
	got := tn.KeyColumns(CampaignTable)
	if len(got) != 2 || got[1] != schema.ColAdName {
		t.Fatalf("default campaign key = %v, want wave_number+ad_name", got)
	}

	tn.Grain = schema.ColAdSetName
	got = tn.KeyColumns(CampaignTable)
	if got[1] != schema.ColAdSetName {
		t.Fatalf("grain override ignored: %v", got)
	}

	naming := tn.KeyColumns(NamingTable)
	if len(naming) != 2 || naming[0] != schema.ColWaveNumber || naming[1] != schema.ColAdSetName {
		t.Fatalf("naming key = %v", naming)
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := Open(t.Context(), Config{Kind: "oracle"}); err == nil {
		t.Fatal("expected unsupported kind error")
	}
	if _, err := Open(t.Context(), Config{}); err == nil {
		t.Fatal("expected missing kind error")
	}
}
