package schema

// Seed column sets for the two logical tables.
//
// These mirror the column inventory the campaign exports have produced to
// date. They are only the starting point: new columns observed in later
// waves are appended by the evolution manager, never removed.

// Well-known column names referenced across the pipeline stages.
const (
	ColWaveNumber = "wave_number"
	ColAdName     = "ad_name"
	ColAdSetName  = "ad_set_name"
)

// NamingColumns returns the seed descriptor columns for the naming-keys
// table. ad_set_name is the join key and the only hard requirement.
func NamingColumns() []Column {
	return []Column{
		{Name: "wave_number", Type: TypeInt, Required: true},
		{Name: "ad_set_name", Type: TypeString, Required: true},
		{Name: "audience", Type: TypeString},
		{Name: "concept", Type: TypeString},
		{Name: "position", Type: TypeString},
		{Name: "ad_descriptor", Type: TypeString},
		{Name: "ad_direction", Type: TypeString},
		{Name: "landing_page", Type: TypeString},
	}
}

// CampaignColumns returns the seed descriptor columns for the campaign-data
// table.
//
// ad_name and ad_set_name are both marked required because the validator
// fills either from the other; after preprocessing both are always present.
func CampaignColumns() []Column {
	return []Column{
		// Campaign & ad info
		{Name: "campaign_name", Type: TypeString},
		{Name: "ad_name", Type: TypeString, Required: true},
		{Name: "ad_set_name", Type: TypeString, Required: true},
		{Name: "ad_delivery", Type: TypeString},
		{Name: "starts", Type: TypeTimestamp},
		{Name: "ends", Type: TypeTimestamp},
		{Name: "reporting_starts", Type: TypeTimestamp},
		{Name: "reporting_ends", Type: TypeTimestamp},
		{Name: "last_significant_edit", Type: TypeTimestamp},
		{Name: "wave_number", Type: TypeInt, Required: true},
		{Name: "attribution_setting", Type: TypeString},

		// Budget & spend
		{Name: "amount_spent_usd", Type: TypeFloat},
		{Name: "ad_set_budget", Type: TypeFloat},
		{Name: "ad_set_budget_type", Type: TypeString},
		{Name: "bid", Type: TypeFloat},
		{Name: "bid_type", Type: TypeString},
		{Name: "cpm_usd", Type: TypeFloat},

		// Core performance metrics
		{Name: "results", Type: TypeInt},
		{Name: "result_indicator", Type: TypeString},
		{Name: "cost_per_result", Type: TypeFloat},
		{Name: "frequency", Type: TypeFloat},
		{Name: "reach", Type: TypeInt},
		{Name: "impressions", Type: TypeInt},
		{Name: "unique_link_clicks", Type: TypeInt},
		{Name: "landing_page_views", Type: TypeInt},
		{Name: "email_signups", Type: TypeInt},

		// Key page view KPIs
		{Name: "kpv_community", Type: TypeInt},
		{Name: "kpv_tool", Type: TypeInt},
		{Name: "kpv_transformation", Type: TypeInt},
		{Name: "kpv_support", Type: TypeInt},
		{Name: "kpv_nohero", Type: TypeInt},
		{Name: "kpv_inspiration", Type: TypeInt},
		{Name: "kpv_authentic", Type: TypeInt},
		{Name: "kpv_nextlevel", Type: TypeInt},
		{Name: "kpv_nextchapter", Type: TypeInt},
		{Name: "kpv_workshop", Type: TypeInt},
		{Name: "kpv_openhouse", Type: TypeInt},

		// Lead generation
		{Name: "lead_openhouse", Type: TypeInt},
		{Name: "lead_workshop", Type: TypeInt},
		{Name: "lead_info", Type: TypeInt},

		// Click events
		{Name: "click_findout", Type: TypeInt},
		{Name: "click_letschat", Type: TypeInt},
		{Name: "click_openhouse", Type: TypeInt},
		{Name: "click_workshop", Type: TypeInt},
		{Name: "click_info", Type: TypeInt},

		// E-commerce: add to cart
		{Name: "adds_to_cart", Type: TypeInt},
		{Name: "in_app_adds_to_cart", Type: TypeInt},
		{Name: "website_adds_to_cart", Type: TypeInt},
		{Name: "offline_adds_to_cart", Type: TypeInt},
		{Name: "meta_add_to_cart", Type: TypeInt},

		// E-commerce: checkouts
		{Name: "checkouts_initiated", Type: TypeInt},
		{Name: "in_app_checkouts", Type: TypeInt},
		{Name: "website_checkouts", Type: TypeInt},
		{Name: "offline_checkouts", Type: TypeInt},
		{Name: "meta_checkouts", Type: TypeInt},

		// E-commerce: purchases
		{Name: "purchases", Type: TypeInt},
		{Name: "in_app_purchases", Type: TypeInt},
		{Name: "website_purchases", Type: TypeInt},
		{Name: "offline_purchases", Type: TypeInt},
		{Name: "meta_purchases", Type: TypeInt},

		// Registrations
		{Name: "registrations_completed", Type: TypeInt},
		{Name: "in_app_registrations", Type: TypeInt},
		{Name: "website_registrations", Type: TypeInt},
		{Name: "offline_registrations", Type: TypeInt},

		// Social engagement
		{Name: "instagram_profile_visits", Type: TypeInt},
		{Name: "post_comments", Type: TypeInt},
		{Name: "post_reactions", Type: TypeInt},
		{Name: "post_saves", Type: TypeInt},
		{Name: "post_shares", Type: TypeInt},
		{Name: "post_engagements", Type: TypeInt},
		{Name: "video_avg_play_time", Type: TypeFloat},
	}
}
